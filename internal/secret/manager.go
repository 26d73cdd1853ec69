package secret

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// Manager routes references to the provider registered for their scheme.
type Manager struct {
	providers map[string]Provider
	mu        sync.RWMutex
}

// NewManager creates a manager with no providers.
func NewManager() *Manager {
	return &Manager{
		providers: make(map[string]Provider),
	}
}

// Register registers a provider for a scheme such as "vault" or "env".
func (m *Manager) Register(scheme string, provider Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.providers[scheme] = provider
}

// ReferenceSchemes are the URI schemes treated as secret references. Other URIs, such as a
// postgres:// DSN, are literal values.
var ReferenceSchemes = []string{"env", "vault"}

// IsReference reports whether value is a secret reference.
func IsReference(value string) bool {
	scheme, _, ok := strings.Cut(value, "://")
	return ok && slices.Contains(ReferenceSchemes, scheme)
}

// Get resolves ref. Literal values are returned unchanged.
func (m *Manager) Get(ctx context.Context, ref string) (string, error) {
	if !IsReference(ref) {
		return ref, nil
	}
	scheme, path, _ := strings.Cut(ref, "://")

	m.mu.RLock()
	provider, found := m.providers[scheme]
	m.mu.RUnlock()

	if !found {
		return "", fmt.Errorf("no secret provider registered for scheme %q", scheme)
	}
	return provider.Get(ctx, path)
}

// Field names a config value that may hold a secret reference.
type Field struct {
	Name  string
	Value *string
}

// Resolve replaces each non-empty field value with the secret it references.
// Empty fields are left alone so optional credentials stay optional.
func (m *Manager) Resolve(ctx context.Context, fields ...Field) error {
	for _, f := range fields {
		if f.Value == nil || *f.Value == "" {
			continue
		}
		val, err := m.Get(ctx, *f.Value)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", f.Name, err)
		}
		*f.Value = val
	}
	return nil
}

// Close closes all registered providers.
func (m *Manager) Close() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var errs []string
	for scheme, p := range m.providers {
		if err := p.Close(); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", scheme, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("failed to close providers: %s", strings.Join(errs, "; "))
	}
	return nil
}
