// Package env resolves secret references from environment variables.
package env

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// Provider reads secrets from the process environment.
type Provider struct {
	lookup func(string) (string, bool)
}

// New creates an environment provider.
func New() *Provider {
	return &Provider{lookup: os.LookupEnv}
}

// Get returns the value of the variable named by path. Unset and blank variables are errors.
func (p *Provider) Get(ctx context.Context, path string) (string, error) {
	val, ok := p.lookup(path)
	if !ok {
		return "", fmt.Errorf("environment variable %q not set", path)
	}
	val = strings.TrimSpace(val)
	if val == "" {
		return "", fmt.Errorf("environment variable %q is empty", path)
	}
	return val, nil
}

// Close is a no-op.
func (p *Provider) Close() error {
	return nil
}
