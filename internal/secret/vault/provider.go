// Package vault resolves secret references against HashiCorp Vault.
package vault

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	vault "github.com/hashicorp/vault/api"
)

// Auth methods accepted in Config.AuthMethod.
const (
	AuthToken   = "token"
	AuthAppRole = "approle"
	AuthCert    = "cert"
)

// defaultField is read when a reference names no field.
const defaultField = "value"

// Config holds configuration for the Vault provider.
type Config struct {
	Address    string `yaml:"address"`
	AuthMethod string `yaml:"auth_method"`
	Token      string `yaml:"token"`
	RoleID     string `yaml:"role_id"`
	SecretID   string `yaml:"secret_id"`
	CACert     string `yaml:"ca_cert"`
	ClientCert string `yaml:"client_cert"`
	ClientKey  string `yaml:"client_key"`
}

// method returns the configured auth method, inferring it from the credentials present.
func (c Config) method() string {
	switch {
	case c.AuthMethod != "":
		return c.AuthMethod
	case c.Token != "":
		return AuthToken
	case c.RoleID != "":
		return AuthAppRole
	}
	return ""
}

// Provider reads string fields from Vault KV documents and keeps its login token renewed.
type Provider struct {
	client *vault.Client
	logger *slog.Logger
	stopCh chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

// New logs in to Vault. Renewable logins are renewed in the background until Close.
func New(cfg Config, logger *slog.Logger) (*Provider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client, err := newClient(cfg)
	if err != nil {
		return nil, err
	}
	p := &Provider{
		client: client,
		logger: logger.With("component", "vault"),
		stopCh: make(chan struct{}),
	}

	auth, err := login(client, cfg)
	if err != nil {
		return nil, err
	}
	if auth != nil {
		client.SetToken(auth.ClientToken)
		if auth.Renewable {
			p.wg.Add(1)
			go p.renew(auth)
		}
	}
	return p, nil
}

func newClient(cfg Config) (*vault.Client, error) {
	vc := vault.DefaultConfig()
	if cfg.Address != "" {
		vc.Address = cfg.Address
	}
	if cfg.ClientCert != "" || cfg.ClientKey != "" || cfg.CACert != "" {
		if err := vc.ConfigureTLS(&vault.TLSConfig{
			ClientCert: cfg.ClientCert,
			ClientKey:  cfg.ClientKey,
			CACert:     cfg.CACert,
		}); err != nil {
			return nil, fmt.Errorf("configure vault tls: %w", err)
		}
	}
	client, err := vault.NewClient(vc)
	if err != nil {
		return nil, fmt.Errorf("create vault client: %w", err)
	}
	return client, nil
}

// login authenticates client. Token auth sets the token directly and returns nil auth.
func login(client *vault.Client, cfg Config) (*vault.SecretAuth, error) {
	var (
		resp   *vault.Secret
		err    error
		method = cfg.method()
	)
	switch method {
	case AuthToken:
		if cfg.Token == "" {
			return nil, errors.New("vault token auth requires a token")
		}
		client.SetToken(cfg.Token)
		return nil, nil
	case AuthAppRole:
		resp, err = client.Logical().Write("auth/approle/login", map[string]any{
			"role_id":   cfg.RoleID,
			"secret_id": cfg.SecretID,
		})
	case AuthCert:
		resp, err = client.Logical().Write("auth/cert/login", nil)
	default:
		return nil, fmt.Errorf("unknown or missing vault auth method %q", cfg.AuthMethod)
	}
	if err != nil {
		return nil, fmt.Errorf("vault login (%s): %w", method, err)
	}
	if resp == nil || resp.Auth == nil {
		return nil, fmt.Errorf("vault login (%s) returned no auth info", method)
	}
	return resp.Auth, nil
}

// splitRef splits "mount/data/name#field" into the document path and the field name.
func splitRef(ref string) (doc, field string) {
	doc, field, found := strings.Cut(ref, "#")
	if !found || field == "" {
		return doc, defaultField
	}
	return doc, field
}

// Get returns one string field of a KV document. Both KV v1 and v2 layouts are accepted.
func (p *Provider) Get(ctx context.Context, ref string) (string, error) {
	doc, field := splitRef(ref)

	resp, err := p.client.Logical().ReadWithContext(ctx, doc)
	if err != nil {
		return "", fmt.Errorf("read vault secret %q: %w", doc, err)
	}
	if resp == nil || resp.Data == nil {
		return "", fmt.Errorf("vault secret %q not found", doc)
	}

	data := resp.Data
	if inner, ok := data["data"].(map[string]any); ok {
		data = inner
	}
	raw, ok := data[field]
	if !ok {
		return "", fmt.Errorf("key %q not found in vault secret %q", field, doc)
	}
	val, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("key %q in vault secret %q is %T, want string", field, doc, raw)
	}
	return val, nil
}

// Close stops token renewal. It is safe to call more than once.
func (p *Provider) Close() error {
	p.once.Do(func() { close(p.stopCh) })
	p.wg.Wait()
	return nil
}

func (p *Provider) renew(auth *vault.SecretAuth) {
	defer p.wg.Done()

	watcher, err := p.client.NewLifetimeWatcher(&vault.LifetimeWatcherInput{
		Secret: &vault.Secret{Auth: auth},
	})
	if err != nil {
		p.logger.Error("vault token renewal unavailable", "error", err)
		return
	}
	go watcher.Start()
	defer watcher.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case err := <-watcher.DoneCh():
			if err != nil {
				p.logger.Warn("vault token renewal stopped", "error", err)
			}
			return
		case <-watcher.RenewCh():
			p.logger.Debug("vault token renewed")
		}
	}
}
