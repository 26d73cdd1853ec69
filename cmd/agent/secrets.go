package main

import (
	"context"
	"log/slog"

	"github.com/blueberrycongee/murmur/internal/config"
	"github.com/blueberrycongee/murmur/internal/secret"
	"github.com/blueberrycongee/murmur/internal/secret/env"
	"github.com/blueberrycongee/murmur/internal/secret/vault"
)

// resolveSecrets replaces env:// and vault:// references in the credential fields of cfg.
// The returned manager owns the Vault token renewer and must be closed on exit.
func resolveSecrets(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*secret.Manager, error) {
	m := secret.NewManager()
	m.Register("env", env.New())

	if cfg.Vault.Enabled {
		if err := m.Resolve(ctx,
			secret.Field{Name: "vault.token", Value: &cfg.Vault.Token},
			secret.Field{Name: "vault.secret_id", Value: &cfg.Vault.SecretID},
		); err != nil {
			return nil, err
		}
		v, err := vault.New(cfg.Vault.Config, logger)
		if err != nil {
			return nil, err
		}
		m.Register("vault", secret.NewCachedProvider(v, cfg.Vault.CacheTTL))
	}

	if err := m.Resolve(ctx, credentialFields(cfg)...); err != nil {
		_ = m.Close()
		return nil, err
	}
	return m, nil
}

func credentialFields(cfg *config.Config) []secret.Field {
	return []secret.Field{
		{Name: "hyperbolic.api_key", Value: &cfg.Hyperbolic.APIKey},
		{Name: "openai.api_key", Value: &cfg.OpenAI.APIKey},
		{Name: "x.access_token", Value: &cfg.X.AccessToken},
		{Name: "database.dsn", Value: &cfg.Database.DSN},
		{Name: "database.password", Value: &cfg.Database.Password},
		{Name: "redis.password", Value: &cfg.Redis.Password},
		{Name: "archive.access_key_id", Value: &cfg.Archive.AccessKeyID},
		{Name: "archive.secret_access_key", Value: &cfg.Archive.SecretKey},
	}
}
