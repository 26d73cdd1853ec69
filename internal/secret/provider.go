// Package secret resolves credential references found in the configuration. A reference is
// either a literal value or a URI such as "env://HYPERBOLIC_API_KEY" or
// "vault://secret/data/murmur#openai_api_key".
package secret

import "context"

// Provider retrieves secrets for one URI scheme.
type Provider interface {
	// Get retrieves the secret for path, the part of the reference after "scheme://".
	Get(ctx context.Context, path string) (string, error)

	// Close releases any resources held by the provider.
	Close() error
}
