// Package hyperbolic implements the completion and rating provider on Hyperbolic's
// OpenAI-compatible inference API.
// API Reference: https://docs.hyperbolic.xyz/
package hyperbolic

import (
	"context"

	"github.com/blueberrycongee/murmur/internal/memory"
	"github.com/blueberrycongee/murmur/internal/provider/openailike"
	agenterrors "github.com/blueberrycongee/murmur/pkg/errors"
	"github.com/blueberrycongee/murmur/pkg/types"
)

const (
	// ProviderName is the identifier for this provider.
	ProviderName = "hyperbolic"

	// DefaultBaseURL is the default Hyperbolic API endpoint.
	DefaultBaseURL = "https://api.hyperbolic.xyz/v1"

	// DefaultModel is used when no model is configured.
	DefaultModel = "meta-llama/Meta-Llama-3.1-70B-Instruct"

	// DefaultSystemPrompt frames every completion.
	DefaultSystemPrompt = "You are an autonomous agent with your own thoughts, memories and voice. Respond in character."
)

// Config configures the Hyperbolic client.
type Config struct {
	openailike.Config
	Model        string
	SystemPrompt string
	MaxTokens    int
	Temperature  float64
}

// Client generates completions and significance ratings.
type Client struct {
	http *openailike.Client
	cfg  Config
}

// New creates a new Hyperbolic client.
func New(cfg Config) (*Client, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 512
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = 0.8
	}
	c, err := openailike.New(ProviderName, DefaultBaseURL, cfg.Config)
	if err != nil {
		return nil, err
	}
	return &Client{http: c, cfg: cfg}, nil
}

// Complete returns the model's reply to prompt.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	return c.chat(ctx, "complete", prompt, c.cfg.Temperature, c.cfg.MaxTokens)
}

// Rate asks for a 1..10 significance rating. The reply must be a bare integer.
func (c *Client) Rate(ctx context.Context, prompt string) (int, error) {
	raw, err := c.chat(ctx, "rate", prompt, 0, 4)
	if err != nil {
		return 0, err
	}
	return memory.ParseRating(raw)
}

func (c *Client) chat(ctx context.Context, op, prompt string, temperature float64, maxTokens int) (string, error) {
	req := &types.ChatRequest{
		Model: c.cfg.Model,
		Messages: []types.ChatMessage{
			{Role: types.RoleSystem, Content: c.cfg.SystemPrompt},
			{Role: types.RoleUser, Content: prompt},
		},
		MaxTokens:   maxTokens,
		Temperature: types.Float64Ptr(temperature),
	}

	var resp types.ChatResponse
	if err := c.http.PostJSON(ctx, op, "/chat/completions", req, &resp); err != nil {
		return "", err
	}
	content, ok := resp.FirstContent()
	if !ok {
		return "", agenterrors.NewParseError(op, "hyperbolic returned no content", nil)
	}
	return content, nil
}

var _ memory.Rater = (*Client)(nil)
