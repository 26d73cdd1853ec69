// Package openai implements the embedding provider on OpenAI's embeddings API.
package openai

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/blueberrycongee/murmur/internal/memory"
	"github.com/blueberrycongee/murmur/internal/provider/openailike"
	"github.com/blueberrycongee/murmur/internal/tokenizer"
	agenterrors "github.com/blueberrycongee/murmur/pkg/errors"
	"github.com/blueberrycongee/murmur/pkg/types"
)

const (
	// ProviderName is the identifier for this provider.
	ProviderName = "openai"

	// DefaultBaseURL is the default OpenAI API endpoint.
	DefaultBaseURL = "https://api.openai.com/v1"

	// DefaultModel is the default embedding model.
	DefaultModel = "text-embedding-3-small"

	// DefaultDimension is the vector length of DefaultModel.
	DefaultDimension = 1536

	// DefaultMaxInputTokens is the input limit of the text-embedding-3 models.
	DefaultMaxInputTokens = 8191
)

// Config configures the embedder.
type Config struct {
	openailike.Config
	Model     string
	Dimension int
	// MaxInputTokens truncates longer inputs instead of letting the API reject them.
	MaxInputTokens int
	Logger         *slog.Logger
}

// Embedder generates embeddings through the OpenAI API.
type Embedder struct {
	http      *openailike.Client
	model     string
	dimension int
	maxTokens int
	logger    *slog.Logger
}

// New creates a new OpenAI embedder.
func New(cfg Config) (*Embedder, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = DefaultDimension
	}
	if cfg.MaxInputTokens <= 0 {
		cfg.MaxInputTokens = DefaultMaxInputTokens
	}
	c, err := openailike.New(ProviderName, DefaultBaseURL, cfg.Config)
	if err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Embedder{
		http:      c,
		model:     cfg.Model,
		dimension: cfg.Dimension,
		maxTokens: cfg.MaxInputTokens,
		logger:    cfg.Logger.With("provider", ProviderName),
	}, nil
}

// Embed generates an embedding for a single text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

// EmbedBatch generates embeddings for multiple texts, in input order.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	inputs := make([]string, len(texts))
	for i, text := range texts {
		var cut bool
		inputs[i], cut = tokenizer.Truncate(e.model, text, e.maxTokens)
		if cut {
			e.logger.Warn("embedding input truncated",
				"input_tokens", tokenizer.CountTokens(e.model, text),
				"max_tokens", e.maxTokens,
			)
		}
	}

	req := &types.EmbeddingRequest{
		Model: e.model,
		Input: inputs,
	}
	var resp types.EmbeddingResponse
	if err := e.http.PostJSON(ctx, "embed", "/embeddings", req, &resp); err != nil {
		return nil, err
	}

	embeddings := resp.Ordered(len(texts))
	for i, vec := range embeddings {
		if vec == nil {
			return nil, agenterrors.NewParseError("embed", fmt.Sprintf("no embedding returned for input %d", i), nil)
		}
		if len(vec) != e.dimension {
			return nil, agenterrors.NewDataError("embed", fmt.Sprintf("embedding has %d dimensions, want %d", len(vec), e.dimension))
		}
	}
	return embeddings, nil
}

// Model returns the embedding model name.
func (e *Embedder) Model() string {
	return e.model
}

// Dimension returns the embedding dimension.
func (e *Embedder) Dimension() int {
	return e.dimension
}

var _ memory.Embedder = (*Embedder)(nil)
