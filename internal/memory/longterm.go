package memory

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/blueberrycongee/murmur/internal/resilience"
	agenterrors "github.com/blueberrycongee/murmur/pkg/errors"
)

// Long-term store defaults.
const (
	DefaultStoreThreshold = 0.6
	DefaultMergeDistance  = 0.1
	DefaultDimension      = 1536
	DefaultCallTimeout    = 30 * time.Second
)

// LongTermConfig configures a LongTermStore.
type LongTermConfig struct {
	// StoreThreshold is the minimum significance a memory needs to be persisted.
	StoreThreshold float64
	// MergeDistance is the cosine distance below which two memories are consolidated.
	MergeDistance float64
	// Dimension is the expected embedding length. Zero disables the check.
	Dimension int
	// Retry controls backoff for retryable storage failures.
	Retry resilience.RetryConfig
	// CallTimeout bounds every embedder, scorer and repository call.
	CallTimeout time.Duration
}

// DefaultLongTermConfig returns the default store configuration.
func DefaultLongTermConfig() LongTermConfig {
	return LongTermConfig{
		StoreThreshold: DefaultStoreThreshold,
		MergeDistance:  DefaultMergeDistance,
		Dimension:      DefaultDimension,
		Retry:          resilience.DefaultRetryConfig(),
		CallTimeout:    DefaultCallTimeout,
	}
}

// LongTermStore persists significant memories and consolidates near-duplicates.
type LongTermStore struct {
	repo     Repository
	embedder Embedder
	scorer   Scorer
	cfg      LongTermConfig
	logger   *slog.Logger
	now      func() time.Time

	// threshold holds the float64 bits of the active store threshold.
	threshold atomic.Uint64
}

// LongTermOption customizes a LongTermStore.
type LongTermOption func(*LongTermStore)

// WithLongTermLogger sets the store logger.
func WithLongTermLogger(logger *slog.Logger) LongTermOption {
	return func(s *LongTermStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the clock used for CreatedAt and report durations.
func WithClock(now func() time.Time) LongTermOption {
	return func(s *LongTermStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewLongTermStore creates a store over repo.
func NewLongTermStore(repo Repository, embedder Embedder, scorer Scorer, cfg LongTermConfig, opts ...LongTermOption) *LongTermStore {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	if cfg.Retry.Attempts <= 0 {
		cfg.Retry = resilience.DefaultRetryConfig()
	}
	s := &LongTermStore{
		repo:     repo,
		embedder: embedder,
		scorer:   scorer,
		cfg:      cfg,
		logger:   slog.Default(),
		now:      time.Now,
	}
	s.threshold.Store(math.Float64bits(cfg.StoreThreshold))
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Config returns the active configuration.
func (s *LongTermStore) Config() LongTermConfig {
	cfg := s.cfg
	cfg.StoreThreshold = s.StoreThreshold()
	return cfg
}

// StoreThreshold returns the significance a memory needs to be persisted by Store.
func (s *LongTermStore) StoreThreshold() float64 {
	return math.Float64frombits(s.threshold.Load())
}

// SetStoreThreshold changes the threshold used by Store, StoreScored and consolidation.
func (s *LongTermStore) SetStoreThreshold(threshold float64) {
	s.threshold.Store(math.Float64bits(threshold))
}

// Store scores content and persists it when it is significant enough.
func (s *LongTermStore) Store(ctx context.Context, content string) StoreResult {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	significance, _, err := s.scorer.Score(callCtx, content)
	cancel()
	if err != nil {
		return failed(0, fmt.Errorf("score memory: %w", err))
	}
	return s.StoreScored(ctx, content, significance)
}

// StoreScored persists content with a precomputed significance. Content below the
// threshold is skipped without touching the repository.
func (s *LongTermStore) StoreScored(ctx context.Context, content string, significance float64) StoreResult {
	if threshold := s.StoreThreshold(); significance < threshold {
		s.logger.Debug("memory below threshold", "significance", significance, "threshold", threshold)
		return StoreResult{Outcome: OutcomeSkipped, Significance: significance}
	}
	return s.Persist(ctx, content, significance)
}

// Persist embeds and inserts content unconditionally. Callers that apply their own
// significance gate use it so the threshold is checked in one place.
func (s *LongTermStore) Persist(ctx context.Context, content string, significance float64) StoreResult {
	embedding, err := s.embed(ctx, content)
	if err != nil {
		return failed(significance, err)
	}

	m := Memory{
		Content:      content,
		Embedding:    embedding,
		Significance: significance,
		CreatedAt:    s.now(),
	}

	var stored Memory
	err = resilience.Retry(ctx, s.cfg.Retry, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
		defer cancel()
		var insertErr error
		stored, insertErr = s.repo.Insert(callCtx, m)
		return insertErr
	})
	if err != nil {
		return failed(significance, fmt.Errorf("insert memory: %w", err))
	}

	s.logger.Info("memory stored", "memory_id", stored.ID, "significance", significance)
	return StoreResult{Outcome: OutcomeStored, Memory: &stored, Significance: significance}
}

// RetrieveRelevant returns up to limit memories closest to query.
func (s *LongTermStore) RetrieveRelevant(ctx context.Context, query string, limit int) ([]Memory, error) {
	if limit <= 0 {
		return nil, nil
	}
	embedding, err := s.embed(ctx, query)
	if err != nil {
		return nil, err
	}

	var memories []Memory
	err = resilience.Retry(ctx, s.cfg.Retry, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
		defer cancel()
		var queryErr error
		memories, queryErr = s.repo.QueryByDistance(callCtx, embedding, limit)
		return queryErr
	})
	if err != nil {
		return nil, fmt.Errorf("query memories: %w", err)
	}
	return memories, nil
}

// Consolidate merges near-duplicate memories. Each merge inserts the combined memory and
// deletes both sources in one transaction. Pairs whose merged content is not significant
// enough are left as they are. The first failing pair stops the pass.
func (s *LongTermStore) Consolidate(ctx context.Context) (ConsolidationReport, error) {
	start := s.now()
	report := ConsolidationReport{}

	var pairs []MergePair
	err := resilience.Retry(ctx, s.cfg.Retry, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
		defer cancel()
		var findErr error
		pairs, findErr = s.repo.FindMergeCandidates(callCtx, s.cfg.MergeDistance)
		return findErr
	})
	if err != nil {
		report.Duration = s.now().Sub(start)
		return report, fmt.Errorf("find merge candidates: %w", err)
	}
	report.Candidates = len(pairs)

	for _, pair := range pairs {
		merged, ok, err := s.mergePair(ctx, pair)
		if err != nil {
			report.Duration = s.now().Sub(start)
			return report, fmt.Errorf("merge memories %d and %d: %w", pair.First.ID, pair.Second.ID, err)
		}
		if !ok {
			report.Skipped++
			continue
		}
		report.Merged++
		report.MergedIDs = append(report.MergedIDs, merged.ID)
		s.logger.Info("memories consolidated",
			"first_id", pair.First.ID,
			"second_id", pair.Second.ID,
			"merged_id", merged.ID,
			"distance", pair.Distance,
		)
	}

	report.Duration = s.now().Sub(start)
	return report, nil
}

func (s *LongTermStore) mergePair(ctx context.Context, pair MergePair) (Memory, bool, error) {
	content := MergedContent(pair.First.Content, pair.Second.Content)

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	significance, _, err := s.scorer.Score(callCtx, content)
	cancel()
	if err != nil {
		return Memory{}, false, fmt.Errorf("score merged memory: %w", err)
	}
	if significance < s.StoreThreshold() {
		return Memory{}, false, nil
	}

	embedding, err := s.embed(ctx, content)
	if err != nil {
		return Memory{}, false, err
	}

	candidate := Memory{
		Content:      content,
		Embedding:    embedding,
		Significance: significance,
		CreatedAt:    s.now(),
	}

	var merged Memory
	err = resilience.Retry(ctx, s.cfg.Retry, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
		defer cancel()
		return s.repo.WithTx(callCtx, func(tx Repository) error {
			inserted, err := tx.Insert(callCtx, candidate)
			if err != nil {
				return err
			}
			deleted, err := tx.DeleteByIDs(callCtx, pair.First.ID, pair.Second.ID)
			if err != nil {
				return err
			}
			if deleted != 2 {
				return agenterrors.NewDataError("consolidate", fmt.Sprintf("expected to delete 2 memories, deleted %d", deleted))
			}
			merged = inserted
			return nil
		})
	})
	if err != nil {
		return Memory{}, false, err
	}
	return merged, true, nil
}

// MergedContent joins two memory contents into the consolidated form.
func MergedContent(a, b string) string {
	return "Consolidated memory: " + a + " | " + b
}

func (s *LongTermStore) embed(ctx context.Context, text string) ([]float32, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	defer cancel()

	embedding, err := s.embedder.Embed(callCtx, text)
	if err != nil {
		return nil, fmt.Errorf("embed memory: %w", err)
	}
	if s.cfg.Dimension > 0 && len(embedding) != s.cfg.Dimension {
		return nil, agenterrors.NewDataError("embed", fmt.Sprintf("embedding has %d dimensions, want %d", len(embedding), s.cfg.Dimension))
	}
	return embedding, nil
}

func failed(significance float64, err error) StoreResult {
	return StoreResult{Outcome: OutcomeFailed, Significance: significance, Err: err}
}

var _ LongTermMemory = (*LongTermStore)(nil)
