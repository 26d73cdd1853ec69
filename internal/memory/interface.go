package memory

import (
	"context"
)

// Embedder maps text to a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Rater asks a completion provider for a 1..10 significance rating of a prompt.
type Rater interface {
	Rate(ctx context.Context, prompt string) (int, error)
}

// Scorer computes a significance score in [0,1] for content.
type Scorer interface {
	Score(ctx context.Context, content string) (float64, ScoringMetrics, error)
}

// Repository is the persistence boundary for long-term memories.
type Repository interface {
	// Insert persists m and returns it with ID and CreatedAt populated.
	Insert(ctx context.Context, m Memory) (Memory, error)
	// QueryByDistance returns up to limit memories ordered by ascending vector distance, newest first on ties.
	QueryByDistance(ctx context.Context, vector []float32, limit int) ([]Memory, error)
	// DeleteByIDs removes the given rows and returns how many were deleted.
	DeleteByIDs(ctx context.Context, ids ...int64) (int64, error)
	// FindMergeCandidates returns disjoint pairs of memories whose distance is below maxDistance.
	FindMergeCandidates(ctx context.Context, maxDistance float64) ([]MergePair, error)
	// WithTx runs fn against a transactional view of the repository. The transaction commits
	// when fn returns nil and rolls back otherwise.
	WithTx(ctx context.Context, fn func(tx Repository) error) error
}

// LongTermMemory is the contract the cognition layer depends on.
type LongTermMemory interface {
	Store(ctx context.Context, content string) StoreResult
	StoreScored(ctx context.Context, content string, significance float64) StoreResult
	Persist(ctx context.Context, content string, significance float64) StoreResult
	RetrieveRelevant(ctx context.Context, query string, limit int) ([]Memory, error)
	Consolidate(ctx context.Context) (ConsolidationReport, error)
}
