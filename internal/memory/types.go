package memory

import (
	"fmt"
	"time"
)

// Memory is a persisted long-term memory. Significance is fixed at creation; consolidation
// replaces rows instead of editing them.
type Memory struct {
	ID           int64     `json:"id"`
	Content      string    `json:"content"`
	Embedding    []float32 `json:"embedding,omitempty"`
	Significance float64   `json:"significance"`
	CreatedAt    time.Time `json:"created_at"`
}

// FormatForPrompt renders the memory the way prompts expect it.
func (m Memory) FormatForPrompt() string {
	return fmt.Sprintf("[Memory: %.2f significance] %s", m.Significance, m.Content)
}

// SourceType records where a short-term entry came from.
type SourceType int

const (
	SourceExternalContext SourceType = iota
	SourceInternalThought
	SourceInteraction
	SourceObservation
)

func (s SourceType) String() string {
	switch s {
	case SourceExternalContext:
		return "external_context"
	case SourceInternalThought:
		return "internal_thought"
	case SourceInteraction:
		return "interaction"
	case SourceObservation:
		return "observation"
	default:
		return "unknown"
	}
}

// ShortTermEntry is an ephemeral record held by ShortTermMemory.
type ShortTermEntry struct {
	Content   string     `json:"content"`
	Timestamp time.Time  `json:"timestamp"`
	Embedding []float32  `json:"embedding,omitempty"`
	Source    SourceType `json:"source"`
}

// ScoringMetrics are the local heuristics computed for one scoring call.
type ScoringMetrics struct {
	Novelty         float64 `json:"novelty"`
	EmotionalImpact float64 `json:"emotional_impact"`
	// Relevance and Persistence are fixed placeholders until a real signal exists.
	Relevance   float64 `json:"relevance"`
	Persistence float64 `json:"persistence"`
}

// Outcome tags the result of a store attempt.
type Outcome int

const (
	// OutcomeStored means a row was written.
	OutcomeStored Outcome = iota
	// OutcomeSkipped means the content was below the significance threshold. Not a failure.
	OutcomeSkipped
	// OutcomeFailed means embedding, scoring or persistence failed; Err carries the reason.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeStored:
		return "stored"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// StoreResult is returned by LongTermStore.Store and StoreScored.
type StoreResult struct {
	Outcome      Outcome
	Memory       *Memory
	Significance float64
	Err          error
}

// Stored reports whether a row was written.
func (r StoreResult) Stored() bool { return r.Outcome == OutcomeStored }

// Skipped reports whether the content was rejected by policy.
func (r StoreResult) Skipped() bool { return r.Outcome == OutcomeSkipped }

// Failed reports whether the attempt failed.
func (r StoreResult) Failed() bool { return r.Outcome == OutcomeFailed }

// MergePair is a pair of near-duplicate memories found by the repository. First.ID < Second.ID.
type MergePair struct {
	First    Memory
	Second   Memory
	Distance float64
}

// ConsolidationReport summarizes one consolidation pass.
type ConsolidationReport struct {
	Candidates int           `json:"candidates"`
	Merged     int           `json:"merged"`
	Skipped    int           `json:"skipped"`
	MergedIDs  []int64       `json:"merged_ids,omitempty"`
	Duration   time.Duration `json:"duration"`
}
