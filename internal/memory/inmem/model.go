package inmem

import (
	"context"
	"strings"
	"sync"
)

// Rule maps prompts containing Match to a canned completion.
type Rule struct {
	Match      string
	Completion string
}

// ScriptedModel is a deterministic stand-in for a completion provider. It answers prompts by
// rule instead of mocking call expectations, so the data still flows through the real stages.
type ScriptedModel struct {
	mu       sync.Mutex
	rules    []Rule
	fallback string
	rating   int
	prompts  []string
}

// NewScriptedModel creates a model that answers unmatched prompts with fallback and rates
// everything with rating.
func NewScriptedModel(fallback string, rating int, rules ...Rule) *ScriptedModel {
	return &ScriptedModel{rules: rules, fallback: fallback, rating: rating}
}

// Complete returns the completion of the first rule whose Match appears in prompt.
func (m *ScriptedModel) Complete(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, prompt)

	for _, rule := range m.rules {
		if strings.Contains(prompt, rule.Match) {
			return rule.Completion, nil
		}
	}
	return m.fallback, nil
}

// Rate returns the configured rating.
func (m *ScriptedModel) Rate(ctx context.Context, prompt string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, prompt)
	return m.rating, nil
}

// SetRating changes the rating returned by Rate.
func (m *ScriptedModel) SetRating(rating int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rating = rating
}

// Prompts returns every prompt received so far.
func (m *ScriptedModel) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.prompts))
	copy(out, m.prompts)
	return out
}
