package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/cases"

	agenterrors "github.com/blueberrycongee/murmur/pkg/errors"
)

// Rating bounds accepted from the provider.
const (
	MinRating = 1
	MaxRating = 10
)

// DefaultEmotionalKeywords is the keyword set used for the emotional-impact heuristic.
var DefaultEmotionalKeywords = []string{
	"love", "hate", "amazing", "terrible", "excited",
	"angry", "sad", "happy", "worried", "confident",
	"afraid", "proud", "disgusted", "surprised", "peaceful",
}

// ScoringWeights are the coefficients of the combined significance score.
type ScoringWeights struct {
	Base        float64 `yaml:"base"`
	Novelty     float64 `yaml:"novelty"`
	Emotional   float64 `yaml:"emotional"`
	Relevance   float64 `yaml:"relevance"`
	Persistence float64 `yaml:"persistence"`
}

// ScoringConfig configures a SignificanceScorer.
type ScoringConfig struct {
	Weights ScoringWeights
	// DefaultRelevance and DefaultPersistence are placeholders until real signals exist.
	DefaultRelevance   float64
	DefaultPersistence float64
	EmotionalKeywords  []string
}

// DefaultScoringConfig returns the standard 0.4/0.2/0.2/0.1/0.1 weighting.
func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		Weights: ScoringWeights{
			Base:        0.4,
			Novelty:     0.2,
			Emotional:   0.2,
			Relevance:   0.1,
			Persistence: 0.1,
		},
		DefaultRelevance:   0.5,
		DefaultPersistence: 0.5,
		EmotionalKeywords:  DefaultEmotionalKeywords,
	}
}

// SignificanceScorer blends a provider rating with local text heuristics.
type SignificanceScorer struct {
	rater    Rater
	cfg      ScoringConfig
	keywords map[string]struct{}
	prompt   func(content string) string
	logger   *slog.Logger
}

// ScorerOption customizes a SignificanceScorer.
type ScorerOption func(*SignificanceScorer)

// WithScoringPrompt replaces the rating prompt builder.
func WithScoringPrompt(fn func(content string) string) ScorerOption {
	return func(s *SignificanceScorer) {
		if fn != nil {
			s.prompt = fn
		}
	}
}

// WithScorerLogger sets the logger used for score breakdowns.
func WithScorerLogger(logger *slog.Logger) ScorerOption {
	return func(s *SignificanceScorer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSignificanceScorer creates a scorer backed by rater.
func NewSignificanceScorer(rater Rater, cfg ScoringConfig, opts ...ScorerOption) *SignificanceScorer {
	if len(cfg.EmotionalKeywords) == 0 {
		cfg.EmotionalKeywords = DefaultEmotionalKeywords
	}
	s := &SignificanceScorer{
		rater:    rater,
		cfg:      cfg,
		keywords: make(map[string]struct{}, len(cfg.EmotionalKeywords)),
		prompt:   SignificancePrompt,
		logger:   slog.Default(),
	}
	for _, kw := range cfg.EmotionalKeywords {
		s.keywords[fold(kw)] = struct{}{}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Score returns the combined significance of content together with the heuristics used.
func (s *SignificanceScorer) Score(ctx context.Context, content string) (float64, ScoringMetrics, error) {
	rating, err := s.rater.Rate(ctx, s.prompt(content))
	if err != nil {
		return 0, ScoringMetrics{}, fmt.Errorf("rate significance: %w", err)
	}
	if err := ValidateRating(rating); err != nil {
		return 0, ScoringMetrics{}, err
	}

	base := float64(rating) / MaxRating
	metrics := s.Heuristics(content)
	score := s.Combine(base, metrics)

	s.logger.Debug("memory significance",
		"score", score,
		"base", base,
		"novelty", metrics.Novelty,
		"emotional_impact", metrics.EmotionalImpact,
	)
	return score, metrics, nil
}

// Heuristics computes the local metrics for content. Content without words scores 0 on
// novelty and emotional impact.
func (s *SignificanceScorer) Heuristics(content string) ScoringMetrics {
	metrics := ScoringMetrics{
		Relevance:   clamp01(s.cfg.DefaultRelevance),
		Persistence: clamp01(s.cfg.DefaultPersistence),
	}

	words := strings.Fields(content)
	if len(words) == 0 {
		return metrics
	}

	distinct := make(map[string]struct{}, len(words))
	emotional := 0
	for _, w := range words {
		distinct[w] = struct{}{}
		if _, ok := s.keywords[fold(trimPunct(w))]; ok {
			emotional++
		}
	}

	total := float64(len(words))
	metrics.Novelty = clamp01(float64(len(distinct)) / total)
	metrics.EmotionalImpact = clamp01(float64(emotional) / total)
	return metrics
}

// Combine applies the configured weights and clamps the result to [0,1].
func (s *SignificanceScorer) Combine(base float64, m ScoringMetrics) float64 {
	w := s.cfg.Weights
	return clamp01(w.Base*base +
		w.Novelty*m.Novelty +
		w.Emotional*m.EmotionalImpact +
		w.Relevance*m.Relevance +
		w.Persistence*m.Persistence)
}

// ValidateRating rejects ratings outside [MinRating, MaxRating].
func ValidateRating(rating int) error {
	if rating < MinRating || rating > MaxRating {
		return agenterrors.NewParseError("rate", fmt.Sprintf("rating %d outside [%d,%d]", rating, MinRating, MaxRating), nil)
	}
	return nil
}

// ParseRating parses raw provider output into a rating. Only a bare integer in
// [MinRating, MaxRating] is accepted; anything else is a ParseError.
func ParseRating(raw string) (int, error) {
	trimmed := strings.TrimSpace(raw)
	rating, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, agenterrors.NewParseError("rate", fmt.Sprintf("rating %q is not an integer", trimmed), err)
	}
	if err := ValidateRating(rating); err != nil {
		return 0, err
	}
	return rating, nil
}

// SignificancePrompt builds the default 1..10 rating prompt.
func SignificancePrompt(content string) string {
	return fmt.Sprintf(`On a scale of 1-10, rate the significance of the following memory:

"%s"

Use the following guidelines:
1: Trivial, everyday occurrence with no lasting impact
3: Mildly interesting or slightly unusual event
5: Noteworthy occurrence that might be remembered for a few days
7: Important event with potential long-term impact
10: Life-changing or historically significant event

Provide only the numerical score as your response and NOTHING ELSE.`, content)
}

func fold(s string) string {
	// Casers are stateful; one per call keeps the scorer safe for concurrent use.
	return cases.Fold().String(s)
}

func trimPunct(s string) string {
	return strings.TrimFunc(s, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSymbol(r)
	})
}

func clamp01(v float64) float64 {
	switch {
	case v != v: // NaN
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
