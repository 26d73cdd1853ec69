package cognition

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"

	"github.com/blueberrycongee/murmur/internal/memory"
)

// Policy holds the gates and limits of a cycle. It is replaced as a whole on config reload.
type Policy struct {
	// StoreThreshold gates persisting a thought; the thought must score strictly above it.
	StoreThreshold float64
	// PostThreshold gates posting; the thought must score strictly above it.
	PostThreshold float64
	// MinThoughtLength is the number of characters a thought must exceed to be posted.
	MinThoughtLength       int
	RecentPostsLimit       int
	ExternalContextLimit   int
	ShortTermSummarySize   int
	RelatedThoughtsLimit   int
	MemoryLimit            int
	InteractionMemoryLimit int
	// Handle is the agent's username without the leading @.
	Handle string
}

// DefaultPolicy returns the standard gates: 0.6 thresholds and a 20 character minimum.
func DefaultPolicy() Policy {
	return Policy{
		StoreThreshold:         memory.DefaultStoreThreshold,
		PostThreshold:          0.6,
		MinThoughtLength:       20,
		RecentPostsLimit:       10,
		ExternalContextLimit:   20,
		ShortTermSummarySize:   5,
		RelatedThoughtsLimit:   3,
		MemoryLimit:            5,
		InteractionMemoryLimit: 3,
	}
}

// ShouldPersist reports whether a thought is significant enough to remember.
func (p Policy) ShouldPersist(significance float64) bool {
	return significance > p.StoreThreshold
}

// ShouldPost reports whether a thought warrants a post.
func (p Policy) ShouldPost(significance float64, thought string) bool {
	return significance > p.PostThreshold && utf8.RuneCountInString(thought) > p.MinThoughtLength
}

// ShouldRespond reports whether an interaction is addressed to the agent: it mentions the
// handle (case-insensitively) or replies to one of its posts.
func (p Policy) ShouldRespond(in Interaction) bool {
	if in.InReplyToID != "" {
		return true
	}
	handle := strings.TrimPrefix(strings.TrimSpace(p.Handle), "@")
	if handle == "" {
		return false
	}
	folder := cases.Fold()
	return strings.Contains(folder.String(in.Text), folder.String("@"+handle))
}
