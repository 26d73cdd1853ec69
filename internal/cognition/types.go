package cognition

import (
	"context"
	"time"

	"github.com/blueberrycongee/murmur/internal/memory"
)

// PostKind distinguishes original posts from replies.
type PostKind string

const (
	PostKindPost  PostKind = "post"
	PostKindReply PostKind = "reply"
)

// Post is a message the agent has published.
type Post struct {
	Content   string    `json:"content"`
	Username  string    `json:"username"`
	Timestamp time.Time `json:"timestamp"`
	Kind      PostKind  `json:"kind,omitempty"`
	RemoteID  string    `json:"remote_id,omitempty"`
}

// Interaction is an inbound message addressed to or replying to the agent.
type Interaction struct {
	ID          string    `json:"id"`
	AuthorID    string    `json:"author_id,omitempty"`
	Author      string    `json:"author,omitempty"`
	Text        string    `json:"text"`
	InReplyToID string    `json:"in_reply_to_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Completer generates free text from a prompt.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// ContextSource supplies the agent's own recent posts and external context lines.
type ContextSource interface {
	RecentPosts(ctx context.Context, limit int) ([]Post, error)
	ExternalContext(ctx context.Context, limit int) ([]string, error)
}

// ActionSink publishes posts and replies, returning the remote identifier.
type ActionSink interface {
	Publish(ctx context.Context, content string) (string, error)
	Reply(ctx context.Context, content, targetID string) (string, error)
}

// PostRecorder keeps a record of published posts so later cycles see them as recent posts.
type PostRecorder interface {
	Record(ctx context.Context, post Post) error
}

// InteractionSource yields interactions newer than sinceID, oldest first.
type InteractionSource interface {
	Mentions(ctx context.Context, sinceID string) ([]Interaction, error)
}

// ThoughtContext is everything the thought prompt is built from. It is built once per cycle
// and passed by value.
type ThoughtContext struct {
	RecentPosts      []Post
	ExternalContext  []string
	ShortTermSummary []memory.ShortTermEntry
}

// PostContext is everything the post prompt is built from.
type PostContext struct {
	Thought string
	Context ThoughtContext
	// Memories are the long-term memories recalled for the thought.
	Memories []memory.Memory
	// RelatedThoughts are earlier short-term entries closest to the thought.
	RelatedThoughts []memory.ShortTermEntry
}

// CycleResult describes one completed cognitive cycle.
type CycleResult struct {
	CycleID      string
	Thought      string
	Significance float64
	Metrics      memory.ScoringMetrics
	Stored       memory.StoreResult
	Memories     []memory.Memory
	Post         string
	RemoteID     string
	Acted        bool
	Wallets      []string
}

// InteractionResult describes the handling of one interaction.
type InteractionResult struct {
	InteractionID string
	Responded     bool
	Response      string
	RemoteID      string
	Memories      []memory.Memory
}

// Archiver keeps a durable record of what the agent published and consolidated.
type Archiver interface {
	ArchivePost(ctx context.Context, post Post) error
	ArchiveConsolidation(ctx context.Context, report memory.ConsolidationReport) error
}
