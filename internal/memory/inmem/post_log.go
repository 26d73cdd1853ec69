package inmem

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/blueberrycongee/murmur/internal/cognition"
)

// PostLog is a thread-safe in-memory post history. It doubles as a dry-run action sink and a
// queue of interactions, so the agent can run without any external service.
type PostLog struct {
	mu           sync.RWMutex
	username     string
	posts        []cognition.Post
	external     []string
	interactions []cognition.Interaction
	nextID       int
}

// NewPostLog creates an empty log that records published posts under username.
func NewPostLog(username string) *PostLog {
	return &PostLog{username: username}
}

// RecentPosts returns up to limit posts, newest first.
func (l *PostLog) RecentPosts(ctx context.Context, limit int) ([]cognition.Post, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]cognition.Post, len(l.posts))
	copy(out, l.posts)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ExternalContext returns up to limit of the configured context lines.
func (l *PostLog) ExternalContext(ctx context.Context, limit int) ([]string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	n := len(l.external)
	if limit >= 0 && n > limit {
		n = limit
	}
	out := make([]string, n)
	copy(out, l.external[:n])
	return out, nil
}

// SetExternalContext replaces the external context lines.
func (l *PostLog) SetExternalContext(lines ...string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.external = append([]string(nil), lines...)
}

// Record appends post to the history.
func (l *PostLog) Record(ctx context.Context, post cognition.Post) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if post.Timestamp.IsZero() {
		post.Timestamp = time.Now()
	}
	if post.Username == "" {
		post.Username = l.username
	}
	l.posts = append(l.posts, post)
	return nil
}

// Publish pretends to publish content and returns a local identifier.
func (l *PostLog) Publish(ctx context.Context, content string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	return fmt.Sprintf("local-%d", l.nextID), nil
}

// Reply pretends to reply to targetID and returns a local identifier.
func (l *PostLog) Reply(ctx context.Context, content, targetID string) (string, error) {
	return l.Publish(ctx, content)
}

// Enqueue adds interactions to be returned by Mentions.
func (l *PostLog) Enqueue(interactions ...cognition.Interaction) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.interactions = append(l.interactions, interactions...)
}

// Mentions drains the queued interactions. sinceID is ignored because drained
// interactions are never returned twice.
func (l *PostLog) Mentions(ctx context.Context, sinceID string) ([]cognition.Interaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.interactions
	l.interactions = nil
	return out, nil
}

var (
	_ cognition.ContextSource     = (*PostLog)(nil)
	_ cognition.ActionSink        = (*PostLog)(nil)
	_ cognition.PostRecorder      = (*PostLog)(nil)
	_ cognition.InteractionSource = (*PostLog)(nil)
)
