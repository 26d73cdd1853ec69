package cognition

import "context"

// PostSource supplies the agent's own recent posts.
type PostSource interface {
	RecentPosts(ctx context.Context, limit int) ([]Post, error)
}

// ExternalSource supplies external context lines.
type ExternalSource interface {
	ExternalContext(ctx context.Context, limit int) ([]string, error)
}

// Sources combines separate post and external context sources into a ContextSource.
// A nil External yields no external context.
type Sources struct {
	Posts    PostSource
	External ExternalSource
}

// RecentPosts implements ContextSource.
func (s Sources) RecentPosts(ctx context.Context, limit int) ([]Post, error) {
	if s.Posts == nil {
		return nil, nil
	}
	return s.Posts.RecentPosts(ctx, limit)
}

// ExternalContext implements ContextSource.
func (s Sources) ExternalContext(ctx context.Context, limit int) ([]string, error) {
	if s.External == nil {
		return nil, nil
	}
	return s.External.ExternalContext(ctx, limit)
}

var _ ContextSource = Sources{}
