package postgres

import (
	"context"
	"database/sql"

	"github.com/blueberrycongee/murmur/internal/cognition"
)

const (
	recentPostsSQL = `SELECT content, username, post_type, remote_id, created_at
FROM posts
ORDER BY created_at DESC, id DESC
LIMIT $1`

	insertPostSQL = `INSERT INTO posts (content, username, post_type, remote_id, created_at)
VALUES ($1, $2, $3, $4, COALESCE($5, now()))`
)

// PostRepository stores the agent's published posts.
type PostRepository struct {
	db *sql.DB
}

// NewPostRepository creates a repository over db.
func NewPostRepository(db *sql.DB) *PostRepository {
	return &PostRepository{db: db}
}

// RecentPosts returns up to limit posts, newest first.
func (r *PostRepository) RecentPosts(ctx context.Context, limit int) ([]cognition.Post, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, recentPostsSQL, limit)
	if err != nil {
		return nil, classify("recent posts", err)
	}
	defer rows.Close()

	var out []cognition.Post
	for rows.Next() {
		var (
			p        cognition.Post
			kind     string
			remoteID sql.NullString
		)
		if err := rows.Scan(&p.Content, &p.Username, &kind, &remoteID, &p.Timestamp); err != nil {
			return nil, classify("scan post", err)
		}
		p.Kind = cognition.PostKind(kind)
		p.RemoteID = remoteID.String
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("recent posts", err)
	}
	return out, nil
}

// Record inserts a published post.
func (r *PostRepository) Record(ctx context.Context, post cognition.Post) error {
	kind := post.Kind
	if kind == "" {
		kind = cognition.PostKindPost
	}
	remoteID := sql.NullString{String: post.RemoteID, Valid: post.RemoteID != ""}
	createdAt := sql.NullTime{Time: post.Timestamp, Valid: !post.Timestamp.IsZero()}
	_, err := r.db.ExecContext(ctx, insertPostSQL, post.Content, post.Username, string(kind), remoteID, createdAt)
	return classify("record post", err)
}

var _ cognition.PostRecorder = (*PostRepository)(nil)
