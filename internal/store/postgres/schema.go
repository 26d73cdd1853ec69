package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// Schema returns the DDL for the given embedding dimension.
func Schema(dimension int) []string {
	return []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS long_term_memories (
    id BIGSERIAL PRIMARY KEY,
    content TEXT NOT NULL,
    embedding vector(%d) NOT NULL,
    significance_score REAL NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, dimension),
		`CREATE INDEX IF NOT EXISTS long_term_memories_embedding_idx
    ON long_term_memories USING hnsw (embedding vector_cosine_ops)`,
		`CREATE TABLE IF NOT EXISTS posts (
    id BIGSERIAL PRIMARY KEY,
    content TEXT NOT NULL,
    username TEXT NOT NULL,
    post_type TEXT NOT NULL DEFAULT 'post',
    remote_id TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
		`CREATE INDEX IF NOT EXISTS posts_created_at_idx ON posts (created_at DESC)`,
	}
}

// EnsureSchema creates the extension, tables and indexes if they do not exist.
func EnsureSchema(ctx context.Context, db *sql.DB, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("invalid embedding dimension %d", dimension)
	}
	for _, stmt := range Schema(dimension) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return classify("ensure schema", err)
		}
	}
	return nil
}
