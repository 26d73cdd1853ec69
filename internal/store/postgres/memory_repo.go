package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/blueberrycongee/murmur/internal/memory"
	agenterrors "github.com/blueberrycongee/murmur/pkg/errors"
)

const (
	insertMemorySQL = `INSERT INTO long_term_memories (content, embedding, significance_score, created_at)
VALUES ($1, $2, $3, COALESCE($4, now()))
RETURNING id, created_at`

	queryMemoriesSQL = `SELECT id, content, embedding, significance_score, created_at
FROM long_term_memories
ORDER BY embedding <=> $1 ASC, created_at DESC, id DESC
LIMIT $2`

	deleteMemoriesSQL = `DELETE FROM long_term_memories WHERE id = ANY($1)`

	mergeCandidatesSQL = `SELECT m1.id, m1.content, m1.embedding, m1.significance_score, m1.created_at,
       m2.id, m2.content, m2.embedding, m2.significance_score, m2.created_at,
       m1.embedding <=> m2.embedding AS distance
FROM long_term_memories m1
JOIN long_term_memories m2 ON m1.id < m2.id
WHERE m1.embedding <=> m2.embedding < $1
ORDER BY distance ASC, m1.id ASC, m2.id ASC`
)

// MemoryRepository implements memory.Repository on the long_term_memories table.
type MemoryRepository struct {
	db *sql.DB
	q  querier
}

// NewMemoryRepository creates a repository over db.
func NewMemoryRepository(db *sql.DB) *MemoryRepository {
	return &MemoryRepository{db: db, q: db}
}

// Insert persists m and returns it with the generated ID.
func (r *MemoryRepository) Insert(ctx context.Context, m memory.Memory) (memory.Memory, error) {
	createdAt := sql.NullTime{Time: m.CreatedAt, Valid: !m.CreatedAt.IsZero()}
	row := r.q.QueryRowContext(ctx, insertMemorySQL, m.Content, Vector(m.Embedding), m.Significance, createdAt)
	if err := row.Scan(&m.ID, &m.CreatedAt); err != nil {
		return memory.Memory{}, classify("insert memory", err)
	}
	return m, nil
}

// QueryByDistance returns the limit closest memories by cosine distance.
func (r *MemoryRepository) QueryByDistance(ctx context.Context, vector []float32, limit int) ([]memory.Memory, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := r.q.QueryContext(ctx, queryMemoriesSQL, Vector(vector), limit)
	if err != nil {
		return nil, classify("query memories", err)
	}
	defer rows.Close()

	var out []memory.Memory
	for rows.Next() {
		var (
			m   memory.Memory
			vec Vector
		)
		if err := rows.Scan(&m.ID, &m.Content, &vec, &m.Significance, &m.CreatedAt); err != nil {
			return nil, classify("scan memory", err)
		}
		m.Embedding = vec
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("query memories", err)
	}
	return out, nil
}

// DeleteByIDs removes the given memories.
func (r *MemoryRepository) DeleteByIDs(ctx context.Context, ids ...int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := r.q.ExecContext(ctx, deleteMemoriesSQL, pq.Array(ids))
	if err != nil {
		return 0, classify("delete memories", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, classify("delete memories", err)
	}
	return n, nil
}

// FindMergeCandidates returns disjoint pairs closer than maxDistance, closest first.
func (r *MemoryRepository) FindMergeCandidates(ctx context.Context, maxDistance float64) ([]memory.MergePair, error) {
	rows, err := r.q.QueryContext(ctx, mergeCandidatesSQL, maxDistance)
	if err != nil {
		return nil, classify("find merge candidates", err)
	}
	defer rows.Close()

	var pairs []memory.MergePair
	for rows.Next() {
		var (
			p          memory.MergePair
			vec1, vec2 Vector
		)
		if err := rows.Scan(
			&p.First.ID, &p.First.Content, &vec1, &p.First.Significance, &p.First.CreatedAt,
			&p.Second.ID, &p.Second.Content, &vec2, &p.Second.Significance, &p.Second.CreatedAt,
			&p.Distance,
		); err != nil {
			return nil, classify("scan merge candidate", err)
		}
		p.First.Embedding = vec1
		p.Second.Embedding = vec2
		pairs = append(pairs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("find merge candidates", err)
	}
	return memory.DisjointPairs(pairs), nil
}

// WithTx runs fn in a transaction. It commits when fn returns nil and rolls back otherwise.
func (r *MemoryRepository) WithTx(ctx context.Context, fn func(tx memory.Repository) error) error {
	if r.db == nil {
		return agenterrors.NewDataError("begin transaction", "nested transactions are not supported")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return classify("begin transaction", err)
	}

	if err := fn(&MemoryRepository{q: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return classify("commit transaction", err)
	}
	return nil
}

var _ memory.Repository = (*MemoryRepository)(nil)
