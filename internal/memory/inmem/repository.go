package inmem

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/blueberrycongee/murmur/internal/memory"
	agenterrors "github.com/blueberrycongee/murmur/pkg/errors"
)

// Repository is a thread-safe in-memory memory.Repository.
// It performs brute-force cosine distance search. Transactions work on a copy of the
// table that replaces the live one only when the callback succeeds.
type Repository struct {
	mu    sync.Mutex
	table *table

	failMu   sync.Mutex
	failures map[string]error
}

type table struct {
	rows   map[int64]memory.Memory
	nextID int64
}

// NewRepository creates an empty repository.
func NewRepository() *Repository {
	return &Repository{
		table:    &table{rows: make(map[int64]memory.Memory), nextID: 1},
		failures: make(map[string]error),
	}
}

// FailNext makes the next call of op ("insert", "query", "delete", "candidates") return err.
func (r *Repository) FailNext(op string, err error) {
	r.failMu.Lock()
	defer r.failMu.Unlock()
	r.failures[op] = err
}

func (r *Repository) injected(op string) error {
	r.failMu.Lock()
	defer r.failMu.Unlock()
	err, ok := r.failures[op]
	if !ok {
		return nil
	}
	delete(r.failures, op)
	return err
}

// Insert stores m and assigns it the next ID.
func (r *Repository) Insert(ctx context.Context, m memory.Memory) (memory.Memory, error) {
	if err := r.injected("insert"); err != nil {
		return memory.Memory{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.table.insert(m), nil
}

// QueryByDistance returns the closest memories to vector.
func (r *Repository) QueryByDistance(ctx context.Context, vector []float32, limit int) ([]memory.Memory, error) {
	if err := r.injected("query"); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.table.query(vector, limit), nil
}

// DeleteByIDs removes the given rows.
func (r *Repository) DeleteByIDs(ctx context.Context, ids ...int64) (int64, error) {
	if err := r.injected("delete"); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.table.delete(ids), nil
}

// FindMergeCandidates returns disjoint pairs closer than maxDistance.
func (r *Repository) FindMergeCandidates(ctx context.Context, maxDistance float64) ([]memory.MergePair, error) {
	if err := r.injected("candidates"); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.table.candidates(maxDistance), nil
}

// WithTx runs fn against a snapshot and publishes it on success. Writers are serialized for
// the duration of the transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(tx memory.Repository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx := &txRepository{parent: r, table: r.table.clone()}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return agenterrors.NewStorageError("commit", "context done before commit", err)
	}
	r.table = tx.table
	return nil
}

// All returns every stored memory ordered by ID.
func (r *Repository) All() []memory.Memory {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]memory.Memory, 0, len(r.table.rows))
	for _, m := range r.table.rows {
		out = append(out, copyMemory(m))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of stored memories.
func (r *Repository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.table.rows)
}

type txRepository struct {
	parent *Repository
	table  *table
}

func (t *txRepository) Insert(ctx context.Context, m memory.Memory) (memory.Memory, error) {
	if err := t.parent.injected("insert"); err != nil {
		return memory.Memory{}, err
	}
	return t.table.insert(m), nil
}

func (t *txRepository) QueryByDistance(ctx context.Context, vector []float32, limit int) ([]memory.Memory, error) {
	if err := t.parent.injected("query"); err != nil {
		return nil, err
	}
	return t.table.query(vector, limit), nil
}

func (t *txRepository) DeleteByIDs(ctx context.Context, ids ...int64) (int64, error) {
	if err := t.parent.injected("delete"); err != nil {
		return 0, err
	}
	return t.table.delete(ids), nil
}

func (t *txRepository) FindMergeCandidates(ctx context.Context, maxDistance float64) ([]memory.MergePair, error) {
	if err := t.parent.injected("candidates"); err != nil {
		return nil, err
	}
	return t.table.candidates(maxDistance), nil
}

func (t *txRepository) WithTx(ctx context.Context, fn func(tx memory.Repository) error) error {
	return fmt.Errorf("nested transactions are not supported")
}

func (t *table) insert(m memory.Memory) memory.Memory {
	m = copyMemory(m)
	m.ID = t.nextID
	t.nextID++
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	t.rows[m.ID] = m
	return copyMemory(m)
}

func (t *table) query(vector []float32, limit int) []memory.Memory {
	if limit <= 0 {
		return nil
	}

	type scored struct {
		m        memory.Memory
		distance float64
	}
	results := make([]scored, 0, len(t.rows))
	for _, m := range t.rows {
		if len(m.Embedding) != len(vector) {
			continue
		}
		results = append(results, scored{m: m, distance: memory.CosineDistance(vector, m.Embedding)})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].distance != results[j].distance {
			return results[i].distance < results[j].distance
		}
		if !results[i].m.CreatedAt.Equal(results[j].m.CreatedAt) {
			return results[i].m.CreatedAt.After(results[j].m.CreatedAt)
		}
		return results[i].m.ID > results[j].m.ID
	})

	if len(results) > limit {
		results = results[:limit]
	}
	out := make([]memory.Memory, len(results))
	for i, res := range results {
		out[i] = copyMemory(res.m)
	}
	return out
}

func (t *table) delete(ids []int64) int64 {
	var n int64
	for _, id := range ids {
		if _, ok := t.rows[id]; ok {
			delete(t.rows, id)
			n++
		}
	}
	return n
}

func (t *table) candidates(maxDistance float64) []memory.MergePair {
	ids := make([]int64, 0, len(t.rows))
	for id := range t.rows {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var pairs []memory.MergePair
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			a, b := t.rows[ids[i]], t.rows[ids[j]]
			if len(a.Embedding) != len(b.Embedding) {
				continue
			}
			d := memory.CosineDistance(a.Embedding, b.Embedding)
			if d < maxDistance {
				pairs = append(pairs, memory.MergePair{First: copyMemory(a), Second: copyMemory(b), Distance: d})
			}
		}
	}
	return memory.DisjointPairs(pairs)
}

func (t *table) clone() *table {
	rows := make(map[int64]memory.Memory, len(t.rows))
	for id, m := range t.rows {
		rows[id] = m
	}
	return &table{rows: rows, nextID: t.nextID}
}

func copyMemory(m memory.Memory) memory.Memory {
	if m.Embedding != nil {
		emb := make([]float32, len(m.Embedding))
		copy(emb, m.Embedding)
		m.Embedding = emb
	}
	return m
}

var _ memory.Repository = (*Repository)(nil)
