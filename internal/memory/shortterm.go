package memory

import (
	"sort"
	"sync"
)

// DefaultShortTermCapacity is used when a non-positive capacity is requested.
const DefaultShortTermCapacity = 100

// ShortTermMemory is a bounded FIFO buffer of recent entries. All access is serialized by a
// mutex, so a reader never observes a half-evicted buffer.
type ShortTermMemory struct {
	mu       sync.Mutex
	entries  []ShortTermEntry
	head     int // index of the oldest entry
	size     int
	capacity int
}

// NewShortTermMemory creates an empty buffer holding at most capacity entries.
func NewShortTermMemory(capacity int) *ShortTermMemory {
	if capacity <= 0 {
		capacity = DefaultShortTermCapacity
	}
	return &ShortTermMemory{
		entries:  make([]ShortTermEntry, capacity),
		capacity: capacity,
	}
}

// Append adds entry at the tail, evicting the oldest entry first when the buffer is full.
func (s *ShortTermMemory) Append(entry ShortTermEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.size >= s.capacity {
		s.entries[s.head] = entry
		s.head = (s.head + 1) % s.capacity
		return
	}
	s.entries[(s.head+s.size)%s.capacity] = entry
	s.size++
}

// Relevant returns up to k entries ordered by descending cosine similarity to query.
// Equal similarities are ordered most recent first.
func (s *ShortTermMemory) Relevant(query []float32, k int) []ShortTermEntry {
	if k <= 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	type scored struct {
		pos   int // 0 is the oldest entry
		score float64
	}

	results := make([]scored, s.size)
	for i := 0; i < s.size; i++ {
		e := &s.entries[(s.head+i)%s.capacity]
		results[i] = scored{pos: i, score: CosineSimilarity(query, e.Embedding)}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		return results[i].pos > results[j].pos
	})

	if k > len(results) {
		k = len(results)
	}
	out := make([]ShortTermEntry, k)
	for i := 0; i < k; i++ {
		out[i] = s.entries[(s.head+results[i].pos)%s.capacity]
	}
	return out
}

// Recent returns up to n entries, newest first.
func (s *ShortTermMemory) Recent(n int) []ShortTermEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n > s.size {
		n = s.size
	}
	if n <= 0 {
		return nil
	}
	out := make([]ShortTermEntry, n)
	for i := 0; i < n; i++ {
		out[i] = s.entries[(s.head+s.size-1-i)%s.capacity]
	}
	return out
}

// Snapshot returns a copy of the buffer, oldest first.
func (s *ShortTermMemory) Snapshot() []ShortTermEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]ShortTermEntry, s.size)
	for i := 0; i < s.size; i++ {
		out[i] = s.entries[(s.head+i)%s.capacity]
	}
	return out
}

// Len returns the number of buffered entries.
func (s *ShortTermMemory) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// Capacity returns the maximum number of entries.
func (s *ShortTermMemory) Capacity() int {
	return s.capacity
}
