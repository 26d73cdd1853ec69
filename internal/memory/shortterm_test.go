package memory

import (
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(content string, vec ...float32) ShortTermEntry {
	return ShortTermEntry{
		Content:   content,
		Timestamp: time.Now(),
		Embedding: vec,
		Source:    SourceInternalThought,
	}
}

func TestShortTermMemory_EvictsOldestFirst(t *testing.T) {
	stm := NewShortTermMemory(3)
	for i := 0; i < 4; i++ {
		stm.Append(entry(fmt.Sprintf("e%d", i), 1, 0))
	}

	require.Equal(t, 3, stm.Len())
	snap := stm.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, "e1", snap[0].Content)
	assert.Equal(t, "e3", snap[2].Content)
}

func TestShortTermMemory_DefaultCapacity(t *testing.T) {
	stm := NewShortTermMemory(0)
	assert.Equal(t, DefaultShortTermCapacity, stm.Capacity())

	for i := 0; i < DefaultShortTermCapacity+1; i++ {
		stm.Append(entry(fmt.Sprintf("e%d", i)))
	}
	assert.Equal(t, DefaultShortTermCapacity, stm.Len())
	assert.Equal(t, "e1", stm.Snapshot()[0].Content)
}

func TestShortTermMemory_RelevantOrdersBySimilarity(t *testing.T) {
	stm := NewShortTermMemory(10)
	stm.Append(entry("orthogonal", 0, 1))
	stm.Append(entry("aligned", 1, 0))
	stm.Append(entry("diagonal", 1, 1))

	got := stm.Relevant([]float32{1, 0}, 3)
	require.Len(t, got, 3)
	assert.Equal(t, "aligned", got[0].Content)
	assert.Equal(t, "diagonal", got[1].Content)
	assert.Equal(t, "orthogonal", got[2].Content)
}

func TestShortTermMemory_RelevantTiesPreferRecent(t *testing.T) {
	stm := NewShortTermMemory(10)
	stm.Append(entry("older", 1, 0))
	stm.Append(entry("newer", 2, 0))

	got := stm.Relevant([]float32{1, 0}, 2)
	require.Len(t, got, 2)
	assert.Equal(t, "newer", got[0].Content)
	assert.Equal(t, "older", got[1].Content)
}

func TestShortTermMemory_RelevantZeroVectors(t *testing.T) {
	stm := NewShortTermMemory(10)
	stm.Append(entry("zero", 0, 0))
	stm.Append(entry("real", 1, 0))

	got := stm.Relevant([]float32{1, 0}, 5)
	require.Len(t, got, 2)
	assert.Equal(t, "real", got[0].Content)

	// A zero query ranks everything equally, so recency decides.
	got = stm.Relevant([]float32{0, 0}, 5)
	require.Len(t, got, 2)
	assert.Equal(t, "real", got[0].Content)
	assert.Equal(t, "zero", got[1].Content)
}

func TestShortTermMemory_RelevantLimits(t *testing.T) {
	stm := NewShortTermMemory(10)
	assert.Empty(t, stm.Relevant([]float32{1}, 3))

	stm.Append(entry("a", 1))
	assert.Nil(t, stm.Relevant([]float32{1}, 0))
	assert.Len(t, stm.Relevant([]float32{1}, 10), 1)
}

func TestShortTermMemory_Recent(t *testing.T) {
	stm := NewShortTermMemory(2)
	stm.Append(entry("a"))
	stm.Append(entry("b"))
	stm.Append(entry("c"))

	got := stm.Recent(5)
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].Content)
	assert.Equal(t, "b", got[1].Content)
	assert.Nil(t, stm.Recent(0))
}

func TestShortTermMemory_ConcurrentAccess(t *testing.T) {
	stm := NewShortTermMemory(16)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				stm.Append(entry(fmt.Sprintf("w%d-%d", i, j), float32(i), float32(j)))
			}
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				for _, e := range stm.Relevant([]float32{1, 1}, 4) {
					if e.Content == "" {
						t.Error("observed a partially written entry")
						return
					}
				}
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 16, stm.Len())
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 0}, []float32{2, 0}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, CosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.Equal(t, 0.0, CosineSimilarity([]float32{0, 0}, []float32{1, 0}))
	assert.Equal(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{1, 0, 0}))
	assert.Equal(t, 0.0, CosineSimilarity(nil, nil))
}

func TestProperty_ShortTermMemoryBoundedFIFO(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("length never exceeds capacity and the newest entries survive", prop.ForAll(
		func(capacity int, inserts int) bool {
			stm := NewShortTermMemory(capacity)
			for i := 0; i < inserts; i++ {
				stm.Append(entry(fmt.Sprintf("%d", i)))
				if stm.Len() > capacity {
					return false
				}
			}
			snap := stm.Snapshot()
			want := inserts
			if want > capacity {
				want = capacity
			}
			if len(snap) != want {
				return false
			}
			for i, e := range snap {
				if e.Content != fmt.Sprintf("%d", inserts-want+i) {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 20),
		gen.IntRange(0, 60),
	))

	properties.Property("similarity never NaN and relevant is non-increasing", prop.ForAll(
		func(xs []float64) bool {
			stm := NewShortTermMemory(32)
			for i := 0; i+1 < len(xs); i += 2 {
				stm.Append(entry("x", float32(xs[i]), float32(xs[i+1])))
			}
			query := []float32{1, 0.5}
			got := stm.Relevant(query, 32)
			prev := math.Inf(1)
			for _, e := range got {
				s := CosineSimilarity(query, e.Embedding)
				if math.IsNaN(s) || s > prev+1e-12 {
					return false
				}
				prev = s
			}
			return true
		},
		gen.SliceOf(gen.Float64Range(-10, 10)),
	))

	properties.TestingRun(t)
}
