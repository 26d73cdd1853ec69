package memory

import "sort"

// DisjointPairs keeps the closest pairs first and drops any pair that reuses a memory already
// claimed by a closer pair, so every memory takes part in at most one merge per pass.
func DisjointPairs(pairs []MergePair) []MergePair {
	sorted := make([]MergePair, len(pairs))
	copy(sorted, pairs)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Distance != sorted[j].Distance {
			return sorted[i].Distance < sorted[j].Distance
		}
		if sorted[i].First.ID != sorted[j].First.ID {
			return sorted[i].First.ID < sorted[j].First.ID
		}
		return sorted[i].Second.ID < sorted[j].Second.ID
	})

	used := make(map[int64]struct{}, len(sorted)*2)
	out := make([]MergePair, 0, len(sorted))
	for _, p := range sorted {
		if _, ok := used[p.First.ID]; ok {
			continue
		}
		if _, ok := used[p.Second.ID]; ok {
			continue
		}
		used[p.First.ID] = struct{}{}
		used[p.Second.ID] = struct{}{}
		out = append(out, p)
	}
	return out
}

// CosineDistance is 1 - CosineSimilarity, matching the pgvector <=> operator.
func CosineDistance(a, b []float32) float64 {
	return 1 - CosineSimilarity(a, b)
}
