// Package memory implements the agent's memory system.
// It provides:
// 1. Short-term memory: a bounded, mutex-guarded buffer of recent thoughts ranked by embedding similarity.
// 2. Significance scoring: a provider rating blended with local text heuristics.
// 3. Long-term memory: a significance-filtered, similarity-queryable store with transactional consolidation.
package memory
