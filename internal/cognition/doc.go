// Package cognition runs the agent's cognitive cycle: gather context, think, score the
// thought, remember it when significant, recall related memories and decide whether to post.
// It also answers interactions and schedules cycles, interaction polling and memory
// consolidation.
package cognition
