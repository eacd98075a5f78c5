// Package multistates implements the priority-ordered state pools of the
// loop-exit searcher.
//
// A Store orders state handles by (priority descending, insertion sequence
// ascending). The same type backs both the active and the waiting pool; only
// the searcher knows which pool a state logically belongs to.
//
// COMPLEXITY:
//   - Insert, Remove, Reprioritize: O(log n)
//   - PeekMax, Len, IsEmpty, Contains, Priority: O(1)
//   - Oldest, States: O(n log n), used off the selection hot path
//
// Insertion sequences come from a Sequencer shared by every pool of one
// searcher, so sequence numbers are globally unique and monotonic. Never a
// wall clock.
package multistates
