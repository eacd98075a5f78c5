// Package searcher implements the loop-exit state scheduler.
//
// At every exploration step the host engine asks the searcher which execution
// state to advance next. The searcher keeps every live state in exactly one
// of two priority pools (active, waiting) and always answers from the active
// pool.
//
// ARCHITECTURE:
//
// Single-Threaded Cooperative Model:
// The engine calls into the searcher from one exploration loop. No operation
// blocks or spawns goroutines; there is no locking.
//
// Entry Points:
//  1. OnFork: a branching event produced children. The fork site is
//     resolved, its fork count incremented, and every child gets a priority
//     delta (loop-exit bonus, repeated-fork penalty, coverage bonus).
//  2. OnStateSetChanged: states were added or terminated.
//  3. OnTimer: periodic tick. Rotates the longest-waiting states back into
//     the active pool and decays a state that held the selection too long.
//  4. SelectState: peek-max on the active pool; O(1), no oracle queries.
//
// Notification Ordering:
// Fork and add/remove notifications are not mutually ordered across engines.
// Children announced by OnFork are registered immediately; a later add of the
// same handle is a no-op. Removal of an unknown handle is a no-op.
//
// INVARIANTS:
//   - active ∩ waiting = ∅ after every public operation
//   - every live state is in exactly one pool
//   - the current state, if any, is live
//   - fork counts only grow, by one per fork, until module unload
//   - all ordering uses logical clocks (insertion seq, tick), never wall time
package searcher
