// Package ir provides the shared value types of the loop-exit scheduler.
//
// This package contains type definitions and their canonical encodings only.
// All other internal packages import ir; ir imports nothing internal, which
// keeps it the foundational layer with no circular dependencies.
//
// Key design constraints:
//   - States are opaque host handles (StateID); the scheduler never owns state
//   - NO float types anywhere - priorities and addresses are integers
//   - Module names are NFC-normalized at every boundary (NormalizeModule)
//   - Logical clocks (seq, ticks) only, never wall-clock timestamps
package ir
