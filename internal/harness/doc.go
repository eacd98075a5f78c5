// Package harness replays scripted engine runs against the searcher.
//
// A scenario drives a fake host engine (testutil.Arena) through add,
// remove, fork, timer and select notifications and checks the searcher's
// decisions after each step.
//
// # Scenario Format
//
//	name: nested_loop
//	description: "Loop exits beat repeated in-loop forks"
//	program: programs/nested          # CUE program dir, relative to the file
//	config:                            # searcher tuning overrides
//	  promotion_quota: 2
//	steps:
//	  - op: add
//	    state: root
//	    at: app.exe+0x100
//	  - op: fork
//	    parent: root
//	    children:
//	      - {name: stay, at: app.exe+0x140}
//	      - {name: leave, at: app.exe+0x200}
//	    expect:
//	      pools: {stay: active, leave: active}
//	      fork_count: {site: app.exe+0x100, count: 1}
//	  - op: select
//	    expect: {selected: leave}
//	assertions:
//	  - type: trace_order
//	    events: ["fork stay", "fork leave", "select leave"]
//
// Instead of program, a scenario may carry the CUE source inline under
// modules. Locations are written module+offset; a bare hex number is an
// absolute program counter, which is how a scenario places a state outside
// every known module.
//
// # Operations
//
//   - add: spawn states at a location and announce them
//   - remove: terminate states and announce the removal
//   - fork: fork a parent into named children; naming the parent among the
//     children lets it continue as one branch
//   - move: set a state's program counter
//   - tick: deliver count timer ticks (default 1)
//   - select: ask the searcher for the next state
//   - unload: announce a module unload
//
// # Determinism
//
// Each run uses a fresh searcher, a fresh arena and a fixed session id, and
// records into a fresh in-memory SQLite store unless one is supplied. Equal
// scenarios produce byte-identical trace snapshots, which RunWithGolden
// compares against testdata/golden.
package harness
