package searcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/loopexit/internal/analysis"
	"github.com/roach88/loopexit/internal/coverage"
	"github.com/roach88/loopexit/internal/ir"
	"github.com/roach88/loopexit/internal/oracle"
	"github.com/roach88/loopexit/internal/testutil"
	"github.com/roach88/loopexit/internal/trace"
)

const (
	baseA = 0x400000
	baseB = 0x10000000
)

// Program layout used throughout the searcher tests:
//
//	moduleA: loop header 0x100, body [0x100, 0x200), exit 0x200
//	moduleB: no loops
const (
	siteA   = baseA + 0x100 // loop header, the usual fork site
	inLoop  = baseA + 0x140 // inside the loop body
	exitA   = baseA + 0x200 // loop exit
	afterA  = baseA + 0x300 // outside any loop
	libB    = baseB + 0x10  // module without loops
	nowhere = 0x7fff0000    // no module
)

type fixture struct {
	arena    *testutil.Arena
	blocks   *coverage.Blocks
	rec      *trace.Memory
	searcher *Searcher
}

type fixtureOption func(*fixtureConfig)

type fixtureConfig struct {
	cfg      Config
	coverage bool
}

func withTuning(mutate func(*Config)) fixtureOption {
	return func(fc *fixtureConfig) {
		mutate(&fc.cfg)
	}
}

func withBlockCoverage() fixtureOption {
	return func(fc *fixtureConfig) {
		fc.coverage = true
	}
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()

	fc := fixtureConfig{cfg: DefaultConfig()}
	for _, opt := range opts {
		opt(&fc)
	}

	prog, err := analysis.NewProgram(
		analysis.Module{
			Name: "moduleA",
			Base: baseA,
			Size: 0x1000,
			Loops: []analysis.Loop{{
				Header: 0x100,
				Body:   []analysis.Range{{Start: 0x100, End: 0x200}},
				Exits:  []uint64{0x200},
			}},
		},
		analysis.Module{Name: "moduleB", Base: baseB, Size: 0x100},
	)
	require.NoError(t, err)

	f := &fixture{
		arena: testutil.NewArena(),
		rec:   trace.NewMemory(),
	}

	var oopts []oracle.Option
	if fc.coverage {
		f.blocks = coverage.NewBlocks()
		oopts = append(oopts, oracle.WithBlockCoverage(f.blocks))
	}

	f.searcher, err = New(f.arena, oracle.New(prog, prog, oopts...),
		WithConfig(fc.cfg),
		WithRecorder(f.rec),
	)
	require.NoError(t, err)
	return f
}

// spawn creates a state at pc and announces it to the searcher.
func (f *fixture) spawn(t *testing.T, pc uint64) ir.StateID {
	t.Helper()
	id := f.arena.Spawn(pc)
	require.NoError(t, f.searcher.OnStateSetChanged([]ir.StateID{id}, nil))
	return id
}

// fork runs one engine step: parent forks into fresh children at targets,
// followed by the add notification for them.
func (f *fixture) fork(t *testing.T, parent ir.StateID, targets ...uint64) []ir.StateID {
	t.Helper()
	children := f.arena.Fork(targets...)
	require.NoError(t, f.searcher.OnFork(parent, children, nil))
	require.NoError(t, f.searcher.OnStateSetChanged(children, nil))
	return children
}

func (f *fixture) kill(t *testing.T, ids ...ir.StateID) {
	t.Helper()
	for _, id := range ids {
		f.arena.Kill(id)
	}
	require.NoError(t, f.searcher.OnStateSetChanged(nil, ids))
}

func (f *fixture) priority(t *testing.T, id ir.StateID) int64 {
	t.Helper()
	p, ok := f.searcher.Lookup(id)
	require.True(t, ok, "state %s not in any pool", id)
	return p.Priority
}

func (f *fixture) pool(id ir.StateID) Pool {
	p, _ := f.searcher.Lookup(id)
	return p.Pool
}

// assertPartition checks that the live arena states are exactly the union
// of both pools and that no state sits in both.
func (f *fixture) assertPartition(t *testing.T) {
	t.Helper()

	active := f.searcher.Active()
	waiting := f.searcher.Waiting()

	seen := make(map[ir.StateID]Pool, len(active)+len(waiting))
	for _, id := range active {
		seen[id] = PoolActive
	}
	for _, id := range waiting {
		_, dup := seen[id]
		assert.False(t, dup, "state %s in both pools", id)
		seen[id] = PoolWaiting
	}

	live := f.arena.Live()
	assert.Len(t, seen, len(live))
	for _, id := range live {
		_, ok := seen[id]
		assert.True(t, ok, "live state %s in no pool", id)
	}
	assert.Equal(t, len(live) == 0, f.searcher.Empty())
}
