package searcher

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/loopexit/internal/ir"
	"github.com/roach88/loopexit/internal/trace"
)

func TestNew_Defaults(t *testing.T) {
	s, err := New(nil, nil)
	require.NoError(t, err)

	assert.True(t, s.Empty())
	assert.Equal(t, DefaultConfig(), s.Config())
	_, ok := s.Current()
	assert.False(t, ok)
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PromotionQuota = 0

	_, err := New(nil, nil, WithConfig(cfg))
	require.Error(t, err)
	assert.True(t, IsConfigError(err))
}

func TestSelectState_Empty(t *testing.T) {
	f := newFixture(t)

	id, err := f.searcher.SelectState()
	require.Error(t, err)
	assert.True(t, IsEmptyError(err))
	assert.False(t, IsDesyncError(err))
	assert.Equal(t, ir.NoState, id)
}

func TestSelectState_SingleAddedState(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.searcher.Empty())

	id := f.spawn(t, afterA)
	assert.False(t, f.searcher.Empty())

	got, err := f.searcher.SelectState()
	require.NoError(t, err)
	assert.Equal(t, id, got)

	cur, ok := f.searcher.Current()
	assert.True(t, ok)
	assert.Equal(t, id, cur)

	pl, ok := f.searcher.Lookup(id)
	require.True(t, ok)
	assert.Equal(t, PoolActive, pl.Pool, "selection keeps the state in its pool")
	assert.True(t, pl.Current)
	assert.Equal(t, DefaultPriority, pl.Priority)
}

func TestSelectState_HighestPriorityThenOldest(t *testing.T) {
	f := newFixture(t)
	root := f.spawn(t, siteA)
	older := f.spawn(t, afterA)

	got, err := f.searcher.SelectState()
	require.NoError(t, err)
	assert.Equal(t, root, got, "equal priorities select the earliest admitted")

	children := f.fork(t, root, exitA)
	got, err = f.searcher.SelectState()
	require.NoError(t, err)
	assert.Equal(t, children[0], got)
	assert.NotEqual(t, older, got)
}

func TestOnStateSetChanged_AddIsIdempotent(t *testing.T) {
	f := newFixture(t)
	id := f.spawn(t, afterA)

	require.NoError(t, f.searcher.OnStateSetChanged([]ir.StateID{id, id}, nil))
	assert.Len(t, f.searcher.Active(), 1)
	assert.Len(t, f.rec.OfKind(trace.KindAdmit), 1)
}

func TestOnStateSetChanged_IgnoresNoState(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.searcher.OnStateSetChanged([]ir.StateID{ir.NoState}, []ir.StateID{ir.NoState}))
	assert.True(t, f.searcher.Empty())
}

func TestOnStateSetChanged_RemovalIsIdempotent(t *testing.T) {
	f := newFixture(t)
	a := f.spawn(t, afterA)
	b := f.spawn(t, afterA)

	f.kill(t, a)
	assert.Equal(t, 1, f.searcher.Stats().Active)

	// Second removal and removal of a never-registered handle are no-ops.
	require.NoError(t, f.searcher.OnStateSetChanged(nil, []ir.StateID{a}))
	require.NoError(t, f.searcher.OnStateSetChanged(nil, []ir.StateID{999}))
	assert.Equal(t, []ir.StateID{b}, f.searcher.Active())
	assert.Empty(t, f.searcher.Waiting())
	assert.Len(t, f.rec.OfKind(trace.KindRemove), 1)
}

func TestOnStateSetChanged_RemovingCurrentClearsPointer(t *testing.T) {
	f := newFixture(t)
	a := f.spawn(t, afterA)
	b := f.spawn(t, afterA)

	got, err := f.searcher.SelectState()
	require.NoError(t, err)
	require.Equal(t, a, got)

	f.kill(t, a)
	_, ok := f.searcher.Current()
	assert.False(t, ok)

	got, err = f.searcher.SelectState()
	require.NoError(t, err)
	assert.Equal(t, b, got)
}

func TestOnStateSetChanged_AddThenRemoveInOneStep(t *testing.T) {
	f := newFixture(t)
	id := f.arena.Spawn(afterA)

	require.NoError(t, f.searcher.OnStateSetChanged([]ir.StateID{id}, []ir.StateID{id}))
	assert.True(t, f.searcher.Empty())
}

func TestOnStateSetChanged_RemovesParkedState(t *testing.T) {
	f := newFixture(t, withTuning(func(c *Config) { c.ForkPenalty = 60 }))
	root := f.spawn(t, siteA)
	parked := f.fork(t, root, inLoop)[0]
	require.Equal(t, PoolWaiting, f.pool(parked))

	f.kill(t, parked)
	_, ok := f.searcher.Lookup(parked)
	assert.False(t, ok)
	assert.Empty(t, f.searcher.Waiting())
}

func TestStats(t *testing.T) {
	f := newFixture(t, withTuning(func(c *Config) { c.ForkPenalty = 60 }))
	root := f.spawn(t, siteA)
	f.fork(t, root, inLoop, exitA)

	_, err := f.searcher.SelectState()
	require.NoError(t, err)
	require.NoError(t, f.searcher.OnTimer())

	st := f.searcher.Stats()
	assert.Equal(t, 3, st.Active)
	assert.Equal(t, 0, st.Waiting)
	assert.Equal(t, uint64(1), st.Forks)
	assert.Equal(t, uint64(1), st.Parks)
	assert.Equal(t, uint64(1), st.Promotions)
	assert.Equal(t, uint64(1), st.Selections)
	assert.Equal(t, uint64(1), st.Ticks)
}

func TestTrace_SequenceIsDense(t *testing.T) {
	f := newFixture(t)
	root := f.spawn(t, siteA)
	f.fork(t, root, inLoop, exitA)
	_, err := f.searcher.SelectState()
	require.NoError(t, err)

	events := f.rec.Events()
	require.NotEmpty(t, events)
	for i, e := range events {
		assert.Equal(t, int64(i+1), e.Seq)
	}
}

// Random engine walks must never leave a live state outside the pools, put
// one in both, or select a dead state.
func TestSearcher_RandomWalkKeepsPartition(t *testing.T) {
	f := newFixture(t, withBlockCoverage(), withTuning(func(c *Config) { c.ForkPenalty = 25 }))
	rng := rand.New(rand.NewSource(7))
	targets := []uint64{siteA, inLoop, exitA, afterA, libB, nowhere}

	f.spawn(t, siteA)
	for step := 0; step < 500; step++ {
		live := f.arena.Live()

		switch op := rng.Intn(5); {
		case op == 0 && len(live) < 64:
			parent := live[rng.Intn(len(live))]
			n := 1 + rng.Intn(3)
			ts := make([]uint64, n)
			for i := range ts {
				ts[i] = targets[rng.Intn(len(targets))]
			}
			f.fork(t, parent, ts...)
		case op == 1 && len(live) > 1:
			f.kill(t, live[rng.Intn(len(live))])
		case op == 2:
			f.arena.Move(live[rng.Intn(len(live))], targets[rng.Intn(len(targets))])
		case op == 3:
			require.NoError(t, f.searcher.OnTimer())
		default:
			id, err := f.searcher.SelectState()
			require.NoError(t, err)
			assert.Contains(t, live, id)
		}

		f.assertPartition(t)
	}
}
