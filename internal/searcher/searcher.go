package searcher

import (
	"log/slog"

	"github.com/roach88/loopexit/internal/forkcount"
	"github.com/roach88/loopexit/internal/ir"
	"github.com/roach88/loopexit/internal/multistates"
	"github.com/roach88/loopexit/internal/oracle"
	"github.com/roach88/loopexit/internal/trace"
)

// StateTable is the host engine's state arena. The searcher only stores
// handles and asks the host for a state's current program counter.
type StateTable interface {
	PC(id ir.StateID) (pc uint64, ok bool)
}

// Pool names where a live state currently sits.
type Pool int

const (
	PoolNone Pool = iota
	PoolActive
	PoolWaiting
)

func (p Pool) String() string {
	switch p {
	case PoolActive:
		return "active"
	case PoolWaiting:
		return "waiting"
	default:
		return "none"
	}
}

// Placement describes where a state sits and with which priority.
type Placement struct {
	Pool     Pool
	Priority int64
	Current  bool
}

// Stats is a snapshot of searcher counters.
type Stats struct {
	Active     int
	Waiting    int
	Ticks      uint64
	Forks      uint64
	Parks      uint64
	Promotions uint64
	Selections uint64
	Decays     uint64
	Current    ir.StateID

	// Sites is the number of distinct fork sites with a live count.
	Sites int
}

// Searcher is the loop-exit state scheduler.
//
// Searcher is not safe for concurrent use; see the package documentation.
type Searcher struct {
	cfg    Config
	states StateTable
	oracle *oracle.Oracle
	forks  *forkcount.Table
	clock  *Clock

	active  *multistates.Store
	waiting *multistates.Store

	current      ir.StateID
	currentSince uint64 // tick at which current was first selected
	ticks        uint64

	stats    Stats
	traceSeq int64
	rec      trace.Recorder
	log      *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher)

// WithConfig replaces the default tuning.
func WithConfig(cfg Config) Option {
	return func(s *Searcher) {
		s.cfg = cfg
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Searcher) {
		s.log = l
	}
}

// WithRecorder attaches a decision recorder.
func WithRecorder(r trace.Recorder) Option {
	return func(s *Searcher) {
		s.rec = r
	}
}

// WithClock sets the insertion clock, e.g. to share one numbering across
// searchers or to inspect it in tests.
func WithClock(c *Clock) Option {
	return func(s *Searcher) {
		s.clock = c
	}
}

// New creates a searcher over the host state table and the oracle.
// Returns a SearcherError with ErrCodeInvalidConfig if the tuning is inconsistent.
func New(states StateTable, o *oracle.Oracle, opts ...Option) (*Searcher, error) {
	s := &Searcher{
		cfg:    DefaultConfig(),
		states: states,
		oracle: o,
		forks:  forkcount.New(),
		clock:  NewClock(),
		rec:    trace.NopRecorder{},
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.cfg.Validate(); err != nil {
		return nil, err
	}

	s.active = multistates.New(PoolActive.String(), s.clock)
	s.waiting = multistates.New(PoolWaiting.String(), s.clock)
	return s, nil
}

// Config returns the tuning in use.
func (s *Searcher) Config() Config {
	return s.cfg
}

// Empty reports whether both pools are empty.
func (s *Searcher) Empty() bool {
	return s.active.IsEmpty() && s.waiting.IsEmpty()
}

// SelectState returns the state to advance next and makes it current.
//
// The state stays in its pool; selection is a peek. If every live state is
// parked, the whole waiting pool is promoted first so selection always makes
// progress. Calling SelectState on an empty searcher is a contract violation
// reported as ErrCodeEmpty.
func (s *Searcher) SelectState() (ir.StateID, error) {
	if s.active.IsEmpty() {
		if s.waiting.IsEmpty() {
			s.log.Error("select on empty searcher")
			return ir.NoState, &SearcherError{
				Code:    ErrCodeEmpty,
				Message: "selectState called with no live states",
			}
		}
		if err := s.promote(s.waiting.Len(), "backoff"); err != nil {
			return ir.NoState, err
		}
	}

	id, _ := s.active.PeekMax()
	if id != s.current {
		s.current = id
		s.currentSince = s.ticks
	}
	s.stats.Selections++

	p, _ := s.active.Priority(id)
	s.record(trace.Event{Kind: trace.KindSelect, State: id, Priority: p})
	return id, nil
}

// OnStateSetChanged applies the engine's add/remove notification.
//
// Added states not yet known are admitted to the active pool with the
// neutral priority; states already registered by OnFork are left alone.
// Removed states are dropped from whichever pool holds them; unknown
// handles are ignored. Additions are applied before removals so a state
// that forked and died within one step ends up removed.
func (s *Searcher) OnStateSetChanged(added, removed []ir.StateID) error {
	for _, id := range added {
		if !id.Valid() || s.known(id) {
			continue
		}
		if err := s.active.Insert(id, s.cfg.DefaultPriority); err != nil {
			return newDesyncError(id, err)
		}
		s.record(trace.Event{Kind: trace.KindAdmit, State: id, Priority: s.cfg.DefaultPriority})
	}

	for _, id := range removed {
		if err := s.remove(id); err != nil {
			return err
		}
	}
	return nil
}

// remove drops id from its pool. Unknown handles are a no-op.
func (s *Searcher) remove(id ir.StateID) error {
	var pool *multistates.Store
	switch {
	case s.active.Contains(id):
		pool = s.active
	case s.waiting.Contains(id):
		pool = s.waiting
	default:
		s.log.Debug("ignoring removal of unknown state", "state", id)
		return nil
	}

	p, _ := pool.Priority(id)
	if err := pool.Remove(id); err != nil {
		return newDesyncError(id, err)
	}
	if s.current == id {
		s.current = ir.NoState
	}
	s.record(trace.Event{Kind: trace.KindRemove, State: id, Priority: p})
	return nil
}

// Current returns the state last returned by SelectState, if still live.
func (s *Searcher) Current() (ir.StateID, bool) {
	return s.current, s.current.Valid()
}

// Lookup reports where id sits.
func (s *Searcher) Lookup(id ir.StateID) (Placement, bool) {
	if p, ok := s.active.Priority(id); ok {
		return Placement{Pool: PoolActive, Priority: p, Current: id == s.current}, true
	}
	if p, ok := s.waiting.Priority(id); ok {
		return Placement{Pool: PoolWaiting, Priority: p, Current: id == s.current}, true
	}
	return Placement{}, false
}

// Active returns the active pool in selection order.
func (s *Searcher) Active() []ir.StateID {
	return s.active.States()
}

// Waiting returns the waiting pool, longest-waiting first.
func (s *Searcher) Waiting() []ir.StateID {
	return s.waiting.Oldest(s.waiting.Len())
}

// ForkCount returns the number of forks recorded at a site.
func (s *Searcher) ForkCount(module string, addr uint64) uint64 {
	return s.forks.Count(module, addr)
}

// Stats returns a snapshot of the counters.
func (s *Searcher) Stats() Stats {
	st := s.stats
	st.Active = s.active.Len()
	st.Waiting = s.waiting.Len()
	st.Ticks = s.ticks
	st.Current = s.current
	st.Sites = s.forks.Len()
	return st
}

// ForkSites lists every recorded fork site, by module name then address.
// Sites of unloaded modules are gone.
func (s *Searcher) ForkSites() []forkcount.Site {
	sites := make([]forkcount.Site, 0, s.forks.Len())
	for _, module := range s.forks.Modules() {
		sites = append(sites, s.forks.Sites(module)...)
	}
	return sites
}

func (s *Searcher) known(id ir.StateID) bool {
	return s.active.Contains(id) || s.waiting.Contains(id)
}

func (s *Searcher) record(e trace.Event) {
	s.traceSeq++
	e.Seq = s.traceSeq
	e.Tick = s.ticks
	s.rec.Record(e)
}
