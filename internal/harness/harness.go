package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/roach88/loopexit/internal/analysis"
	"github.com/roach88/loopexit/internal/coverage"
	"github.com/roach88/loopexit/internal/ir"
	"github.com/roach88/loopexit/internal/oracle"
	"github.com/roach88/loopexit/internal/searcher"
	"github.com/roach88/loopexit/internal/store"
	"github.com/roach88/loopexit/internal/testutil"
	"github.com/roach88/loopexit/internal/trace"
)

// DefaultSession is the session id used when a scenario names none.
const DefaultSession = "test-session"

// Option configures a run.
type Option func(*runOptions)

type runOptions struct {
	store    *store.Store
	sessions trace.SessionGenerator
	logger   *slog.Logger
}

// WithStore records the run into st instead of a fresh in-memory store.
// The caller keeps ownership of st.
func WithStore(st *store.Store) Option {
	return func(o *runOptions) {
		o.store = st
	}
}

// WithSessionGenerator overrides the scenario's fixed session id.
func WithSessionGenerator(g trace.SessionGenerator) Option {
	return func(o *runOptions) {
		o.sessions = g
	}
}

// WithLogger sets the logger handed to the searcher. Runs are silent by default.
func WithLogger(l *slog.Logger) Option {
	return func(o *runOptions) {
		o.logger = l
	}
}

// Harness holds one run's fake engine and searcher.
type Harness struct {
	program  *analysis.Program
	arena    *testutil.Arena
	searcher *searcher.Searcher
	memory   *trace.Memory
	names    map[string]ir.StateID
	result   *Result
	logger   *slog.Logger
}

// Run executes a scenario and returns its result.
//
// Expectation and assertion failures are reported in Result.Errors. A
// returned error means the scenario itself is broken: an unknown state
// name, a bad location, a program that does not compile, or a storage
// failure.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	o := runOptions{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&o)
	}

	session := scenario.Session
	if session == "" {
		session = DefaultSession
	}
	if o.sessions != nil {
		session = o.sessions.Generate()
	}

	st := o.store
	if st == nil {
		var err error
		st, err = store.Open(":memory:")
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory store: %w", err)
		}
		defer st.Close()
	}

	program, err := loadProgram(scenario)
	if err != nil {
		return nil, err
	}
	hash, err := program.Hash()
	if err != nil {
		return nil, fmt.Errorf("program hash: %w", err)
	}

	ctx := context.Background()
	if err := st.WriteSession(ctx, store.Session{
		ID:          session,
		Scenario:    scenario.Name,
		ProgramHash: hash,
		Config:      scenario.Config,
	}); err != nil {
		return nil, err
	}

	h := &Harness{
		program: program,
		arena:   testutil.NewArena(),
		memory:  trace.NewMemory(),
		names:   make(map[string]ir.StateID),
		result:  NewResult(),
		logger:  o.logger,
	}
	h.result.Session = session
	h.result.ProgramHash = hash

	stored := st.NewRecorder(session)
	orc := oracle.New(program, program,
		oracle.WithEdgeCoverage(coverage.NewEdges()),
		oracle.WithBlockCoverage(coverage.NewBlocks()),
	)
	h.searcher, err = searcher.New(h.arena, orc,
		searcher.WithConfig(scenario.Config),
		searcher.WithLogger(o.logger),
		searcher.WithRecorder(trace.Tee{h.memory, stored}),
	)
	if err != nil {
		return nil, err
	}

	runErr := h.executeSteps(scenario.Steps)

	// Flush even after a failed step so the partial trace can be inspected.
	if err := stored.Flush(ctx); err != nil {
		return nil, fmt.Errorf("failed to store trace: %w", err)
	}
	if runErr != nil {
		return nil, runErr
	}

	h.result.Trace = h.memory.Events()
	h.result.Stats = h.searcher.Stats()
	h.result.ForkSites = h.searcher.ForkSites()

	actx := &AssertionContext{Store: st, Ctx: ctx, Session: session, Names: h.names}
	for _, msg := range EvaluateAssertions(h.result, scenario.Assertions, actx) {
		h.result.AddError(msg)
	}
	return h.result, nil
}

func loadProgram(s *Scenario) (*analysis.Program, error) {
	if s.Program != "" {
		p, err := analysis.LoadDir(s.Program)
		if err != nil {
			return nil, fmt.Errorf("failed to load program: %w", err)
		}
		return p, nil
	}
	p, err := analysis.CompileString(s.Modules)
	if err != nil {
		return nil, fmt.Errorf("failed to compile modules: %w", err)
	}
	return p, nil
}

// executeSteps runs the steps in order. Execution stops at the first step
// whose searcher call fails unexpectedly; later expectations would only
// report the same desynchronization again.
func (h *Harness) executeSteps(steps []Step) error {
	for i, step := range steps {
		err := h.execute(step)

		var se *searcher.SearcherError
		if err != nil && !errors.As(err, &se) {
			return fmt.Errorf("steps[%d] (%s): %w", i, step.Op, err)
		}

		h.logger.Debug("step executed", "step", i, "op", step.Op)

		if step.Expect != nil && step.Expect.Error != "" {
			if se == nil || string(se.Code) != step.Expect.Error {
				h.result.AddError(fmt.Sprintf("steps[%d] (%s): expected error %s, got %v", i, step.Op, step.Expect.Error, err))
			}
		} else if se != nil {
			h.result.AddError(fmt.Sprintf("steps[%d] (%s): %v", i, step.Op, se))
			return nil
		}

		if step.Expect != nil {
			for _, msg := range h.check(step.Expect) {
				h.result.AddError(fmt.Sprintf("steps[%d] (%s): %s", i, step.Op, msg))
			}
		}
	}
	return nil
}

// execute applies one step. Errors from the searcher are returned as
// *searcher.SearcherError, which expectations may anticipate; any other
// error means the scenario is broken.
func (h *Harness) execute(step Step) error {
	s := h.searcher

	switch step.Op {
	case OpAdd:
		pc, err := h.pc(step.At)
		if err != nil {
			return err
		}
		var ids []ir.StateID
		for _, name := range step.names() {
			if _, dup := h.names[name]; dup {
				return fmt.Errorf("state %q already exists", name)
			}
			id := h.arena.Spawn(pc)
			h.bind(name, id)
			ids = append(ids, id)
		}
		return s.OnStateSetChanged(ids, nil)

	case OpRemove:
		var ids []ir.StateID
		for _, name := range step.names() {
			id, err := h.lookup(name)
			if err != nil {
				return err
			}
			h.arena.Kill(id)
			ids = append(ids, id)
		}
		return s.OnStateSetChanged(nil, ids)

	case OpFork:
		return h.fork(step)

	case OpMove:
		id, err := h.lookup(step.State)
		if err != nil {
			return err
		}
		pc, err := h.pc(step.At)
		if err != nil {
			return err
		}
		if _, live := h.arena.PC(id); !live {
			return fmt.Errorf("state %q is terminated", step.State)
		}
		h.arena.Move(id, pc)
		return nil

	case OpTick:
		n := step.Count
		if n == 0 {
			n = 1
		}
		for i := 0; i < n; i++ {
			if err := s.OnTimer(); err != nil {
				return err
			}
		}
		return nil

	case OpSelect:
		id, err := s.SelectState()
		if err != nil {
			return err
		}
		name := h.result.Names[uint64(id)]
		h.result.Selected = append(h.result.Selected, name)
		if step.Expect != nil && step.Expect.Selected != "" && step.Expect.Selected != name {
			h.result.AddError(fmt.Sprintf("select: expected %s, got %s", step.Expect.Selected, name))
		}
		return nil

	case OpUnload:
		s.OnModuleUnload(step.Module)
		return nil
	}
	return fmt.Errorf("unknown op %q", step.Op)
}

// fork spawns the new children, delivers the fork notification, then the
// add notification for the new children, matching the engine's ordering.
func (h *Harness) fork(step Step) error {
	parent, err := h.lookup(step.Parent)
	if err != nil {
		return err
	}
	if _, live := h.arena.PC(parent); !live {
		return fmt.Errorf("parent %q is terminated", step.Parent)
	}

	var children, added []ir.StateID
	var conds []ir.Condition
	for _, c := range step.Children {
		if c.Name == step.Parent {
			if c.At != "" {
				pc, err := h.pc(c.At)
				if err != nil {
					return err
				}
				// The parent's site is resolved before it moves.
				defer h.arena.Move(parent, pc)
			}
			children = append(children, parent)
		} else {
			if _, dup := h.names[c.Name]; dup {
				return fmt.Errorf("state %q already exists", c.Name)
			}
			pc, err := h.pc(c.At)
			if err != nil {
				return err
			}
			id := h.arena.Spawn(pc)
			h.bind(c.Name, id)
			children = append(children, id)
			added = append(added, id)
		}
		conds = append(conds, ir.TextCondition(c.Condition))
	}

	if err := h.searcher.OnFork(parent, children, conds); err != nil {
		return err
	}
	return h.searcher.OnStateSetChanged(added, nil)
}

func (h *Harness) bind(name string, id ir.StateID) {
	h.names[name] = id
	h.result.Names[uint64(id)] = name
}

func (h *Harness) lookup(name string) (ir.StateID, error) {
	id, ok := h.names[name]
	if !ok {
		return ir.NoState, fmt.Errorf("unknown state %q", name)
	}
	return id, nil
}

// pc converts a location to a program counter: module+offset through the
// program, or a bare number as an absolute address.
func (h *Harness) pc(at string) (uint64, error) {
	module, off, ok, err := parseLocation(at)
	if err != nil {
		return 0, err
	}
	if !ok {
		return off, nil
	}
	pc, found := h.program.Address(module, off)
	if !found {
		return 0, fmt.Errorf("location %q is outside module %q", at, module)
	}
	return pc, nil
}

// parseLocation splits "module+0x10". ok is false for a bare number.
func parseLocation(at string) (module string, offset uint64, ok bool, err error) {
	i := strings.LastIndex(at, "+")
	if i < 0 {
		offset, err = strconv.ParseUint(at, 0, 64)
		if err != nil {
			return "", 0, false, fmt.Errorf("invalid location %q: %w", at, err)
		}
		return "", offset, false, nil
	}
	module = at[:i]
	if module == "" {
		return "", 0, false, fmt.Errorf("invalid location %q: empty module", at)
	}
	offset, err = strconv.ParseUint(at[i+1:], 0, 64)
	if err != nil {
		return "", 0, false, fmt.Errorf("invalid location %q: %w", at, err)
	}
	return module, offset, true, nil
}

// check compares the searcher's state with an expectation. Map keys are
// visited in sorted order so failures are reported deterministically.
func (h *Harness) check(e *Expect) []string {
	var errs []string
	s := h.searcher

	if e.Current != "" {
		cur, ok := s.Current()
		name := h.result.Names[uint64(cur)]
		if !ok || name != e.Current {
			errs = append(errs, fmt.Sprintf("current: expected %s, got %q", e.Current, name))
		}
	}

	for _, name := range sortedKeys(e.Pools) {
		want := e.Pools[name]
		id, err := h.lookup(name)
		if err != nil {
			errs = append(errs, err.Error())
			continue
		}
		got := "none"
		if pl, ok := s.Lookup(id); ok {
			got = pl.Pool.String()
		}
		if got != want {
			errs = append(errs, fmt.Sprintf("pool of %s: expected %s, got %s", name, want, got))
		}
	}

	for _, name := range sortedKeys(e.Priorities) {
		want := e.Priorities[name]
		id, err := h.lookup(name)
		if err != nil {
			errs = append(errs, err.Error())
			continue
		}
		pl, ok := s.Lookup(id)
		if !ok {
			errs = append(errs, fmt.Sprintf("priority of %s: state is in no pool", name))
			continue
		}
		if pl.Priority != want {
			errs = append(errs, fmt.Sprintf("priority of %s: expected %d, got %d", name, want, pl.Priority))
		}
	}

	if e.ForkCount != nil {
		module, off, ok, err := parseLocation(e.ForkCount.Site)
		switch {
		case err != nil:
			errs = append(errs, err.Error())
		case !ok:
			errs = append(errs, fmt.Sprintf("fork_count site %q must be module+offset", e.ForkCount.Site))
		default:
			if got := s.ForkCount(module, off); got != e.ForkCount.Count {
				errs = append(errs, fmt.Sprintf("fork count at %s: expected %d, got %d", e.ForkCount.Site, e.ForkCount.Count, got))
			}
		}
	}

	st := s.Stats()
	if e.Active != nil && *e.Active != st.Active {
		errs = append(errs, fmt.Sprintf("active: expected %d states, got %d", *e.Active, st.Active))
	}
	if e.Waiting != nil && *e.Waiting != st.Waiting {
		errs = append(errs, fmt.Sprintf("waiting: expected %d states, got %d", *e.Waiting, st.Waiting))
	}
	if e.Empty != nil && *e.Empty != s.Empty() {
		errs = append(errs, fmt.Sprintf("empty: expected %t", *e.Empty))
	}
	return errs
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
