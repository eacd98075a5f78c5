package harness

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/loopexit/internal/ir"
	"github.com/roach88/loopexit/internal/store"
	"github.com/roach88/loopexit/internal/trace"
)

// AssertionError is returned when an assertion fails.
// It includes the trace to help debug the failure.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []trace.Event
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  %s\n", trace.Format(event))
		}
	}

	return buf.String()
}

// AssertionContext provides what assertions need beyond the trace.
type AssertionContext struct {
	Store   *store.Store
	Ctx     context.Context
	Session string
	Names   map[string]ir.StateID
}

// matcher selects events by kind, state name and reason.
type matcher struct {
	kind   trace.Kind
	state  ir.StateID
	reason string
}

func newMatcher(kind, state, reason string, names map[string]ir.StateID) (matcher, error) {
	k, err := trace.ParseKind(kind)
	if err != nil {
		return matcher{}, err
	}
	m := matcher{kind: k, reason: reason}
	if state != "" {
		id, ok := names[state]
		if !ok {
			return matcher{}, fmt.Errorf("unknown state %q", state)
		}
		m.state = id
	}
	return m, nil
}

func (m matcher) match(e trace.Event) bool {
	if e.Kind != m.kind {
		return false
	}
	if m.state.Valid() && e.State != m.state {
		return false
	}
	return m.reason == "" || e.Reason == m.reason
}

// assertTraceContains checks that some event matches kind, state and reason.
func assertTraceContains(events []trace.Event, a Assertion, names map[string]ir.StateID) error {
	m, err := newMatcher(a.Kind, a.State, a.Reason, names)
	if err != nil {
		return err
	}
	if slices.ContainsFunc(events, m.match) {
		return nil
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: describe(a.Kind, a.State, a.Reason),
		Actual:   "not found in trace",
		Trace:    events,
	}
}

// assertTraceCount checks the exact number of matching events.
func assertTraceCount(events []trace.Event, a Assertion, names map[string]ir.StateID) error {
	m, err := newMatcher(a.Kind, a.State, a.Reason, names)
	if err != nil {
		return err
	}
	count := 0
	for _, e := range events {
		if m.match(e) {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", a.Count, describe(a.Kind, a.State, a.Reason)),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    events,
		}
	}
	return nil
}

// assertTraceOrder checks that the first occurrences of "kind [state]"
// entries appear in the given order. Other events may come in between.
func assertTraceOrder(events []trace.Event, a Assertion, names map[string]ir.StateID) error {
	positions := make([]int, len(a.Events))
	for i, entry := range a.Events {
		kind, state, _ := strings.Cut(entry, " ")
		m, err := newMatcher(kind, strings.TrimSpace(state), "", names)
		if err != nil {
			return fmt.Errorf("trace_order entry %q: %w", entry, err)
		}
		positions[i] = slices.IndexFunc(events, m.match)
		if positions[i] < 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all events present: %v", a.Events),
				Actual:   fmt.Sprintf("missing event: %s", entry),
				Trace:    events,
			}
		}
	}

	for i := 1; i < len(positions); i++ {
		if positions[i-1] >= positions[i] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("events in order: %v", a.Events),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					a.Events[i-1], positions[i-1]+1, a.Events[i], positions[i]+1),
				Trace: events,
			}
		}
	}
	return nil
}

// assertStateHistory reads the state's events back from the store and
// compares their kinds.
func assertStateHistory(actx *AssertionContext, a Assertion) error {
	id, ok := actx.Names[a.State]
	if !ok {
		return fmt.Errorf("unknown state %q", a.State)
	}
	hist, err := actx.Store.ReadStateHistory(actx.Ctx, actx.Session, id)
	if err != nil {
		return fmt.Errorf("state_history: %w", err)
	}

	got := make([]string, len(hist))
	for i, e := range hist {
		got[i] = e.Kind.String()
	}
	if !slices.Equal(got, a.Kinds) {
		return &AssertionError{
			Type:     AssertStateHistory,
			Expected: fmt.Sprintf("%s history %v", a.State, a.Kinds),
			Actual:   fmt.Sprintf("%v", got),
			Trace:    hist,
		}
	}
	return nil
}

func describe(kind, state, reason string) string {
	s := kind
	if state != "" {
		s += " " + state
	}
	if reason != "" {
		s += " [" + reason + "]"
	}
	return s
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	var names map[string]ir.StateID
	if actx != nil {
		names = actx.Names
	}

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion, names)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion, names)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion, names)
		case AssertStateHistory:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: state_history requires a store", i)
			} else {
				err = assertStateHistory(actx, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
