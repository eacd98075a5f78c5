// Package trace records the scheduling decisions of a searcher.
//
// Events are stamped with the searcher's logical clock (Seq) and timer tick,
// never with wall-clock time, so a replayed session yields an identical trace.
package trace

import (
	"fmt"

	"github.com/roach88/loopexit/internal/ir"
)

// Kind identifies a scheduling decision.
type Kind uint8

const (
	// KindAdmit: a state entered the active pool without a fork.
	KindAdmit Kind = iota + 1
	// KindFork: a fork child received its heuristic delta.
	KindFork
	// KindPark: a state moved from active to waiting.
	KindPark
	// KindPromote: a state moved from waiting to active.
	KindPromote
	// KindSelect: a state was returned by selection.
	KindSelect
	// KindRemove: a live state was dropped after termination.
	KindRemove
	// KindDecay: the current state's priority was decayed at a tick.
	KindDecay
	// KindUnload: fork counts of a module were reset.
	KindUnload
)

var kindNames = map[Kind]string{
	KindAdmit:   "admit",
	KindFork:    "fork",
	KindPark:    "park",
	KindPromote: "promote",
	KindSelect:  "select",
	KindRemove:  "remove",
	KindDecay:   "decay",
	KindUnload:  "unload",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// ParseKind converts a kind name back to a Kind.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown trace kind %q", s)
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind name.
func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Event is a single scheduling decision.
type Event struct {
	Seq      int64      `json:"seq"`
	Tick     uint64     `json:"tick"`
	Kind     Kind       `json:"kind"`
	State    ir.StateID `json:"state,omitempty"`
	Parent   ir.StateID `json:"parent,omitempty"`
	Priority int64      `json:"priority"`
	Delta    int64      `json:"delta,omitempty"`
	Site     string     `json:"site,omitempty"`   // fork site or unloaded module
	Count    uint64     `json:"count,omitempty"`  // fork count at the site
	Reason   string     `json:"reason,omitempty"` // heuristic flags, e.g. "exit,cov"
}

// canonical converts the event to a map for canonical JSON.
// Zero-valued optional fields are omitted so golden files stay small.
func (e Event) canonical() map[string]any {
	m := map[string]any{
		"seq":      e.Seq,
		"tick":     e.Tick,
		"kind":     e.Kind.String(),
		"priority": e.Priority,
	}
	if e.State.Valid() {
		m["state"] = e.State
	}
	if e.Parent.Valid() {
		m["parent"] = e.Parent
	}
	if e.Delta != 0 {
		m["delta"] = e.Delta
	}
	if e.Site != "" {
		m["site"] = e.Site
	}
	if e.Count != 0 {
		m["count"] = e.Count
	}
	if e.Reason != "" {
		m["reason"] = e.Reason
	}
	return m
}

// Recorder receives decisions synchronously from the searcher.
// Implementations must not block; durable sinks should buffer.
type Recorder interface {
	Record(e Event)
}

// NopRecorder discards every event.
type NopRecorder struct{}

// Record implements Recorder.
func (NopRecorder) Record(Event) {}

// Memory keeps events in order. Not safe for concurrent use.
type Memory struct {
	events []Event
}

// NewMemory creates an empty in-memory recorder.
func NewMemory() *Memory {
	return &Memory{}
}

// Record implements Recorder.
func (m *Memory) Record(e Event) {
	m.events = append(m.events, e)
}

// Events returns a copy of the recorded events.
func (m *Memory) Events() []Event {
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// OfKind returns the recorded events of one kind, in order.
func (m *Memory) OfKind(k Kind) []Event {
	var out []Event
	for _, e := range m.events {
		if e.Kind == k {
			out = append(out, e)
		}
	}
	return out
}

// Reset drops all recorded events.
func (m *Memory) Reset() {
	m.events = m.events[:0]
}

// Tee fans events out to several recorders in order.
type Tee []Recorder

// Record implements Recorder.
func (t Tee) Record(e Event) {
	for _, r := range t {
		r.Record(e)
	}
}
