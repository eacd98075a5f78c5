package trace

import (
	"fmt"

	"github.com/roach88/loopexit/internal/ir"
)

// Snapshot renders a named trace as canonical JSON, one deterministic byte
// sequence per (name, events) pair. Used for golden-file comparison.
func Snapshot(name string, events []Event) ([]byte, error) {
	list := make([]any, len(events))
	for i, e := range events {
		list[i] = e.canonical()
	}
	data, err := ir.MarshalCanonical(map[string]any{
		"name":  name,
		"trace": list,
	})
	if err != nil {
		return nil, fmt.Errorf("trace snapshot %q: %w", name, err)
	}
	return data, nil
}

// Format renders one event as a single human-readable line.
func Format(e Event) string {
	line := fmt.Sprintf("%5d t=%-3d %-7s", e.Seq, e.Tick, e.Kind)
	if e.State.Valid() {
		line += fmt.Sprintf(" %s", e.State)
	}
	if e.Parent.Valid() {
		line += fmt.Sprintf(" parent=%s", e.Parent)
	}
	line += fmt.Sprintf(" prio=%d", e.Priority)
	if e.Delta != 0 {
		line += fmt.Sprintf(" delta=%+d", e.Delta)
	}
	if e.Site != "" {
		line += fmt.Sprintf(" site=%s", e.Site)
	}
	if e.Count != 0 {
		line += fmt.Sprintf(" count=%d", e.Count)
	}
	if e.Reason != "" {
		line += fmt.Sprintf(" [%s]", e.Reason)
	}
	return line
}
