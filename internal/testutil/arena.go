// Package testutil provides host-side fakes for driving the searcher in tests.
package testutil

import (
	"fmt"
	"sort"

	"github.com/roach88/loopexit/internal/ir"
)

// Arena is a minimal host state table: states live in a slice and are
// addressed by index+1, the way an engine hands out handles into its own
// arena. Terminated slots are never reused, so a stale handle can't alias a
// new state.
type Arena struct {
	slots []slot
}

type slot struct {
	pc   uint64
	live bool
}

// NewArena creates an empty arena.
func NewArena() *Arena {
	return &Arena{}
}

// Spawn allocates a live state at pc and returns its handle.
func (a *Arena) Spawn(pc uint64) ir.StateID {
	a.slots = append(a.slots, slot{pc: pc, live: true})
	return ir.StateID(len(a.slots))
}

// SpawnN allocates n states at pc.
func (a *Arena) SpawnN(n int, pc uint64) []ir.StateID {
	ids := make([]ir.StateID, n)
	for i := range ids {
		ids[i] = a.Spawn(pc)
	}
	return ids
}

// Fork allocates one child per target pc. The parent is left untouched.
func (a *Arena) Fork(targets ...uint64) []ir.StateID {
	ids := make([]ir.StateID, len(targets))
	for i, pc := range targets {
		ids[i] = a.Spawn(pc)
	}
	return ids
}

// Move sets the program counter of a live state.
// Panics on an unknown or terminated handle: a test bug.
func (a *Arena) Move(id ir.StateID, pc uint64) {
	s := a.slot(id)
	if s == nil || !s.live {
		panic(fmt.Sprintf("testutil: move of dead state %s", id))
	}
	s.pc = pc
}

// Kill terminates a state. Killing twice is allowed.
func (a *Arena) Kill(id ir.StateID) {
	if s := a.slot(id); s != nil {
		s.live = false
	}
}

// PC implements searcher.StateTable.
func (a *Arena) PC(id ir.StateID) (uint64, bool) {
	s := a.slot(id)
	if s == nil || !s.live {
		return 0, false
	}
	return s.pc, true
}

// Live returns the live handles in ascending order.
func (a *Arena) Live() []ir.StateID {
	var ids []ir.StateID
	for i, s := range a.slots {
		if s.live {
			ids = append(ids, ir.StateID(i+1))
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (a *Arena) slot(id ir.StateID) *slot {
	if !id.Valid() || int(id) > len(a.slots) {
		return nil
	}
	return &a.slots[id-1]
}
