package multistates

import (
	"container/heap"
	"sort"

	"github.com/roach88/loopexit/internal/ir"
)

// Sequencer hands out strictly increasing insertion sequence numbers.
type Sequencer interface {
	Next() int64
}

// counter is the fallback Sequencer for a standalone Store.
type counter struct{ n int64 }

func (c *counter) Next() int64 {
	c.n++
	return c.n
}

// Store is a priority-ordered pool of state handles.
//
// Store is not safe for concurrent use.
type Store struct {
	name string
	seq  Sequencer
	heap entryHeap
	byID map[ir.StateID]*entry
}

// New creates an empty pool. name identifies the pool in errors.
// If seq is nil the pool numbers insertions on its own.
func New(name string, seq Sequencer) *Store {
	if seq == nil {
		seq = &counter{}
	}
	return &Store{
		name: name,
		seq:  seq,
		byID: make(map[ir.StateID]*entry),
	}
}

// Name returns the pool name given to New.
func (s *Store) Name() string {
	return s.name
}

// Insert adds id with the given priority, stamping a fresh insertion sequence.
func (s *Store) Insert(id ir.StateID, priority int64) error {
	if _, ok := s.byID[id]; ok {
		return &DuplicateError{Pool: s.name, State: id}
	}
	e := &entry{id: id, priority: priority, seq: s.seq.Next()}
	heap.Push(&s.heap, e)
	s.byID[id] = e
	return nil
}

// Remove deletes id from the pool.
func (s *Store) Remove(id ir.StateID) error {
	e, ok := s.byID[id]
	if !ok {
		return &NotFoundError{Pool: s.name, State: id, Op: "remove"}
	}
	heap.Remove(&s.heap, e.index)
	delete(s.byID, id)
	return nil
}

// Reprioritize changes the priority of id in place.
// The insertion sequence is kept, so ties still resolve by original arrival.
func (s *Store) Reprioritize(id ir.StateID, priority int64) error {
	e, ok := s.byID[id]
	if !ok {
		return &NotFoundError{Pool: s.name, State: id, Op: "reprioritize"}
	}
	if e.priority == priority {
		return nil
	}
	e.priority = priority
	heap.Fix(&s.heap, e.index)
	return nil
}

// PeekMax returns the state that would be selected next without removing it.
func (s *Store) PeekMax() (ir.StateID, bool) {
	if len(s.heap) == 0 {
		return ir.NoState, false
	}
	return s.heap[0].id, true
}

// Priority returns the current priority of id.
func (s *Store) Priority(id ir.StateID) (int64, bool) {
	e, ok := s.byID[id]
	if !ok {
		return 0, false
	}
	return e.priority, true
}

// Seq returns the insertion sequence of id.
func (s *Store) Seq(id ir.StateID) (int64, bool) {
	e, ok := s.byID[id]
	if !ok {
		return 0, false
	}
	return e.seq, true
}

// Contains reports whether id is in the pool.
func (s *Store) Contains(id ir.StateID) bool {
	_, ok := s.byID[id]
	return ok
}

// IsEmpty reports whether the pool holds no state.
func (s *Store) IsEmpty() bool {
	return len(s.heap) == 0
}

// Len returns the number of states in the pool.
func (s *Store) Len() int {
	return len(s.heap)
}

// Oldest returns up to n states with the smallest insertion sequences,
// oldest first. For the waiting pool this is the longest-parked states.
func (s *Store) Oldest(n int) []ir.StateID {
	if n <= 0 || len(s.heap) == 0 {
		return nil
	}
	entries := make([]*entry, len(s.heap))
	copy(entries, s.heap)
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	if n > len(entries) {
		n = len(entries)
	}
	ids := make([]ir.StateID, n)
	for i := 0; i < n; i++ {
		ids[i] = entries[i].id
	}
	return ids
}

// States returns a snapshot of the pool in selection order.
func (s *Store) States() []ir.StateID {
	entries := make([]*entry, len(s.heap))
	copy(entries, s.heap)
	sort.Slice(entries, func(i, j int) bool { return entries[i].before(entries[j]) })
	ids := make([]ir.StateID, len(entries))
	for i, e := range entries {
		ids[i] = e.id
	}
	return ids
}
