package searcher

import (
	"math"
	"strings"

	"github.com/roach88/loopexit/internal/ir"
	"github.com/roach88/loopexit/internal/oracle"
	"github.com/roach88/loopexit/internal/trace"
)

// forkSite is the resolved location of one branching event.
type forkSite struct {
	loc      ir.Location
	resolved bool
	count    uint64
}

func (f forkSite) String() string {
	if !f.resolved {
		return ""
	}
	return f.loc.String()
}

// OnFork applies a branching event: parent forked into children under the
// given conditions. children may include parent itself when the engine lets
// the parent continue as one of the branches.
//
// The fork site is the parent's program counter. It is resolved once, its
// fork count incremented, and each child then receives a priority delta
// computed from its own resulting program counter. Children the searcher has
// not seen yet are registered here; children whose priority falls below the
// low-water mark are parked in the waiting pool.
//
// Parking is one-way within OnFork. A child that is already waiting keeps
// its pool even when the delta lifts it back above the low-water mark; it
// returns to the active pool at the next OnTimer promotion or selection
// backoff, with the raised priority it carries.
func (s *Searcher) OnFork(parent ir.StateID, children []ir.StateID, conditions []ir.Condition) error {
	site := s.resolveSite(parent)
	if conditions != nil && len(conditions) != len(children) {
		s.log.Warn("fork conditions do not match children",
			"parent", parent, "children", len(children), "conditions", len(conditions))
	}

	seen := make(map[ir.StateID]struct{}, len(children))
	for i, child := range children {
		if !child.Valid() {
			continue
		}
		if _, dup := seen[child]; dup {
			continue
		}
		seen[child] = struct{}{}

		tr := s.classify(site, child)
		delta, reason := s.delta(tr, site.count)
		if i < len(conditions) && conditions[i] != nil {
			s.log.Debug("fork child", "parent", parent, "child", child,
				"condition", conditions[i], "delta", delta, "reason", reason)
		}
		if err := s.increasePriority(child, parent, delta, site, reason); err != nil {
			return err
		}
	}

	s.stats.Forks++
	return nil
}

// resolveSite resolves the parent's PC and records the fork there.
// An unresolvable site yields a neutral site with no recorded count.
func (s *Searcher) resolveSite(parent ir.StateID) forkSite {
	var site forkSite
	if s.states == nil {
		return site
	}
	pc, ok := s.states.PC(parent)
	if !ok {
		return site
	}
	site.loc, site.resolved = s.oracle.Resolve(pc)
	if site.resolved {
		site.count = s.forks.Record(site.loc.Module, site.loc.Offset)
	}
	return site
}

func (s *Searcher) classify(site forkSite, child ir.StateID) oracle.Transition {
	if s.states == nil {
		return oracle.Transition{}
	}
	pc, ok := s.states.PC(child)
	if !ok {
		return oracle.Transition{Site: site.loc, SiteResolved: site.resolved}
	}
	return s.oracle.Classify(site.loc, site.resolved, pc)
}

// delta computes the priority change of a fork child and a short reason
// string listing the heuristics that applied.
func (s *Searcher) delta(tr oracle.Transition, count uint64) (int64, string) {
	var d int64
	var reasons []string

	if tr.ExitsLoop {
		d = addSat(d, s.cfg.LoopExitBonus)
		reasons = append(reasons, "exit")
	}
	if tr.SameLoop {
		d = addSat(d, -s.cfg.Penalty(count))
		reasons = append(reasons, "loop")
	}
	if tr.NewCoverage {
		d = addSat(d, s.cfg.CoverageBonus)
		reasons = append(reasons, "cov")
	}
	return d, strings.Join(reasons, ",")
}

// increasePriority adds delta to the priority of id (delta may be negative),
// registering id first if it is unknown, and parks it when it falls below
// the low-water mark.
func (s *Searcher) increasePriority(id, parent ir.StateID, delta int64, site forkSite, reason string) error {
	ev := trace.Event{
		Kind:   trace.KindFork,
		State:  id,
		Parent: parent,
		Delta:  delta,
		Site:   site.String(),
		Count:  site.count,
		Reason: reason,
	}

	switch {
	case s.active.Contains(id):
		old, _ := s.active.Priority(id)
		p := addSat(old, delta)
		ev.Priority = p
		s.record(ev)
		if p < s.cfg.LowWater {
			return s.park(id, p, reason)
		}
		if err := s.active.Reprioritize(id, p); err != nil {
			return newDesyncError(id, err)
		}

	case s.waiting.Contains(id):
		old, _ := s.waiting.Priority(id)
		p := addSat(old, delta)
		ev.Priority = p
		s.record(ev)
		if err := s.waiting.Reprioritize(id, p); err != nil {
			return newDesyncError(id, err)
		}

	default:
		p := addSat(s.cfg.DefaultPriority, delta)
		ev.Priority = p
		s.record(ev)
		if p < s.cfg.LowWater {
			if err := s.waiting.Insert(id, p); err != nil {
				return newDesyncError(id, err)
			}
			s.notePark(id, p, reason)
			return nil
		}
		if err := s.active.Insert(id, p); err != nil {
			return newDesyncError(id, err)
		}
	}
	return nil
}

// park moves id from active to waiting with priority p.
func (s *Searcher) park(id ir.StateID, p int64, reason string) error {
	if err := s.active.Remove(id); err != nil {
		return newDesyncError(id, err)
	}
	if err := s.waiting.Insert(id, p); err != nil {
		return newDesyncError(id, err)
	}
	s.notePark(id, p, reason)
	return nil
}

func (s *Searcher) notePark(id ir.StateID, p int64, reason string) {
	s.stats.Parks++
	s.log.Debug("parked state", "state", id, "priority", p, "low_water", s.cfg.LowWater)
	s.record(trace.Event{Kind: trace.KindPark, State: id, Priority: p, Reason: reason})
}

// addSat adds two priorities, saturating instead of wrapping.
func addSat(a, b int64) int64 {
	if b > 0 && a > math.MaxInt64-b {
		return math.MaxInt64
	}
	if b < 0 && a < math.MinInt64-b {
		return math.MinInt64
	}
	return a + b
}
