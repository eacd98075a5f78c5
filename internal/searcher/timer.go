package searcher

import (
	"github.com/roach88/loopexit/internal/ir"
	"github.com/roach88/loopexit/internal/trace"
)

// OnTimer handles one periodic tick.
//
// The tick counter advances, up to PromotionQuota longest-waiting states are
// promoted back to active, and the current state's priority decays if it has
// held the selection for DecayInterval ticks.
//
// A state at position k of the waiting order (1-based, oldest first) is
// therefore back in the active pool after at most ceil(k/PromotionQuota)
// ticks: states parked later always sort behind it.
func (s *Searcher) OnTimer() error {
	s.ticks++

	if err := s.promote(s.cfg.PromotionQuota, "tick"); err != nil {
		return err
	}
	return s.decay()
}

// promote moves up to n longest-waiting states to active. Their priority is
// lifted to the low-water mark so a promoted state is not re-parked at once.
func (s *Searcher) promote(n int, reason string) error {
	ids := s.waiting.Oldest(n)
	for _, id := range ids {
		p, _ := s.waiting.Priority(id)
		if err := s.waiting.Remove(id); err != nil {
			return newDesyncError(id, err)
		}
		if p < s.cfg.LowWater {
			p = s.cfg.LowWater
		}
		if err := s.active.Insert(id, p); err != nil {
			return newDesyncError(id, err)
		}
		s.stats.Promotions++
		s.record(trace.Event{Kind: trace.KindPromote, State: id, Priority: p, Reason: reason})
	}
	if len(ids) > 0 {
		s.log.Debug("promoted waiting states", "count", len(ids), "reason", reason, "waiting", s.waiting.Len(), "tick", s.ticks)
	}
	return nil
}

// decay lowers the current state's priority once it has been current for
// DecayInterval ticks, never below the low-water mark.
func (s *Searcher) decay() error {
	if !s.current.Valid() || s.cfg.DecayAmount == 0 {
		return nil
	}
	p, ok := s.active.Priority(s.current)
	if !ok {
		return nil
	}
	if s.ticks-s.currentSince < s.cfg.DecayInterval {
		return nil
	}

	s.currentSince = s.ticks
	next := addSat(p, -s.cfg.DecayAmount)
	if next < s.cfg.LowWater {
		next = s.cfg.LowWater
	}
	if next == p {
		return nil
	}
	if err := s.active.Reprioritize(s.current, next); err != nil {
		return newDesyncError(s.current, err)
	}
	s.stats.Decays++
	s.record(trace.Event{Kind: trace.KindDecay, State: s.current, Priority: next, Delta: next - p})
	return nil
}

// OnModuleUnload forgets the fork counts of an unloaded module. Addresses of
// a reloaded module no longer refer to the same code.
func (s *Searcher) OnModuleUnload(module string) {
	module = ir.NormalizeModule(module)
	n := s.forks.ResetModule(module)
	s.log.Debug("module unloaded", "module", module, "sites", n)
	s.record(trace.Event{Kind: trace.KindUnload, Site: module, Count: uint64(n)})
}
