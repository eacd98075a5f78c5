package oracle

import "github.com/roach88/loopexit/internal/ir"

// Transition summarizes what the oracle knows about a fork child moving from
// the fork site to its resulting program counter.
type Transition struct {
	Site   ir.Location
	Target ir.Location

	// SiteResolved and Resolved report whether the site and the target PC
	// mapped to a module. An unresolved target makes every flag below false.
	SiteResolved bool
	Resolved     bool

	// ExitsLoop is true when the target is exactly a statically known loop
	// exit address. Exits are block starts, and a child resumes at the start
	// of the block it branched to; a host reporting a PC inside the exit
	// block, past its first instruction, gets no exit bonus.
	ExitsLoop bool

	// SameLoop is true when site and target sit in the same loop.
	SameLoop bool
	Loop     ir.LoopID

	// NewCoverage is true when the transition covered a new edge or block.
	NewCoverage bool
}

// Neutral reports whether the transition carries no heuristic signal.
func (t Transition) Neutral() bool {
	return !t.ExitsLoop && !t.SameLoop && !t.NewCoverage
}

// Transition classifies the move from sitePC to targetPC.
func (o *Oracle) Transition(sitePC, targetPC uint64) Transition {
	site, ok := o.Resolve(sitePC)
	return o.Classify(site, ok, targetPC)
}

// Classify classifies the move from an already resolved fork site to
// targetPC. The searcher resolves the site once per fork and classifies each
// child against it.
//
// Coverage trackers are stateful: both the edge and the block tracker are
// always consulted so each records the observation, even when the first one
// already reported something new.
func (o *Oracle) Classify(site ir.Location, siteResolved bool, targetPC uint64) Transition {
	t := Transition{Site: site, SiteResolved: siteResolved}
	t.Target, t.Resolved = o.Resolve(targetPC)
	if !t.Resolved {
		return t
	}

	t.ExitsLoop = o.IsLoopExit(t.Target.Module, t.Target.Offset)

	if t.SiteResolved {
		siteLoop, inSite := o.InLoop(t.Site.Module, t.Site.Offset)
		targetLoop, inTarget := o.InLoop(t.Target.Module, t.Target.Offset)
		if inSite && inTarget && siteLoop == targetLoop {
			t.SameLoop = true
			t.Loop = siteLoop
		}
	}

	newEdge := false
	if t.SiteResolved && t.Site.Module == t.Target.Module {
		newEdge = o.CoversNewEdge(t.Target.Module, t.Site.Offset, t.Target.Offset)
	}
	newBlock := o.CoversNewBlock(t.Target.Module, t.Target.Offset)
	t.NewCoverage = newEdge || newBlock

	return t
}
