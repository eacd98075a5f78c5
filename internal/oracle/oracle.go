// Package oracle is a read-only façade over the static analyses and coverage
// trackers the searcher consults when it admits forked states.
//
// The oracle never caches. Every answer is forwarded to a collaborator; a
// missing collaborator or an unresolved program counter yields the neutral
// answer (not a loop exit, not in a loop, nothing new covered).
package oracle

import (
	"github.com/roach88/loopexit/internal/ir"
)

// Resolver maps a raw program counter to a module-relative location.
// ok is false when the PC does not belong to any known module.
type Resolver interface {
	Resolve(pc uint64) (loc ir.Location, ok bool)
}

// LoopProvider answers loop-structure queries for module-relative addresses.
type LoopProvider interface {
	IsLoopExit(module string, addr uint64) bool
	InLoop(module string, addr uint64) (ir.LoopID, bool)
}

// EdgeCoverage reports whether a control-flow edge is observed for the first time.
type EdgeCoverage interface {
	CoversNewEdge(module string, from, to uint64) bool
}

// BlockCoverage reports whether a basic block is observed for the first time.
type BlockCoverage interface {
	CoversNewBlock(module string, addr uint64) bool
}

// Oracle bundles the collaborators. Any of them may be nil.
type Oracle struct {
	resolver Resolver
	loops    LoopProvider
	edges    EdgeCoverage
	blocks   BlockCoverage
}

// Option configures optional collaborators.
type Option func(*Oracle)

// WithEdgeCoverage attaches an edge coverage tracker.
func WithEdgeCoverage(c EdgeCoverage) Option {
	return func(o *Oracle) {
		o.edges = c
	}
}

// WithBlockCoverage attaches a basic-block coverage tracker.
func WithBlockCoverage(c BlockCoverage) Option {
	return func(o *Oracle) {
		o.blocks = c
	}
}

// New creates an oracle over a resolver and a loop provider.
func New(r Resolver, loops LoopProvider, opts ...Option) *Oracle {
	o := &Oracle{resolver: r, loops: loops}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Resolve maps pc to a location with an NFC-normalized module name.
func (o *Oracle) Resolve(pc uint64) (ir.Location, bool) {
	if o == nil || o.resolver == nil {
		return ir.Location{}, false
	}
	loc, ok := o.resolver.Resolve(pc)
	if !ok || loc.Module == "" {
		return ir.Location{}, false
	}
	loc.Module = ir.NormalizeModule(loc.Module)
	return loc, true
}

// IsLoopExit reports whether addr is a statically known loop exit of module.
func (o *Oracle) IsLoopExit(module string, addr uint64) bool {
	if o == nil || o.loops == nil {
		return false
	}
	return o.loops.IsLoopExit(module, addr)
}

// InLoop returns the innermost loop enclosing addr, if any.
func (o *Oracle) InLoop(module string, addr uint64) (ir.LoopID, bool) {
	if o == nil || o.loops == nil {
		return ir.LoopID{}, false
	}
	return o.loops.InLoop(module, addr)
}

// CoversNewEdge forwards to the edge tracker.
func (o *Oracle) CoversNewEdge(module string, from, to uint64) bool {
	if o == nil || o.edges == nil {
		return false
	}
	return o.edges.CoversNewEdge(module, from, to)
}

// CoversNewBlock forwards to the block tracker.
func (o *Oracle) CoversNewBlock(module string, addr uint64) bool {
	if o == nil || o.blocks == nil {
		return false
	}
	return o.blocks.CoversNewBlock(module, addr)
}
