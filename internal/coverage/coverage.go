// Package coverage provides first-seen trackers for control-flow edges and
// basic blocks, keyed per module.
//
// A tracker answers true exactly once per edge or block: the first time it is
// observed. Trackers are not safe for concurrent use.
package coverage

import (
	"github.com/roach88/loopexit/internal/ir"
)

type edge struct {
	from, to uint64
}

// Edges tracks covered control-flow edges.
type Edges struct {
	seen map[string]map[edge]struct{}
}

// NewEdges creates an empty edge tracker.
func NewEdges() *Edges {
	return &Edges{seen: make(map[string]map[edge]struct{})}
}

// CoversNewEdge marks from→to as covered and reports whether it was new.
func (c *Edges) CoversNewEdge(module string, from, to uint64) bool {
	module = ir.NormalizeModule(module)
	edges, ok := c.seen[module]
	if !ok {
		edges = make(map[edge]struct{})
		c.seen[module] = edges
	}
	e := edge{from: from, to: to}
	if _, dup := edges[e]; dup {
		return false
	}
	edges[e] = struct{}{}
	return true
}

// Covered returns the number of distinct edges covered in module.
func (c *Edges) Covered(module string) int {
	return len(c.seen[ir.NormalizeModule(module)])
}

// ResetModule forgets the coverage of module.
func (c *Edges) ResetModule(module string) {
	delete(c.seen, ir.NormalizeModule(module))
}

// Blocks tracks covered basic blocks.
type Blocks struct {
	seen map[string]map[uint64]struct{}
}

// NewBlocks creates an empty block tracker.
func NewBlocks() *Blocks {
	return &Blocks{seen: make(map[string]map[uint64]struct{})}
}

// CoversNewBlock marks addr as covered and reports whether it was new.
func (c *Blocks) CoversNewBlock(module string, addr uint64) bool {
	module = ir.NormalizeModule(module)
	blocks, ok := c.seen[module]
	if !ok {
		blocks = make(map[uint64]struct{})
		c.seen[module] = blocks
	}
	if _, dup := blocks[addr]; dup {
		return false
	}
	blocks[addr] = struct{}{}
	return true
}

// Seed marks blocks as already covered, e.g. from a previous run.
func (c *Blocks) Seed(module string, addrs ...uint64) {
	for _, a := range addrs {
		c.CoversNewBlock(module, a)
	}
}

// Covered returns the number of distinct blocks covered in module.
func (c *Blocks) Covered(module string) int {
	return len(c.seen[ir.NormalizeModule(module)])
}

// ResetModule forgets the coverage of module.
func (c *Blocks) ResetModule(module string) {
	delete(c.seen, ir.NormalizeModule(module))
}
