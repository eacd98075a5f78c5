// Package forkcount tracks how many times execution forked at each branch site.
//
// Counts are kept per module and per site address. They only grow, by exactly
// one per observed fork, and are dropped as a whole when the module unloads.
package forkcount

import (
	"sort"

	"github.com/roach88/loopexit/internal/ir"
)

// Site is one fork location with its current count.
type Site struct {
	Module  string `json:"module"`
	Address uint64 `json:"address"`
	Count   uint64 `json:"count"`
}

// Table maps (module, address) to a fork count.
//
// Table is not safe for concurrent use. The searcher owns exactly one and
// mutates it only from the engine's exploration loop.
type Table struct {
	modules map[string]map[uint64]uint64
}

// New creates an empty table.
func New() *Table {
	return &Table{modules: make(map[string]map[uint64]uint64)}
}

// Record increments the count of the site and returns the new value.
func (t *Table) Record(module string, addr uint64) uint64 {
	module = ir.NormalizeModule(module)
	counts, ok := t.modules[module]
	if !ok {
		counts = make(map[uint64]uint64)
		t.modules[module] = counts
	}
	counts[addr]++
	return counts[addr]
}

// Count returns the number of forks recorded at the site, 0 if never seen.
func (t *Table) Count(module string, addr uint64) uint64 {
	return t.modules[ir.NormalizeModule(module)][addr]
}

// ResetModule forgets every site of module. Called on module unload, since
// addresses of a reloaded module no longer refer to the same code.
// Returns the number of sites dropped.
func (t *Table) ResetModule(module string) int {
	module = ir.NormalizeModule(module)
	n := len(t.modules[module])
	delete(t.modules, module)
	return n
}

// Sites lists the sites recorded for module, ordered by address.
func (t *Table) Sites(module string) []Site {
	module = ir.NormalizeModule(module)
	counts := t.modules[module]
	sites := make([]Site, 0, len(counts))
	for addr, c := range counts {
		sites = append(sites, Site{Module: module, Address: addr, Count: c})
	}
	sort.Slice(sites, func(i, j int) bool { return sites[i].Address < sites[j].Address })
	return sites
}

// Modules lists the modules with at least one recorded site, sorted by name.
func (t *Table) Modules() []string {
	names := make([]string, 0, len(t.modules))
	for name := range t.modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the total number of distinct sites across all modules.
func (t *Table) Len() int {
	n := 0
	for _, counts := range t.modules {
		n += len(counts)
	}
	return n
}
