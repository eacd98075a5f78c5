// Package analysis provides a static program model for the searcher's
// collaborators: module address resolution and loop structure.
//
// A Program is normally compiled from a CUE description (see CompileString
// and LoadDir). It implements oracle.Resolver and oracle.LoopProvider.
package analysis

import (
	"fmt"
	"sort"

	"github.com/roach88/loopexit/internal/ir"
)

// Range is a half-open offset range [Start, End) inside a module.
type Range struct {
	Start uint64 `json:"start"`
	End   uint64 `json:"end"`
}

// Contains reports whether off falls inside the range.
func (r Range) Contains(off uint64) bool {
	return off >= r.Start && off < r.End
}

// Loop is a statically detected natural loop.
type Loop struct {
	// Header is the offset of the loop header block.
	Header uint64 `json:"header"`

	// Body lists the offset ranges of the loop's blocks, header included.
	Body []Range `json:"body"`

	// Exits lists the offsets reached by edges leaving the loop.
	Exits []uint64 `json:"exits"`
}

func (l Loop) contains(off uint64) bool {
	for _, r := range l.Body {
		if r.Contains(off) {
			return true
		}
	}
	return false
}

func (l Loop) size() uint64 {
	var n uint64
	for _, r := range l.Body {
		n += r.End - r.Start
	}
	return n
}

// Module is one loaded binary image.
type Module struct {
	Name  string `json:"name"`
	Base  uint64 `json:"base"`
	Size  uint64 `json:"size"`
	Loops []Loop `json:"loops"`
}

// Program is a set of non-overlapping modules.
type Program struct {
	modules []Module // sorted by Base
	byName  map[string]int
	exits   map[string]map[uint64]struct{}
}

// NewProgram validates modules and builds the lookup indexes.
func NewProgram(modules ...Module) (*Program, error) {
	p := &Program{
		modules: make([]Module, len(modules)),
		byName:  make(map[string]int, len(modules)),
		exits:   make(map[string]map[uint64]struct{}, len(modules)),
	}
	copy(p.modules, modules)
	for i := range p.modules {
		p.modules[i].Name = ir.NormalizeModule(p.modules[i].Name)
	}
	sort.Slice(p.modules, func(i, j int) bool { return p.modules[i].Base < p.modules[j].Base })

	for i, m := range p.modules {
		if err := validateModule(m); err != nil {
			return nil, err
		}
		if _, dup := p.byName[m.Name]; dup {
			return nil, fmt.Errorf("module %q declared twice", m.Name)
		}
		if i > 0 {
			prev := p.modules[i-1]
			if prev.Base+prev.Size > m.Base {
				return nil, fmt.Errorf("module %q overlaps module %q", m.Name, prev.Name)
			}
		}
		p.byName[m.Name] = i

		exits := make(map[uint64]struct{})
		for _, l := range m.Loops {
			for _, e := range l.Exits {
				exits[e] = struct{}{}
			}
		}
		p.exits[m.Name] = exits
	}
	return p, nil
}

func validateModule(m Module) error {
	if m.Name == "" {
		return fmt.Errorf("module at %#x has no name", m.Base)
	}
	if m.Size == 0 {
		return fmt.Errorf("module %q has zero size", m.Name)
	}
	if m.Base+m.Size < m.Base {
		return fmt.Errorf("module %q wraps the address space", m.Name)
	}
	for _, l := range m.Loops {
		if len(l.Body) == 0 {
			return fmt.Errorf("module %q: loop %#x has no body", m.Name, l.Header)
		}
		for _, r := range l.Body {
			if r.End <= r.Start || r.End > m.Size {
				return fmt.Errorf("module %q: loop %#x has invalid body range [%#x, %#x)", m.Name, l.Header, r.Start, r.End)
			}
		}
		if !l.contains(l.Header) {
			return fmt.Errorf("module %q: loop header %#x outside its body", m.Name, l.Header)
		}
		if len(l.Exits) == 0 {
			return fmt.Errorf("module %q: loop %#x has no exit", m.Name, l.Header)
		}
		for _, e := range l.Exits {
			if l.contains(e) {
				return fmt.Errorf("module %q: loop %#x exit %#x lies inside the loop", m.Name, l.Header, e)
			}
			if e >= m.Size {
				return fmt.Errorf("module %q: loop %#x exit %#x outside the module", m.Name, l.Header, e)
			}
		}
	}
	return nil
}

// Modules returns the modules ordered by base address.
func (p *Program) Modules() []Module {
	out := make([]Module, len(p.modules))
	copy(out, p.modules)
	return out
}

// Module returns the module with the given name.
func (p *Program) Module(name string) (Module, bool) {
	i, ok := p.byName[ir.NormalizeModule(name)]
	if !ok {
		return Module{}, false
	}
	return p.modules[i], true
}

// Resolve implements oracle.Resolver.
func (p *Program) Resolve(pc uint64) (ir.Location, bool) {
	i := sort.Search(len(p.modules), func(i int) bool {
		return p.modules[i].Base+p.modules[i].Size > pc
	})
	if i == len(p.modules) || pc < p.modules[i].Base {
		return ir.Location{}, false
	}
	m := p.modules[i]
	return ir.Location{Module: m.Name, Offset: pc - m.Base}, true
}

// Address converts a location back to an absolute program counter.
func (p *Program) Address(module string, offset uint64) (uint64, bool) {
	m, ok := p.Module(module)
	if !ok || offset >= m.Size {
		return 0, false
	}
	return m.Base + offset, true
}

// IsLoopExit implements oracle.LoopProvider.
func (p *Program) IsLoopExit(module string, addr uint64) bool {
	_, ok := p.exits[ir.NormalizeModule(module)][addr]
	return ok
}

// InLoop implements oracle.LoopProvider. Nested loops resolve to the
// innermost (smallest) loop containing addr.
func (p *Program) InLoop(module string, addr uint64) (ir.LoopID, bool) {
	m, ok := p.Module(module)
	if !ok {
		return ir.LoopID{}, false
	}

	var best *Loop
	for i := range m.Loops {
		l := &m.Loops[i]
		if !l.contains(addr) {
			continue
		}
		if best == nil || l.size() < best.size() {
			best = l
		}
	}
	if best == nil {
		return ir.LoopID{}, false
	}
	return ir.LoopID{Module: m.Name, Header: best.Header}, true
}

// canonical converts the program for canonical JSON hashing.
func (p *Program) canonical() map[string]any {
	mods := make([]any, len(p.modules))
	for i, m := range p.modules {
		loops := make([]any, len(m.Loops))
		for j, l := range m.Loops {
			body := make([]any, len(l.Body))
			for k, r := range l.Body {
				body[k] = map[string]any{"start": r.Start, "end": r.End}
			}
			exits := make([]any, len(l.Exits))
			for k, e := range l.Exits {
				exits[k] = e
			}
			loops[j] = map[string]any{"header": l.Header, "body": body, "exits": exits}
		}
		mods[i] = map[string]any{"name": m.Name, "base": m.Base, "size": m.Size, "loops": loops}
	}
	return map[string]any{"modules": mods}
}

// Hash fingerprints the program. Equal programs hash equally regardless of
// declaration order of modules.
func (p *Program) Hash() (string, error) {
	data, err := ir.MarshalCanonical(p.canonical())
	if err != nil {
		return "", err
	}
	return ir.ProgramHash(data), nil
}
