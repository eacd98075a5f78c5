package analysis

import (
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"
)

// CompileError reports a malformed program description with its CUE position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// CompileString compiles a CUE program description held in memory.
//
// The description declares modules under a top-level "module" struct:
//
//	module: "app.exe": {
//		base: 0x400000
//		size: 0x2000
//		loops: [{
//			header: 0x100
//			body: [{start: 0x100, end: 0x180}]
//			exits: [0x180]
//		}]
//	}
func CompileString(src string) (*Program, error) {
	v := cuecontext.New().CompileString(src)
	return CompileProgram(v)
}

// LoadDir loads every CUE file of the package in dir and compiles it.
func LoadDir(dir string) (*Program, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("program directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", dir)
	}
	files, err := filepath.Glob(filepath.Join(dir, "*.cue"))
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", dir, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no CUE files found in %s", dir)
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, fmt.Errorf("no CUE instances loaded from %s", dir)
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, formatCUEError(inst.Err)
	}

	v := cuecontext.New().BuildInstance(inst)
	return CompileProgram(v)
}

// CompileProgram converts a CUE value with a "module" struct into a Program.
func CompileProgram(v cue.Value) (*Program, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	modsVal := v.LookupPath(cue.ParsePath("module"))
	if !modsVal.Exists() {
		return nil, &CompileError{Field: "module", Message: "at least one module is required", Pos: v.Pos()}
	}

	iter, err := modsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var modules []Module
	for iter.Next() {
		m, err := compileModule(iter.Selector().Unquoted(), iter.Value())
		if err != nil {
			return nil, err
		}
		modules = append(modules, m)
	}
	if len(modules) == 0 {
		return nil, &CompileError{Field: "module", Message: "at least one module is required", Pos: modsVal.Pos()}
	}

	p, err := NewProgram(modules...)
	if err != nil {
		return nil, &CompileError{Field: "module", Message: err.Error(), Pos: modsVal.Pos()}
	}
	return p, nil
}

func compileModule(name string, v cue.Value) (Module, error) {
	m := Module{Name: name}
	field := "module." + name

	var err error
	if m.Base, err = requireUint(v, "base", field); err != nil {
		return Module{}, err
	}
	if m.Size, err = requireUint(v, "size", field); err != nil {
		return Module{}, err
	}

	loopsVal := v.LookupPath(cue.ParsePath("loops"))
	if !loopsVal.Exists() {
		return m, nil
	}
	list, err := loopsVal.List()
	if err != nil {
		return Module{}, formatCUEError(err)
	}
	for i := 0; list.Next(); i++ {
		l, err := compileLoop(list.Value(), fmt.Sprintf("%s.loops[%d]", field, i))
		if err != nil {
			return Module{}, err
		}
		m.Loops = append(m.Loops, l)
	}
	return m, nil
}

func compileLoop(v cue.Value, field string) (Loop, error) {
	var l Loop
	var err error
	if l.Header, err = requireUint(v, "header", field); err != nil {
		return Loop{}, err
	}

	bodyVal := v.LookupPath(cue.ParsePath("body"))
	if !bodyVal.Exists() {
		return Loop{}, &CompileError{Field: field + ".body", Message: "body is required", Pos: v.Pos()}
	}
	body, err := bodyVal.List()
	if err != nil {
		return Loop{}, formatCUEError(err)
	}
	for i := 0; body.Next(); i++ {
		rf := fmt.Sprintf("%s.body[%d]", field, i)
		var r Range
		if r.Start, err = requireUint(body.Value(), "start", rf); err != nil {
			return Loop{}, err
		}
		if r.End, err = requireUint(body.Value(), "end", rf); err != nil {
			return Loop{}, err
		}
		l.Body = append(l.Body, r)
	}

	exitsVal := v.LookupPath(cue.ParsePath("exits"))
	if !exitsVal.Exists() {
		return Loop{}, &CompileError{Field: field + ".exits", Message: "exits is required", Pos: v.Pos()}
	}
	exits, err := exitsVal.List()
	if err != nil {
		return Loop{}, formatCUEError(err)
	}
	for exits.Next() {
		e, err := exits.Value().Uint64()
		if err != nil {
			return Loop{}, formatCUEError(err)
		}
		l.Exits = append(l.Exits, e)
	}
	return l, nil
}

func requireUint(v cue.Value, name, field string) (uint64, error) {
	f := v.LookupPath(cue.ParsePath(name))
	if !f.Exists() {
		return 0, &CompileError{Field: field + "." + name, Message: name + " is required", Pos: v.Pos()}
	}
	n, err := f.Uint64()
	if err != nil {
		return 0, formatCUEError(err)
	}
	return n, nil
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	positions := errors.Positions(first)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
