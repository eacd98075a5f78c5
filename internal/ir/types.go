package ir

import (
	"fmt"

	"golang.org/x/text/unicode/norm"
)

// StateID is an opaque handle to an execution state owned by the host engine.
//
// The host keeps the heavyweight state in its own table and hands the
// scheduler only this index. The zero value (NoState) is never a valid handle.
type StateID uint64

// NoState is the zero StateID. Hosts must not allocate it.
const NoState StateID = 0

// Valid reports whether id can refer to a host state.
func (id StateID) Valid() bool {
	return id != NoState
}

func (id StateID) String() string {
	return fmt.Sprintf("s%d", uint64(id))
}

// Location is a program point expressed relative to a loaded module.
type Location struct {
	Module string `json:"module" yaml:"module"`
	Offset uint64 `json:"offset" yaml:"offset"`
}

// String renders the location as module+0xoffset.
func (l Location) String() string {
	return fmt.Sprintf("%s+%#x", l.Module, l.Offset)
}

// LoopID identifies a statically detected loop by its module and header block.
type LoopID struct {
	Module string `json:"module" yaml:"module"`
	Header uint64 `json:"header" yaml:"header"`
}

func (l LoopID) String() string {
	return fmt.Sprintf("loop(%s+%#x)", l.Module, l.Header)
}

// Condition is a fork constraint handed over by the engine.
// The scheduler treats it as opaque and only renders it for traces.
type Condition interface {
	String() string
}

// TextCondition is a Condition carried as plain text.
// Used by the harness and by hosts without a richer expression type.
type TextCondition string

func (c TextCondition) String() string {
	return string(c)
}

// NormalizeModule returns the NFC form of a module name.
//
// Hosts may report the same module with different Unicode compositions
// (e.g. paths coming from different OS APIs). Every module name that keys
// scheduler bookkeeping goes through this function first.
func NormalizeModule(name string) string {
	return norm.NFC.String(name)
}
