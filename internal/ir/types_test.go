package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStateID_Valid(t *testing.T) {
	assert.False(t, NoState.Valid())
	assert.True(t, StateID(1).Valid())
	assert.Equal(t, "s42", StateID(42).String())
}

func TestLocation_String(t *testing.T) {
	loc := Location{Module: "driver.sys", Offset: 0x100}
	assert.Equal(t, "driver.sys+0x100", loc.String())
}

func TestLoopID_String(t *testing.T) {
	assert.Equal(t, "loop(a.exe+0x40)", LoopID{Module: "a.exe", Header: 0x40}.String())
}

func TestNormalizeModule(t *testing.T) {
	// "é" as a single code point vs "e" + combining acute accent
	composed := "caf\u00e9.dll"
	decomposed := "cafe\u0301.dll"

	assert.NotEqual(t, composed, decomposed)
	assert.Equal(t, NormalizeModule(composed), NormalizeModule(decomposed))
	assert.Equal(t, "plain.dll", NormalizeModule("plain.dll"))
}

func TestTextCondition(t *testing.T) {
	var c Condition = TextCondition("x > 3")
	assert.Equal(t, "x > 3", c.String())
}
