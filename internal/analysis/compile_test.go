package analysis

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleProgram = `
module: "app.exe": {
	base: 0x400000
	size: 0x1000
	loops: [{
		header: 0x100
		body: [{start: 0x100, end: 0x180}]
		exits: [0x180, 0x1c0]
	}]
}
module: "lib.dll": {
	base: 0x10000000
	size: 0x200
}
`

func TestCompileString(t *testing.T) {
	p, err := CompileString(sampleProgram)
	require.NoError(t, err)

	mods := p.Modules()
	require.Len(t, mods, 2)
	assert.Equal(t, "app.exe", mods[0].Name)
	assert.Equal(t, uint64(0x400000), mods[0].Base)
	require.Len(t, mods[0].Loops, 1)
	assert.Equal(t, []uint64{0x180, 0x1c0}, mods[0].Loops[0].Exits)
	assert.Empty(t, mods[1].Loops)

	assert.True(t, p.IsLoopExit("app.exe", 0x1c0))
}

func TestCompileString_MissingModule(t *testing.T) {
	_, err := CompileString(`other: 1`)
	require.Error(t, err)

	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "module", ce.Field)
}

func TestCompileString_MissingField(t *testing.T) {
	_, err := CompileString(`module: m: { base: 0x1000 }`)
	require.Error(t, err)

	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "module.m.size", ce.Field)
}

func TestCompileString_MissingExits(t *testing.T) {
	_, err := CompileString(`module: m: {
		base: 0
		size: 0x100
		loops: [{header: 0x10, body: [{start: 0x10, end: 0x20}]}]
	}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exits is required")
}

func TestCompileString_SyntaxError(t *testing.T) {
	_, err := CompileString(`module: {`)
	require.Error(t, err)
}

func TestCompileString_InvalidModel(t *testing.T) {
	_, err := CompileString(`
		module: a: { base: 0x1000, size: 0x100 }
		module: b: { base: 0x1010, size: 0x100 }
	`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overlaps")
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "program.cue"), []byte("package program\n"+sampleProgram), 0o644))

	p, err := LoadDir(dir)
	require.NoError(t, err)
	assert.Len(t, p.Modules(), 2)
}

func TestLoadDir_Errors(t *testing.T) {
	_, err := LoadDir(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)

	_, err = LoadDir(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no CUE files")
}
