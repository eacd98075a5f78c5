package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/loopexit/internal/forkcount"
	"github.com/roach88/loopexit/internal/store"
	"github.com/roach88/loopexit/internal/trace"
)

var loopExitScenario = filepath.Join("..", "harness", "testdata", "scenarios", "loop_exit.yaml")

const failingScenario = `
name: failing
description: "Expects the younger of two equal states"
modules: "module: m: {base: 0x1000, size: 0x100}"
steps:
  - op: add
    states: [x, y]
    at: m+0x0
  - op: select
    expect: {selected: y}
`

// simulate runs the simulate command with a fixed session id.
func simulate(t *testing.T, format, db, path string, verbose bool) (string, error) {
	t.Helper()

	buf := &bytes.Buffer{}
	opts := &SimulateOptions{
		RootOptions: &RootOptions{Format: format, Verbose: verbose},
		Database:    db,
		Sessions:    trace.NewFixedGenerator("session-1"),
	}
	cmd := &cobra.Command{}
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})

	err := runSimulate(opts, path, cmd)
	return buf.String(), err
}

func TestSimulate_Text(t *testing.T) {
	out, err := simulate(t, "text", "", loopExitScenario, false)
	require.NoError(t, err)

	assert.Contains(t, out, "✓ loop_exit (session test-session)")
	assert.Contains(t, out, "selected: leave, stay")
	assert.Contains(t, out, "7 events, 2 forks, 0 parks, 0 promotions")
	assert.Contains(t, out, "fork sites: app.exe+0x100 x2")
}

func TestSimulate_TextVerboseIncludesTrace(t *testing.T) {
	out, err := simulate(t, "text", "", loopExitScenario, true)
	require.NoError(t, err)
	assert.Contains(t, out, "fork")
	assert.Contains(t, out, "[exit,cov]")
}

func TestSimulate_JSON(t *testing.T) {
	out, err := simulate(t, "json", "", loopExitScenario, false)
	require.NoError(t, err)

	var resp struct {
		Status string         `json:"status"`
		Data   SimulateResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Pass)
	assert.Equal(t, []string{"leave", "stay"}, resp.Data.Selected)
	assert.Equal(t, 7, resp.Data.Events)
	assert.Equal(t, []forkcount.Site{{Module: "app.exe", Address: 0x100, Count: 2}}, resp.Data.Sites)
	assert.Empty(t, resp.Data.Trace, "trace only with --verbose")
}

func TestSimulate_StoresSession(t *testing.T) {
	db := filepath.Join(t.TempDir(), "runs.db")

	out, err := simulate(t, "text", db, loopExitScenario, false)
	require.NoError(t, err)
	assert.Contains(t, out, "(session session-1)")

	st, err := store.Open(db)
	require.NoError(t, err)
	defer st.Close()

	sess, err := st.ReadSession(t.Context(), "session-1")
	require.NoError(t, err)
	assert.Equal(t, "loop_exit", sess.Scenario)
	assert.Equal(t, 7, sess.Events)
}

func TestSimulate_FailingScenario(t *testing.T) {
	path := filepath.Join(t.TempDir(), "failing.yaml")
	require.NoError(t, os.WriteFile(path, []byte(failingScenario), 0o644))

	out, err := simulate(t, "text", "", path, false)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [E004]: scenario failing failed")
	assert.Contains(t, out, "✗ failing")
	assert.Contains(t, out, "expected y, got x")
}

func TestSimulate_FailingScenarioJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "failing.yaml")
	require.NoError(t, os.WriteFile(path, []byte(failingScenario), 0o644))

	out, err := simulate(t, "json", "", path, false)
	require.Error(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeFailed, resp.Error.Code)
	assert.NotNil(t, resp.Error.Details)
}

func TestSimulate_MissingScenario(t *testing.T) {
	out, err := simulate(t, "text", "", filepath.Join(t.TempDir(), "missing.yaml"), false)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E001]")
}

func TestSimulate_AbortedScenario(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	src := "name: broken\ndescription: d\nmodules: \"module: m: {base: 0x1000, size: 0x100}\"\nsteps:\n  - op: remove\n    state: ghost\n"
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))

	out, err := simulate(t, "text", "", path, false)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E003]")
	assert.Contains(t, out, `unknown state "ghost"`)
}
