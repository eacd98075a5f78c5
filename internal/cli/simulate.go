package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/loopexit/internal/forkcount"
	"github.com/roach88/loopexit/internal/harness"
	"github.com/roach88/loopexit/internal/ir"
	"github.com/roach88/loopexit/internal/store"
	"github.com/roach88/loopexit/internal/trace"
)

// SimulateOptions holds flags for the simulate command.
type SimulateOptions struct {
	*RootOptions
	Database string

	// Sessions allows overriding the session id generator (for testing).
	// If nil, defaults to UUIDv7Generator when --db is set.
	Sessions trace.SessionGenerator
}

// SimulateResult is the outcome of one simulated scenario.
type SimulateResult struct {
	Scenario string   `json:"scenario"`
	Session  string   `json:"session"`
	Pass     bool     `json:"pass"`
	Selected []string `json:"selected"`
	Errors   []string `json:"errors,omitempty"`
	Events   int      `json:"events"`
	Forks    uint64   `json:"forks"`
	Parks    uint64   `json:"parks"`
	Promoted uint64   `json:"promotions"`

	// Sites are the fork counts left at the end of the run.
	Sites []forkcount.Site `json:"fork_sites"`

	// Trace is included with --verbose.
	Trace []trace.Event `json:"trace,omitempty"`
}

func (r SimulateResult) renderText(w io.Writer) {
	mark := "✓"
	if !r.Pass {
		mark = "✗"
	}
	fmt.Fprintf(w, "%s %s (session %s)\n", mark, r.Scenario, r.Session)
	fmt.Fprintf(w, "  selected: %s\n", strings.Join(r.Selected, ", "))
	fmt.Fprintf(w, "  %d events, %d forks, %d parks, %d promotions\n", r.Events, r.Forks, r.Parks, r.Promoted)
	if len(r.Sites) > 0 {
		sites := make([]string, len(r.Sites))
		for i, s := range r.Sites {
			sites[i] = fmt.Sprintf("%s x%d", ir.Location{Module: s.Module, Offset: s.Address}, s.Count)
		}
		fmt.Fprintf(w, "  fork sites: %s\n", strings.Join(sites, ", "))
	}
	for _, e := range r.Errors {
		fmt.Fprintf(w, "  - %s\n", e)
	}
	if len(r.Trace) > 0 {
		fmt.Fprintln(w)
		for _, e := range r.Trace {
			fmt.Fprintln(w, trace.Format(e))
		}
	}
}

// NewSimulateCommand creates the simulate command.
func NewSimulateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SimulateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "simulate <scenario.yaml>",
		Short: "Run a scheduling scenario",
		Long: `Run a scheduling scenario against its program model.

The scenario drives the scheduler with add, remove, fork, tick and select
steps and checks its expectations after each step. With --db the run is
stored as a new session together with every scheduling decision.

Exit codes:
  0 - All expectations and assertions held
  1 - One or more expectations or assertions failed
  2 - Command error (unreadable scenario, broken program model, etc.)

Examples:
  loopexit simulate ./scenarios/loop_exit.yaml
  loopexit simulate ./scenarios/loop_exit.yaml --db ./runs.db
  loopexit simulate ./scenarios/loop_exit.yaml --format json -v`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "store the session in this SQLite database")

	return cmd
}

func runSimulate(opts *SimulateOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	log := opts.logger()

	scenario, err := harness.LoadScenario(path)
	if err != nil {
		_ = formatter.Error(ErrCodeLoad, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}
	formatter.VerboseLog("Loaded scenario %s with %d step(s)", scenario.Name, len(scenario.Steps))

	runOpts := []harness.Option{harness.WithLogger(log)}
	if opts.Database != "" {
		st, err := store.Open(opts.Database)
		if err != nil {
			_ = formatter.Error(ErrCodeStore, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()

		sessions := opts.Sessions
		if sessions == nil {
			sessions = trace.UUIDv7Generator{}
		}
		runOpts = append(runOpts, harness.WithStore(st), harness.WithSessionGenerator(sessions))
	}

	result, err := harness.Run(scenario, runOpts...)
	if err != nil {
		_ = formatter.Error(ErrCodeRun, err.Error(), nil)
		return WrapExitError(ExitCommandError, "scenario aborted", err)
	}
	log.Info("scenario finished", "scenario", scenario.Name, "session", result.Session,
		"pass", result.Pass, "events", len(result.Trace))

	out := SimulateResult{
		Scenario: scenario.Name,
		Session:  result.Session,
		Pass:     result.Pass,
		Selected: result.Selected,
		Errors:   result.Errors,
		Events:   len(result.Trace),
		Forks:    result.Stats.Forks,
		Parks:    result.Stats.Parks,
		Promoted: result.Stats.Promotions,
		Sites:    result.ForkSites,
	}
	if opts.Verbose {
		out.Trace = result.Trace
	}

	if !result.Pass {
		_ = formatter.Error(ErrCodeFailed, fmt.Sprintf("scenario %s failed", scenario.Name), out)
		return NewExitError(ExitFailure, fmt.Sprintf("scenario %s failed", scenario.Name))
	}
	return formatter.Success(out)
}
