package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/loopexit/internal/searcher"
	"github.com/roach88/loopexit/internal/store"
	"github.com/roach88/loopexit/internal/trace"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Session  string // optional - without it, sessions are listed
	Kind     string // optional - filter to one event kind
}

// SessionSummary is one line of the session listing.
type SessionSummary struct {
	ID       string `json:"id"`
	Scenario string `json:"scenario"`
	Events   int    `json:"events"`
}

// SessionList holds the stored sessions.
type SessionList struct {
	Sessions []SessionSummary `json:"sessions"`
}

// TraceResult holds one session's decisions.
type TraceResult struct {
	Session     string          `json:"session"`
	Scenario    string          `json:"scenario"`
	ProgramHash string          `json:"program_hash"`
	Config      searcher.Config `json:"config"`
	Events      []trace.Event   `json:"events"`
	Counts      map[string]int  `json:"counts"`
}

func (l SessionList) renderText(w io.Writer) {
	if len(l.Sessions) == 0 {
		fmt.Fprintln(w, "No sessions stored.")
		return
	}
	for _, s := range l.Sessions {
		fmt.Fprintf(w, "%s  %-24s %d events\n", s.ID, s.Scenario, s.Events)
	}
}

func (r TraceResult) renderText(w io.Writer) {
	fmt.Fprintf(w, "Session %s (scenario %s)\n", r.Session, r.Scenario)
	fmt.Fprintf(w, "Program %s\n\n", r.ProgramHash)
	if len(r.Events) == 0 {
		fmt.Fprintln(w, "No events.")
		return
	}
	for _, e := range r.Events {
		fmt.Fprintln(w, trace.Format(e))
	}
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Inspect stored scheduling sessions",
		Long: `Inspect the scheduling decisions stored by simulate --db.

Without --session, lists the stored sessions oldest first. With
--session, prints the session's decisions in order; --kind restricts
them to one event kind (admit, fork, park, promote, select, remove,
decay, unload).

Examples:
  loopexit trace --db ./runs.db
  loopexit trace --db ./runs.db --session 0192...
  loopexit trace --db ./runs.db --session 0192... --kind park --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Session, "session", "", "session to print")
	cmd.Flags().StringVar(&opts.Kind, "kind", "", "filter to one event kind")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	if opts.Session == "" {
		return listSessions(ctx, st, formatter)
	}

	sess, err := st.ReadSession(ctx, opts.Session)
	if errors.Is(err, store.ErrSessionNotFound) {
		_ = formatter.Error(ErrCodeNotFound, err.Error(), nil)
		return WrapExitError(ExitCommandError, "unknown session", err)
	}
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to read session", err)
	}

	var events []trace.Event
	if opts.Kind != "" {
		kind, perr := trace.ParseKind(opts.Kind)
		if perr != nil {
			_ = formatter.Error(ErrCodeLoad, perr.Error(), nil)
			return WrapExitError(ExitCommandError, "invalid --kind", perr)
		}
		events, err = st.ReadEventsOfKind(ctx, sess.ID, kind)
	} else {
		events, err = st.ReadEvents(ctx, sess.ID)
	}
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to read events", err)
	}
	formatter.VerboseLog("Read %d of %d event(s)", len(events), sess.Events)

	counts := make(map[string]int)
	for _, e := range events {
		counts[e.Kind.String()]++
	}
	if events == nil {
		events = []trace.Event{}
	}

	return formatter.Success(TraceResult{
		Session:     sess.ID,
		Scenario:    sess.Scenario,
		ProgramHash: sess.ProgramHash,
		Config:      sess.Config,
		Events:      events,
		Counts:      counts,
	})
}

func listSessions(ctx context.Context, st *store.Store, formatter *OutputFormatter) error {
	sessions, err := st.Sessions(ctx)
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to list sessions", err)
	}

	list := SessionList{Sessions: make([]SessionSummary, 0, len(sessions))}
	for _, s := range sessions {
		list.Sessions = append(list.Sessions, SessionSummary{ID: s.ID, Scenario: s.Scenario, Events: s.Events})
	}
	return formatter.Success(list)
}
