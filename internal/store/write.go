package store

import (
	"context"
	"fmt"

	"github.com/roach88/loopexit/internal/ir"
	"github.com/roach88/loopexit/internal/searcher"
	"github.com/roach88/loopexit/internal/trace"
)

// Session describes one stored simulation run.
type Session struct {
	ID          string
	Scenario    string
	ProgramHash string
	Config      searcher.Config

	// Events is the number of stored events. Filled on read only.
	Events int
}

// WriteSession inserts a session record.
// Uses ON CONFLICT(id) DO NOTHING for idempotency.
func (s *Store) WriteSession(ctx context.Context, sess Session) error {
	if sess.ID == "" {
		return fmt.Errorf("write session: empty id")
	}
	cfg, err := marshalConfig(sess.Config)
	if err != nil {
		return fmt.Errorf("write session: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, scenario, program_hash, config)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, sess.ID, sess.Scenario, sess.ProgramHash, cfg)
	if err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

// WriteEvents appends events to a session in one transaction.
// Events already stored (same decision id) are skipped.
//
// The session must exist (foreign key constraint).
func (s *Store) WriteEvents(ctx context.Context, session string, events []trace.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write events: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO events
		(id, session_id, seq, tick, kind, state, parent, priority, delta, site, count, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("write events: prepare: %w", err)
	}
	defer stmt.Close()

	for _, e := range events {
		args, err := eventArgs(session, e)
		if err != nil {
			return fmt.Errorf("write events: seq %d: %w", e.Seq, err)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("write events: seq %d: %w", e.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write events: commit: %w", err)
	}
	return nil
}

func eventArgs(session string, e trace.Event) ([]any, error) {
	id, err := ir.DecisionID(session, e.Seq, e.Kind.String(), e.State)
	if err != nil {
		return nil, err
	}
	tick, err := toInt64("tick", e.Tick)
	if err != nil {
		return nil, err
	}
	state, err := toInt64("state", uint64(e.State))
	if err != nil {
		return nil, err
	}
	parent, err := toInt64("parent", uint64(e.Parent))
	if err != nil {
		return nil, err
	}
	count, err := toInt64("count", e.Count)
	if err != nil {
		return nil, err
	}
	return []any{
		id, session, e.Seq, tick, e.Kind.String(),
		state, parent, e.Priority, e.Delta, e.Site, count, e.Reason,
	}, nil
}

// Recorder is a trace.Recorder that buffers events in memory and writes
// them to the store on Flush. Record never touches the database, so it can
// sit on the searcher's notification path.
type Recorder struct {
	store   *Store
	session string
	buf     []trace.Event
}

// NewRecorder creates a buffering recorder for session.
func (s *Store) NewRecorder(session string) *Recorder {
	return &Recorder{store: s, session: session}
}

// Record implements trace.Recorder.
func (r *Recorder) Record(e trace.Event) {
	r.buf = append(r.buf, e)
}

// Pending returns the number of buffered events.
func (r *Recorder) Pending() int {
	return len(r.buf)
}

// Flush writes the buffered events in one transaction. The buffer is kept
// on failure so Flush can be retried.
func (r *Recorder) Flush(ctx context.Context) error {
	if err := r.store.WriteEvents(ctx, r.session, r.buf); err != nil {
		return err
	}
	r.buf = r.buf[:0]
	return nil
}
