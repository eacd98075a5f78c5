package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/loopexit/internal/ir"
	"github.com/roach88/loopexit/internal/trace"
)

// ErrSessionNotFound is returned when a session id has no record.
var ErrSessionNotFound = errors.New("session not found")

// ReadSession returns one session with its event count.
func (s *Store) ReadSession(ctx context.Context, id string) (Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT s.id, s.scenario, s.program_hash, s.config,
		       (SELECT COUNT(*) FROM events e WHERE e.session_id = s.id)
		FROM sessions s
		WHERE s.id = ?
	`, id)

	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return sess, err
}

// Sessions lists all sessions ordered by id.
//
// Returns an empty slice (not nil) if the store holds no sessions.
func (s *Store) Sessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.scenario, s.program_hash, s.config,
		       (SELECT COUNT(*) FROM events e WHERE e.session_id = s.id)
		FROM sessions s
		ORDER BY s.id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// ReadEvents returns the events of a session ordered by seq.
//
// Returns an empty slice (not nil) if the session has no events.
func (s *Store) ReadEvents(ctx context.Context, session string) ([]trace.Event, error) {
	return s.queryEvents(ctx, `
		SELECT seq, tick, kind, state, parent, priority, delta, site, count, reason
		FROM events
		WHERE session_id = ?
		ORDER BY seq ASC
	`, session)
}

// ReadEventsOfKind returns the events of one kind, ordered by seq.
func (s *Store) ReadEventsOfKind(ctx context.Context, session string, kind trace.Kind) ([]trace.Event, error) {
	return s.queryEvents(ctx, `
		SELECT seq, tick, kind, state, parent, priority, delta, site, count, reason
		FROM events
		WHERE session_id = ? AND kind = ?
		ORDER BY seq ASC
	`, session, kind.String())
}

// ReadStateHistory returns every event that touched state, ordered by seq.
func (s *Store) ReadStateHistory(ctx context.Context, session string, state ir.StateID) ([]trace.Event, error) {
	id, err := toInt64("state", uint64(state))
	if err != nil {
		return nil, err
	}
	return s.queryEvents(ctx, `
		SELECT seq, tick, kind, state, parent, priority, delta, site, count, reason
		FROM events
		WHERE session_id = ? AND state = ?
		ORDER BY seq ASC
	`, session, id)
}

func (s *Store) queryEvents(ctx context.Context, query string, args ...any) ([]trace.Event, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []trace.Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanSession(sc scanner) (Session, error) {
	var sess Session
	var cfg string
	if err := sc.Scan(&sess.ID, &sess.Scenario, &sess.ProgramHash, &cfg, &sess.Events); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, err
		}
		return Session{}, fmt.Errorf("scan session: %w", err)
	}

	c, err := unmarshalConfig(cfg)
	if err != nil {
		return Session{}, fmt.Errorf("session %s: %w", sess.ID, err)
	}
	sess.Config = c
	return sess, nil
}

func scanEvent(sc scanner) (trace.Event, error) {
	var (
		e                          trace.Event
		kind                       string
		tick, state, parent, count int64
	)
	err := sc.Scan(&e.Seq, &tick, &kind, &state, &parent, &e.Priority, &e.Delta, &e.Site, &count, &e.Reason)
	if err != nil {
		return trace.Event{}, fmt.Errorf("scan event: %w", err)
	}

	k, err := trace.ParseKind(kind)
	if err != nil {
		return trace.Event{}, fmt.Errorf("event %d: %w", e.Seq, err)
	}
	e.Kind = k
	e.Tick = uint64(tick)
	e.State = ir.StateID(state)
	e.Parent = ir.StateID(parent)
	e.Count = uint64(count)
	return e, nil
}
