package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/loopexit/internal/searcher"
	"github.com/roach88/loopexit/internal/trace"
)

// createTestStore opens a fresh database in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestSession writes a session with default tuning.
func createTestSession(t *testing.T, s *Store, id string) Session {
	t.Helper()
	sess := Session{
		ID:          id,
		Scenario:    "test",
		ProgramHash: "test-hash",
		Config:      searcher.DefaultConfig(),
	}
	if err := s.WriteSession(context.Background(), sess); err != nil {
		t.Fatalf("WriteSession() failed: %v", err)
	}
	return sess
}

// sampleEvents is a short admit/fork/park/select trace.
func sampleEvents() []trace.Event {
	return []trace.Event{
		{Seq: 1, Kind: trace.KindAdmit, State: 1},
		{Seq: 2, Kind: trace.KindFork, State: 2, Parent: 1, Priority: 100, Delta: 100, Site: "moduleA+0x100", Count: 1, Reason: "exit"},
		{Seq: 3, Kind: trace.KindFork, State: 3, Parent: 1, Priority: -60, Delta: -60, Site: "moduleA+0x100", Count: 1, Reason: "loop"},
		{Seq: 4, Kind: trace.KindPark, State: 3, Priority: -60, Reason: "loop"},
		{Seq: 5, Tick: 1, Kind: trace.KindSelect, State: 2, Priority: 100},
	}
}
