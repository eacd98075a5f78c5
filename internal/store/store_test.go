package store

import (
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		var count int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM events").Scan(&count); err != nil {
			t.Errorf("query failed: %v", err)
		}
		s.Close()
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing", "dir", "test.db"))
	if err == nil {
		t.Error("Open() should fail for a path in a missing directory")
	}
}

func TestClose_NilDB(t *testing.T) {
	s := &Store{}
	if err := s.Close(); err != nil {
		t.Errorf("Close() on nil db returned %v", err)
	}
}

func TestPragmas(t *testing.T) {
	s := createTestStore(t)

	tests := []struct {
		name, want string
	}{
		{"journal_mode", "wal"},
		{"synchronous", "1"}, // NORMAL
		{"busy_timeout", "5000"},
		{"foreign_keys", "1"},
		{"user_version", "2"},
	}
	for _, tt := range tests {
		if err := verifyPragma(s.db, tt.name, tt.want); err != nil {
			t.Error(err)
		}
	}
}

func TestVerifyPragma_Mismatch(t *testing.T) {
	s := createTestStore(t)

	err := verifyPragma(s.db, "busy_timeout", "0")
	if err == nil {
		t.Fatal("verifyPragma() should fail when the value differs")
	}
	if !strings.Contains(err.Error(), `busy_timeout = "5000", expected "0"`) {
		t.Errorf("unexpected error: %v", err)
	}

	if err := verifyPragma(s.db, "no_such_pragma", "1"); err == nil {
		t.Error("verifyPragma() should fail for a pragma that returns no row")
	}
}

func TestSchema_Tables(t *testing.T) {
	s := createTestStore(t)

	expected := map[string][]string{
		"sessions": {"id", "scenario", "program_hash", "config"},
		"events": {
			"id", "session_id", "seq", "tick", "kind", "state",
			"parent", "priority", "delta", "site", "count", "reason",
		},
	}
	for table, cols := range expected {
		columns := getTableColumns(t, s.db, table)
		for _, col := range cols {
			if !contains(columns, col) {
				t.Errorf("%s table missing column %q", table, col)
			}
		}
	}
}

func TestSchema_Indexes(t *testing.T) {
	s := createTestStore(t)

	indexes := getTableIndexes(t, s.db, "events")
	for _, idx := range []string{"idx_events_state", "idx_events_kind"} {
		if !contains(indexes, idx) {
			t.Errorf("events table missing index %q (have %v)", idx, indexes)
		}
	}
}

// A database stamped at v1 gains the v2 index on the next Open.
func TestMigration_FromV1(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if _, err := s.db.Exec("DROP INDEX idx_events_kind"); err != nil {
		t.Fatalf("drop index: %v", err)
	}
	if _, err := s.db.Exec("PRAGMA user_version = 1"); err != nil {
		t.Fatalf("set version: %v", err)
	}
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s.Close()

	if !contains(getTableIndexes(t, s.db, "events"), "idx_events_kind") {
		t.Error("migration did not recreate idx_events_kind")
	}
	if err := verifyPragma(s.db, "user_version", "2"); err != nil {
		t.Error(err)
	}
}

func TestConstraint_EventsRequireSession(t *testing.T) {
	s := createTestStore(t)

	_, err := s.db.Exec(`
		INSERT INTO events (id, session_id, seq, tick, kind, priority)
		VALUES ('e1', 'no-such-session', 1, 0, 'admit', 0)
	`)
	if err == nil {
		t.Error("insert without a session should violate the foreign key")
	}
}

func getTableColumns(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()

	rows, err := db.Query("PRAGMA table_info(" + table + ")")
	if err != nil {
		t.Fatalf("failed to get table info for %q: %v", table, err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dfltValue interface{}
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			t.Fatalf("failed to scan column info: %v", err)
		}
		columns = append(columns, name)
	}
	return columns
}

func getTableIndexes(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()

	rows, err := db.Query("SELECT name FROM sqlite_master WHERE type='index' AND tbl_name=?", table)
	if err != nil {
		t.Fatalf("failed to get indexes for %q: %v", table, err)
	}
	defer rows.Close()

	var indexes []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("failed to scan index name: %v", err)
		}
		indexes = append(indexes, name)
	}
	return indexes
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
