package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/globalchange/internal/job"
)

var testStart = time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC)

// createTestStore creates a new file-backed store for testing.
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

// createTestRun inserts a run row and returns its info.
func createTestRun(t *testing.T, s *Store, runID string, mode job.Mode, started time.Time) job.RunInfo {
	t.Helper()
	info := job.RunInfo{
		RunID:       runID,
		Operator:    "migrator",
		Description: "append migration marker",
		Mode:        mode,
		Selected:    3,
		StartedAt:   started,
	}
	if err := s.Begin(context.Background(), info); err != nil {
		t.Fatalf("Begin() failed: %v", err)
	}
	return info
}

// recordOutcomes writes outcomes with sequential Seq values.
func recordOutcomes(t *testing.T, s *Store, runID string, outcomes ...job.Outcome) {
	t.Helper()
	for i, o := range outcomes {
		o.Seq = i + 1
		if err := s.Record(context.Background(), runID, o); err != nil {
			t.Fatalf("Record(%s) failed: %v", o.DocID, err)
		}
	}
}
