package store

import (
	"context"
	"fmt"

	"github.com/roach88/globalchange/internal/job"
)

var _ job.Recorder = (*Store)(nil)

// Begin implements job.Recorder by inserting the run row.
// A run ID that already exists is an error: run IDs are never reused.
func (s *Store) Begin(ctx context.Context, info job.RunInfo) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, operator, description, mode, selected, cap, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		info.RunID,
		info.Operator,
		info.Description,
		string(info.Mode),
		info.Selected,
		info.Cap,
		formatTime(info.StartedAt),
	)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}
	return nil
}

// Record implements job.Recorder. The outcome and its diff are committed
// together before Record returns.
//
// Note: The run referenced by runID must exist (foreign key constraint).
func (s *Store) Record(ctx context.Context, runID string, o job.Outcome) error {
	validation, err := marshalMessages(o.Validation)
	if err != nil {
		return fmt.Errorf("write outcome: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write outcome: begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO outcomes
		(run_id, seq, doc_id, status, stage, message, validation, new_version, publishable, old_hash, new_hash, unlock_error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		runID,
		o.Seq,
		string(o.DocID),
		string(o.Status),
		string(o.Stage),
		o.Message,
		validation,
		o.NewVersion,
		boolInt(o.Publishable),
		o.OldHash,
		o.NewHash,
		o.UnlockErr,
	)
	if err != nil {
		return fmt.Errorf("write outcome %s: %w", o.DocID, err)
	}

	if o.Diff != "" {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO diffs (run_id, seq, doc_id, diff)
			VALUES (?, ?, ?, ?)
		`, runID, o.Seq, string(o.DocID), o.Diff)
		if err != nil {
			return fmt.Errorf("write diff %s: %w", o.DocID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write outcome %s: commit: %w", o.DocID, err)
	}
	return nil
}

// Finish implements job.Recorder by inserting the run's completion row.
// Uses ON CONFLICT DO NOTHING so a repeated Finish is a no-op.
func (s *Store) Finish(ctx context.Context, sum job.Summary) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO run_completions
		(run_id, processed, changed, would_change, unchanged, skipped, failed, untouched,
		 cap_reached, interrupted, finished_at, elapsed_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO NOTHING
	`,
		sum.RunID,
		sum.Processed,
		sum.Changed,
		sum.WouldChange,
		sum.Unchanged,
		sum.Skipped,
		sum.Failed,
		sum.Untouched,
		boolInt(sum.CapReached),
		boolInt(sum.Interrupted),
		formatTime(sum.FinishedAt),
		int64(sum.Elapsed),
	)
	if err != nil {
		return fmt.Errorf("write run completion: %w", err)
	}
	return nil
}
