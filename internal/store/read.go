package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/globalchange/internal/job"
	"github.com/roach88/globalchange/internal/repo"
)

var (
	// ErrRunNotFound is returned when a run ID is not in the ledger.
	ErrRunNotFound = errors.New("run not found")

	// ErrDiffNotFound is returned when no diff was recorded for a document.
	ErrDiffNotFound = errors.New("diff not found")
)

// Run is a recorded run. Summary is nil when the run never finished.
type Run struct {
	job.RunInfo
	Summary *job.Summary `json:"summary,omitempty"`
}

// Finished reports whether the run recorded a completion.
func (r Run) Finished() bool {
	return r.Summary != nil
}

const runColumns = `
	r.id, r.operator, r.description, r.mode, r.selected, r.cap, r.started_at,
	c.processed, c.changed, c.would_change, c.unchanged, c.skipped, c.failed, c.untouched,
	c.cap_reached, c.interrupted, c.finished_at, c.elapsed_ns
`

// ListRuns returns the most recent runs first. limit <= 0 returns all runs.
// Returns an empty slice (not nil) when the ledger is empty.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+runColumns+`
		FROM runs r
		LEFT JOIN run_completions c ON c.run_id = r.id
		ORDER BY r.started_at DESC, r.id COLLATE BINARY DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// GetRun returns one run. Returns ErrRunNotFound if the ID is unknown.
func (s *Store) GetRun(ctx context.Context, runID string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+runColumns+`
		FROM runs r
		LEFT JOIN run_completions c ON c.run_id = r.id
		WHERE r.id = ?
	`, runID)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return run, err
}

// LatestRun returns the most recently started run.
func (s *Store) LatestRun(ctx context.Context) (Run, error) {
	runs, err := s.ListRuns(ctx, 1)
	if err != nil {
		return Run{}, err
	}
	if len(runs) == 0 {
		return Run{}, fmt.Errorf("%w: ledger is empty", ErrRunNotFound)
	}
	return runs[0], nil
}

// Outcomes returns a run's outcomes in processing order, optionally filtered
// by status ("" returns all). Diffs are not loaded; use Diff.
func (s *Store) Outcomes(ctx context.Context, runID string, status job.Status) ([]job.Outcome, error) {
	if _, err := s.GetRun(ctx, runID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, doc_id, status, stage, message, validation, new_version, publishable,
		       old_hash, new_hash, unlock_error
		FROM outcomes
		WHERE run_id = ? AND (? = '' OR status = ?)
		ORDER BY seq ASC
	`, runID, string(status), string(status))
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	outcomes := []job.Outcome{}
	for rows.Next() {
		var (
			o           job.Outcome
			docID       string
			st, stage   string
			validation  string
			publishable int
		)
		if err := rows.Scan(&o.Seq, &docID, &st, &stage, &o.Message, &validation, &o.NewVersion,
			&publishable, &o.OldHash, &o.NewHash, &o.UnlockErr); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		o.DocID = repo.DocID(docID)
		o.Status = job.Status(st)
		o.Stage = job.Stage(stage)
		o.Publishable = publishable != 0
		if o.Validation, err = unmarshalMessages(validation); err != nil {
			return nil, err
		}
		outcomes = append(outcomes, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outcomes: %w", err)
	}
	return outcomes, nil
}

// FailedIDs returns the distinct IDs that failed in a run, in order of
// first failure. It implements selector.FailedSource.
func (s *Store) FailedIDs(ctx context.Context, runID string) ([]repo.DocID, error) {
	failed, err := s.Outcomes(ctx, runID, job.StatusFailed)
	if err != nil {
		return nil, err
	}

	seen := make(map[repo.DocID]bool, len(failed))
	ids := []repo.DocID{}
	for _, o := range failed {
		if seen[o.DocID] {
			continue
		}
		seen[o.DocID] = true
		ids = append(ids, o.DocID)
	}
	return ids, nil
}

// Diff returns the diff recorded for a document in a run. When the document
// was processed more than once, the last diff wins.
func (s *Store) Diff(ctx context.Context, runID string, docID repo.DocID) (string, error) {
	var diff string
	err := s.db.QueryRowContext(ctx, `
		SELECT diff FROM diffs
		WHERE run_id = ? AND doc_id = ?
		ORDER BY seq DESC
		LIMIT 1
	`, runID, string(docID)).Scan(&diff)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: run %s document %s", ErrDiffNotFound, runID, docID)
	}
	if err != nil {
		return "", fmt.Errorf("query diff: %w", err)
	}
	return diff, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var (
		run       Run
		mode      string
		startedAt string

		processed, changed, wouldChange, unchanged sql.NullInt64
		skipped, failed, untouched                  sql.NullInt64
		capReached, interrupted                     sql.NullInt64
		finishedAt                                  sql.NullString
		elapsed                                     sql.NullInt64
	)
	err := row.Scan(
		&run.RunID, &run.Operator, &run.Description, &mode, &run.Selected, &run.Cap, &startedAt,
		&processed, &changed, &wouldChange, &unchanged, &skipped, &failed, &untouched,
		&capReached, &interrupted, &finishedAt, &elapsed,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, err
	}
	if err != nil {
		return Run{}, fmt.Errorf("scan run: %w", err)
	}

	run.Mode = job.Mode(mode)
	if run.StartedAt, err = parseTime(startedAt); err != nil {
		return Run{}, err
	}
	if !finishedAt.Valid {
		return run, nil
	}

	sum := &job.Summary{
		RunID:       run.RunID,
		Mode:        run.Mode,
		Selected:    run.Selected,
		Processed:   int(processed.Int64),
		Changed:     int(changed.Int64),
		WouldChange: int(wouldChange.Int64),
		Unchanged:   int(unchanged.Int64),
		Skipped:     int(skipped.Int64),
		Failed:      int(failed.Int64),
		Untouched:   int(untouched.Int64),
		CapReached:  capReached.Int64 != 0,
		Interrupted: interrupted.Int64 != 0,
		StartedAt:   run.StartedAt,
		Elapsed:     time.Duration(elapsed.Int64),
	}
	if sum.FinishedAt, err = parseTime(finishedAt.String); err != nil {
		return Run{}, err
	}
	run.Summary = sum
	return run, nil
}
