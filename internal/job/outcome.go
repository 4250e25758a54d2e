package job

import (
	"time"

	"github.com/roach88/globalchange/internal/repo"
)

// Status is the final state of one document in a run.
type Status string

const (
	StatusUnchanged   Status = "unchanged"
	StatusChanged     Status = "changed"
	StatusWouldChange Status = "would_change"
	StatusSkipped     Status = "skipped"
	StatusFailed      Status = "failed"
)

// Stage names the pipeline step a document failed in.
type Stage string

const (
	StageLock      Stage = "lock"
	StageTransform Stage = "transform"
	StageCompare   Stage = "compare"
	StageValidate  Stage = "validate"
	StageSave      Stage = "save"
)

// Outcome records what happened to one selected document.
// Created once per processed ID and never mutated after recording.
type Outcome struct {
	// Seq is the 1-based position of the document within the run.
	Seq int `json:"seq"`

	DocID  repo.DocID `json:"doc_id"`
	Status Status     `json:"status"`

	// Stage is set for failed outcomes.
	Stage Stage `json:"stage,omitempty"`

	Message string `json:"message,omitempty"`

	// Validation holds validation findings and save warnings.
	Validation []repo.Message `json:"validation,omitempty"`

	// NewVersion is the version created by a live save, 0 otherwise.
	NewVersion  int  `json:"new_version,omitempty"`
	Publishable bool `json:"publishable,omitempty"`

	OldHash string `json:"old_hash,omitempty"`
	NewHash string `json:"new_hash,omitempty"`

	// Diff is the unified diff for changed and would_change outcomes.
	Diff string `json:"-"`

	// UnlockErr is set when releasing the lock failed after processing.
	UnlockErr string `json:"unlock_error,omitempty"`
}

// Changed reports whether the document's content differed after transform.
func (o Outcome) Changed() bool {
	return o.Status == StatusChanged || o.Status == StatusWouldChange
}

// RunInfo describes a run to recorders when it begins.
type RunInfo struct {
	RunID       string    `json:"run_id"`
	Operator    string    `json:"operator"`
	Description string    `json:"description"`
	Mode        Mode      `json:"mode"`
	Selected    int       `json:"selected"`
	Cap         int       `json:"cap,omitempty"`
	StartedAt   time.Time `json:"started_at"`
}

// Summary aggregates a run's outcomes.
type Summary struct {
	RunID string `json:"run_id"`
	Mode  Mode   `json:"mode"`

	Selected    int `json:"selected"`
	Processed   int `json:"processed"`
	Changed     int `json:"changed"`
	WouldChange int `json:"would_change"`
	Unchanged   int `json:"unchanged"`
	Skipped     int `json:"skipped"`
	Failed      int `json:"failed"`

	// Untouched counts selected IDs never processed (cap or interruption).
	Untouched int `json:"untouched"`

	CapReached  bool `json:"cap_reached"`
	Interrupted bool `json:"interrupted"`

	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Elapsed    time.Duration `json:"elapsed"`
}

// add folds one outcome into the counts.
func (s *Summary) add(o Outcome) {
	s.Processed++
	switch o.Status {
	case StatusChanged:
		s.Changed++
	case StatusWouldChange:
		s.WouldChange++
	case StatusUnchanged:
		s.Unchanged++
	case StatusSkipped:
		s.Skipped++
	case StatusFailed:
		s.Failed++
	}
}
