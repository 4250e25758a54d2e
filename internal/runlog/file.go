package runlog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/roach88/globalchange/internal/job"
	"github.com/roach88/globalchange/internal/repo"
)

var _ job.Recorder = (*FileRecorder)(nil)

// syncer is implemented by *os.File.
type syncer interface {
	Sync() error
}

// FileRecorder appends a run's outcomes to a log file and writes one diff
// file per changed document.
//
// Thread-safety: safe for concurrent use, though the orchestrator records
// from a single goroutine.
type FileRecorder struct {
	logPath string
	diffDir string

	mu  sync.Mutex
	out io.WriteCloser

	// diffs holds the diff file names written during the current run.
	diffs map[string]bool
}

// NewFileRecorder creates a recorder. logPath "" disables the log file and
// diffDir "" disables diff files. Nothing is opened until Begin.
func NewFileRecorder(logPath, diffDir string) *FileRecorder {
	return &FileRecorder{logPath: logPath, diffDir: diffDir}
}

// Begin implements job.Recorder. The log file is opened for append, so
// consecutive runs share one file separated by their headers.
func (r *FileRecorder) Begin(_ context.Context, info job.RunInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.diffs = make(map[string]bool)
	if r.diffDir != "" {
		if err := os.MkdirAll(r.diffDir, 0o755); err != nil {
			return fmt.Errorf("create diff dir: %w", err)
		}
	}
	if r.out == nil && r.logPath != "" {
		if dir := filepath.Dir(r.logPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create log dir: %w", err)
			}
		}
		f, err := os.OpenFile(r.logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open run log: %w", err)
		}
		r.out = f
	}

	return r.writeLines(
		"# run "+info.RunID,
		"# mode: "+string(info.Mode),
		"# operator: "+oneLine(info.Operator),
		"# description: "+oneLine(info.Description),
		"# started: "+info.StartedAt.UTC().Format(time.RFC3339),
	)
}

// Record implements job.Recorder. The diff file is written before the log
// line, so a logged change always has its diff on disk.
//
// Within a run no diff file is overwritten: when an ID repeats, or two IDs
// sanitize to the same name, the later diff is written to <name>.<seq>.diff
// where seq is the document's position in the run. Files left by earlier
// runs in the same directory are replaced.
func (r *FileRecorder) Record(_ context.Context, _ string, o job.Outcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.diffDir != "" && o.Diff != "" {
		path := filepath.Join(r.diffDir, r.diffName(o))
		if err := os.WriteFile(path, []byte(o.Diff), 0o644); err != nil {
			return fmt.Errorf("write diff %s: %w", o.DocID, err)
		}
	}
	return r.writeLines(FormatLine(o))
}

// Finish implements job.Recorder. It writes the footer and closes the log.
func (r *FileRecorder) Finish(_ context.Context, sum job.Summary) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	err := r.writeLines(fmt.Sprintf(
		"# finished: processed=%d changed=%d would_change=%d unchanged=%d skipped=%d failed=%d untouched=%d elapsed=%s",
		sum.Processed, sum.Changed, sum.WouldChange, sum.Unchanged, sum.Skipped, sum.Failed, sum.Untouched,
		sum.Elapsed.Round(time.Millisecond),
	))
	if sum.CapReached {
		err = errors.Join(err, r.writeLines("# stopped: document cap reached"))
	}
	if sum.Interrupted {
		err = errors.Join(err, r.writeLines("# stopped: interrupted"))
	}
	return errors.Join(err, r.closeLocked())
}

// Close releases the log file. Safe to call after Finish.
func (r *FileRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closeLocked()
}

func (r *FileRecorder) closeLocked() error {
	if r.out == nil {
		return nil
	}
	err := r.out.Close()
	r.out = nil
	return err
}

func (r *FileRecorder) diffName(o job.Outcome) string {
	if r.diffs == nil {
		r.diffs = make(map[string]bool)
	}
	name := DiffFileName(o.DocID)
	stem := strings.TrimSuffix(name, ".diff")
	for n := o.Seq; r.diffs[name]; n++ {
		name = fmt.Sprintf("%s.%d.diff", stem, n)
	}
	r.diffs[name] = true
	return name
}

func (r *FileRecorder) writeLines(lines ...string) error {
	if r.out == nil {
		return nil
	}
	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	if _, err := io.WriteString(r.out, b.String()); err != nil {
		return fmt.Errorf("write run log: %w", err)
	}
	if s, ok := r.out.(syncer); ok {
		if err := s.Sync(); err != nil {
			return fmt.Errorf("sync run log: %w", err)
		}
	}
	return nil
}

// FormatLine renders one outcome as ID, status and message separated by
// tabs. Failures carry their stage; an unlock error is appended.
func FormatLine(o job.Outcome) string {
	msg := o.Message
	if o.Status == job.StatusFailed && o.Stage != "" {
		msg = string(o.Stage) + ": " + msg
	}
	if o.UnlockErr != "" {
		if msg != "" {
			msg += "; "
		}
		msg += "unlock failed: " + o.UnlockErr
	}
	line := oneLine(string(o.DocID)) + "\t" + string(o.Status)
	if msg != "" {
		line += "\t" + oneLine(msg)
	}
	return line
}

// DiffFileName maps a document ID to a safe file name. Characters outside
// [A-Za-z0-9._-] become '_', so distinct IDs may share a name.
func DiffFileName(id repo.DocID) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, string(id))
	if strings.Trim(name, ".") == "" {
		name = "_" + name
	}
	return name + ".diff"
}

// oneLine keeps free text from breaking the line format.
func oneLine(s string) string {
	return strings.Join(strings.FieldsFunc(s, func(r rune) bool {
		return r == '\n' || r == '\r' || r == '\t'
	}), " ")
}
