package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/roach88/globalchange/internal/repo"
)

// process runs the pipeline for one document and always returns its outcome.
//
// The pipeline runs on a context detached from cancellation: once a document
// is started it runs to completion or failure, and cancellation is honoured
// by Run between documents.
func (j *Job) process(ctx context.Context, spec Spec, sess repo.Session, runID string, seq int, id repo.DocID, log *slog.Logger) (o Outcome) {
	o = Outcome{Seq: seq, DocID: id}
	dlog := log.With("doc_id", string(id), "seq", seq)
	docCtx := context.WithoutCancel(ctx)

	doc, err := j.checkout(docCtx, sess, id, spec.ForceUnlock)
	if err != nil {
		// Nothing was acquired, so nothing is released.
		o = failed(o, StageLock, err)
		logOutcome(dlog, o)
		return o
	}
	if spec.ForceUnlock {
		dlog.Warn("forced checkout", "operator", sess.Operator)
	}

	stage := StageTransform
	defer func() {
		if r := recover(); r != nil {
			o = failed(Outcome{Seq: seq, DocID: id}, stage, fmt.Errorf("panic: %v", r))
		}
		if err := j.client.Unlock(docCtx, sess, id); err != nil {
			o.UnlockErr = err.Error()
			dlog.Error("failed to release lock", "error", err)
		}
		logOutcome(dlog, o)
	}()

	return j.mutate(docCtx, spec, sess, runID, doc, &stage, o, dlog)
}

// checkout converts a panicking client into a lock failure.
func (j *Job) checkout(ctx context.Context, sess repo.Session, id repo.DocID, force bool) (doc repo.Document, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return j.client.Checkout(ctx, sess, id, force)
}

// mutate runs transform, compare, validate and save under the held lock.
// stage tracks progress so a panic is attributed to the right step.
func (j *Job) mutate(ctx context.Context, spec Spec, sess repo.Session, runID string, doc repo.Document, stage *Stage, o Outcome, dlog *slog.Logger) Outcome {
	env := Env{Logger: dlog, RunID: runID, Mode: spec.Mode}
	content, err := j.transformer.Transform(ctx, env, doc)
	if err != nil {
		if errors.Is(err, ErrNotApplicable) {
			o.Status = StatusSkipped
			o.Message = err.Error()
			return o
		}
		return failed(o, StageTransform, err)
	}

	*stage = StageCompare
	res, err := j.detector.Compare(string(doc.ID), doc.Content, content)
	if err != nil {
		return failed(o, StageCompare, err)
	}
	o.OldHash = res.OldHash
	o.NewHash = res.NewHash
	if !res.Changed {
		o.Status = StatusUnchanged
		return o
	}
	o.Diff = res.Diff

	if spec.RequireValidation {
		*stage = StageValidate
		msgs, err := j.client.Validate(ctx, sess, doc.DocType, content)
		if err != nil {
			return failed(o, StageValidate, err)
		}
		o.Validation = msgs
		if repo.HasErrors(msgs) {
			return failed(o, StageValidate, fmt.Errorf("validation failed: %s", joinMessages(repo.Filter(msgs, repo.SeverityError))))
		}
	}

	o.Publishable = spec.Publishable
	if spec.Mode == ModeRehearsal {
		o.Status = StatusWouldChange
		o.Message = withWarnings("would create new version", o.Validation)
		return o
	}

	*stage = StageSave
	saved, err := j.client.Save(ctx, sess, doc.ID, content, repo.SaveOptions{
		Version:     true,
		Publishable: spec.Publishable,
		Comment:     spec.Description,
		Unlock:      false,
	})
	if err != nil {
		o.Publishable = false
		return failed(o, StageSave, err)
	}

	o.Status = StatusChanged
	o.NewVersion = saved.Version
	o.Validation = mergeMessages(o.Validation, saved.Warnings)
	o.Message = withWarnings(fmt.Sprintf("saved version %d", saved.Version), o.Validation)
	return o
}

func failed(o Outcome, stage Stage, err error) Outcome {
	o.Status = StatusFailed
	o.Stage = stage
	o.Message = err.Error()
	return o
}

func joinMessages(msgs []repo.Message) string {
	parts := make([]string, len(msgs))
	for i, m := range msgs {
		parts[i] = m.Message
	}
	return strings.Join(parts, "; ")
}

// mergeMessages appends the save warnings not already reported by validation.
func mergeMessages(msgs, extra []repo.Message) []repo.Message {
	seen := make(map[repo.Message]bool, len(msgs))
	for _, m := range msgs {
		seen[m] = true
	}
	for _, m := range extra {
		if !seen[m] {
			seen[m] = true
			msgs = append(msgs, m)
		}
	}
	return msgs
}

func withWarnings(msg string, msgs []repo.Message) string {
	warnings := repo.Filter(msgs, repo.SeverityWarning)
	if len(warnings) == 0 {
		return msg
	}
	return fmt.Sprintf("%s (%d warnings: %s)", msg, len(warnings), joinMessages(warnings))
}

func logOutcome(dlog *slog.Logger, o Outcome) {
	switch o.Status {
	case StatusFailed:
		dlog.Warn("document failed", "stage", string(o.Stage), "error", o.Message)
	case StatusChanged:
		dlog.Info("document changed", "version", o.NewVersion, "publishable", o.Publishable)
	case StatusWouldChange:
		dlog.Info("document would change")
	case StatusSkipped:
		dlog.Debug("document skipped", "reason", o.Message)
	default:
		dlog.Debug("document unchanged")
	}
}
