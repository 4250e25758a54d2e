package runlog

import (
	"context"
	"errors"

	"github.com/roach88/globalchange/internal/job"
)

// Multi fans every call out to several recorders, in order.
// All recorders are called even when one fails; the errors are joined.
type Multi []job.Recorder

// Begin implements job.Recorder.
func (m Multi) Begin(ctx context.Context, info job.RunInfo) error {
	var errs []error
	for _, r := range m {
		errs = append(errs, r.Begin(ctx, info))
	}
	return errors.Join(errs...)
}

// Record implements job.Recorder.
func (m Multi) Record(ctx context.Context, runID string, o job.Outcome) error {
	var errs []error
	for _, r := range m {
		errs = append(errs, r.Record(ctx, runID, o))
	}
	return errors.Join(errs...)
}

// Finish implements job.Recorder.
func (m Multi) Finish(ctx context.Context, sum job.Summary) error {
	var errs []error
	for _, r := range m {
		errs = append(errs, r.Finish(ctx, sum))
	}
	return errors.Join(errs...)
}
