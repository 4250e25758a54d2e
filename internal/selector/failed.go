package selector

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/globalchange/internal/job"
	"github.com/roach88/globalchange/internal/repo"
)

var _ job.Selector = (*Failed)(nil)

// FailedSource lists the documents that failed in a recorded run.
// *store.Store implements it.
type FailedSource interface {
	FailedIDs(ctx context.Context, runID string) ([]repo.DocID, error)
}

// Failed re-selects the failures of an earlier run, in their original order.
type Failed struct {
	src   FailedSource
	runID string
}

// NewFailed creates a Failed selector for runID.
func NewFailed(src FailedSource, runID string) *Failed {
	return &Failed{src: src, runID: runID}
}

// Select implements job.Selector.
func (f *Failed) Select(ctx context.Context) ([]repo.DocID, error) {
	if f.runID == "" {
		return nil, errors.New("failed selector: run id required")
	}
	ids, err := f.src.FailedIDs(ctx, f.runID)
	if err != nil {
		return nil, fmt.Errorf("failed ids of run %s: %w", f.runID, err)
	}
	return ids, nil
}
