package transform

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/globalchange/internal/job"
	"github.com/roach88/globalchange/internal/repo"
)

// Chain applies transformers in order, each seeing the previous output.
//
// A step returning job.ErrNotApplicable is passed over. The document is
// reported not applicable only when every step is.
type Chain []job.Transformer

// Transform implements job.Transformer.
func (c Chain) Transform(ctx context.Context, env job.Env, doc repo.Document) (string, error) {
	applied := 0
	for i, tr := range c {
		out, err := tr.Transform(ctx, env, doc)
		if errors.Is(err, job.ErrNotApplicable) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("step %d: %w", i+1, err)
		}
		doc.Content = out
		applied++
	}
	if applied == 0 && len(c) > 0 {
		return "", fmt.Errorf("no step applies: %w", job.ErrNotApplicable)
	}
	return doc.Content, nil
}
