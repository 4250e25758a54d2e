package job

import (
	"context"
	"log/slog"

	"github.com/roach88/globalchange/internal/repo"
)

// Selector produces the ordered set of documents to process.
//
// Select must be deterministic for a given data snapshot so a rehearsal can
// be compared with a later live run. Duplicates are allowed; each occurrence
// is processed independently. An error aborts the run before any document
// is touched.
type Selector interface {
	Select(ctx context.Context) ([]repo.DocID, error)
}

// SelectorFunc adapts a function to Selector.
type SelectorFunc func(ctx context.Context) ([]repo.DocID, error)

// Select implements Selector.
func (f SelectorFunc) Select(ctx context.Context) ([]repo.DocID, error) {
	return f(ctx)
}

// Env is the context handle passed to a Transformer for one document.
type Env struct {
	// Logger is scoped to the run and document.
	Logger *slog.Logger

	RunID string
	Mode  Mode
}

// Transformer rewrites one document's content.
//
// Transform must be a pure function of doc, apart from reference data
// loaded once at construction. Returning doc.Content unchanged is a no-op.
// Returning ErrNotApplicable records the document as skipped; any other
// error records it as failed. Neither aborts the batch.
type Transformer interface {
	Transform(ctx context.Context, env Env, doc repo.Document) (string, error)
}

// TransformerFunc adapts a function to Transformer.
type TransformerFunc func(ctx context.Context, env Env, doc repo.Document) (string, error)

// Transform implements Transformer.
func (f TransformerFunc) Transform(ctx context.Context, env Env, doc repo.Document) (string, error) {
	return f(ctx, env, doc)
}

// Recorder is the durable, append-only audit trail of a run.
//
// Record is called once per outcome in selection order and must persist
// the outcome before returning, so an interrupted run leaves a usable
// partial log. An error from any method aborts the run.
type Recorder interface {
	Begin(ctx context.Context, info RunInfo) error
	Record(ctx context.Context, runID string, o Outcome) error
	Finish(ctx context.Context, s Summary) error
}

// nopRecorder discards everything.
type nopRecorder struct{}

func (nopRecorder) Begin(context.Context, RunInfo) error          { return nil }
func (nopRecorder) Record(context.Context, string, Outcome) error { return nil }
func (nopRecorder) Finish(context.Context, Summary) error         { return nil }
