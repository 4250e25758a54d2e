// Package job implements the batch document mutation orchestrator.
//
// A Job pairs two pluggable capabilities with a Repository Client:
//   - Selector: which documents to process, in a deterministic order
//   - Transformer: how to rewrite one document's content
//
// ARCHITECTURE:
//
// Single-Writer Loop:
// A Job processes documents strictly sequentially in selection order.
// The dominant cost is repository round-trips, and sequential processing
// keeps the audit trail trivially ordered.
//
// Per-Document Pipeline:
//
//	Selected → Locked → Transformed → Compared →
//	    { Unchanged-Release | Validated → Saved-Release | Failed-Release }
//
// Failure Policy:
// Only run-level failures (invalid Spec, login, selection, audit recording)
// stop a run; they are returned as *FatalError before or between documents.
// Every per-document failure is captured in that document's Outcome and the
// loop continues with the next ID.
//
// CRITICAL PATTERNS:
//
// Lock release on all paths:
// Once Checkout succeeds, Unlock is called exactly once before the next ID,
// whether the document was unchanged, changed, failed, or the transformer
// panicked. Unlock runs on a context detached from cancellation so an
// interrupted run still releases what it holds. A failed Checkout holds
// nothing and is never followed by Unlock.
//
// Cap and cancellation between documents:
// Spec.Cap and context cancellation are checked before each document,
// never mid-document.
//
// Rehearsal parity:
// Rehearsal runs every read-only step a live run does (including
// validation) and stops short of Save, so the set of "would_change"
// outcomes equals the set of "changed" outcomes of a live run over the
// same starting data.
package job
