// Package repo defines the contract between the mutation engine and the
// versioned document repository it operates on.
//
// The repository owns documents, versions, locks, and validation rules. The
// engine only ever talks to it through Client:
//   - Login: establish an operator session
//   - Checkout: acquire the operator lock and fetch current content
//   - Validate: check content against the document type's rules
//   - Save: create a new version, optionally publishable
//   - Unlock: release the operator lock (idempotent)
//
// Locks are advisory and held by operator identity. Checkout with force=true
// discards a lock held by someone else, which may throw away their unsaved
// edits; callers must opt in explicitly.
//
// Implementations in this package:
//   - Memory: in-process store used by tests and local fixtures
//   - HTTPClient: JSON-over-HTTP client for a remote repository service
//   - Handler: serves a Memory over the same HTTP protocol
//   - RateLimited: decorator throttling any Client
package repo
