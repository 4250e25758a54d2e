// Package change decides whether a transformed document differs meaningfully
// from its current content, and renders the difference for review.
//
// Re-running a job against already-migrated documents must report zero
// changes, so comparison ignores artifacts of re-serialization: the XML
// declaration, attribute order, empty-element spelling, entity spelling,
// indentation-only text, trailing newlines, line endings, and Unicode
// normalization form. ModeExact opts out of all of this for jobs that need
// a version bump on any byte difference.
package change
