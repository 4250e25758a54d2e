// Package selector provides the stock document selectors used by the CLI:
// a fixed ID list, an ID file, a SQL query, and the failed IDs of an
// earlier run.
//
// Every selector returns IDs in a deterministic order. Duplicates are
// preserved; the orchestrator processes each occurrence independently.
package selector
