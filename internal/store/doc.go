// Package store provides the SQLite-backed run ledger.
//
// The ledger is append-only:
//   - runs: one row per started run
//   - outcomes: one row per processed document, in processing order
//   - diffs: the unified diff of every changed or would-change document
//   - run_completions: the final summary, written when a run finishes
//
// A run without a completion row was interrupted before it could finish;
// its outcomes are still complete up to the last processed document, since
// every outcome is committed as soon as it is recorded.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Store implements job.Recorder.
package store
