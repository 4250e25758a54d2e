// Package runlog writes the human-readable audit trail of a run: a log file
// with one line per document and a directory of per-document diffs.
//
// Log file format:
//
//	# run <run id>
//	# mode: live
//	# operator: migrator
//	# description: append migration marker
//	# started: 2026-10-18T09:00:00Z
//	101	unchanged
//	102	changed	saved version 2
//	# finished: processed=2 changed=1 ...
//
// Document lines are ID, status and message separated by tabs. Every line
// is synced to disk before Record returns, so a crash loses at most the
// document in progress.
package runlog
