// Package harness runs globalchange jobs against scripted repositories and
// checks the results, so job behaviour can be pinned down in YAML.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	documents:
//	  - {id: "101", type: article, content: "Acme Widget manual"}
//	  - {id: "102", type: article, content: "Acme Widget FAQ", locked_by: alice}
//	rules:
//	  - {contains: "Gizmo", severity: error, message: "retired product name"}
//	job:
//	  description: rename widget
//	  mode: live
//	  select: {ids: ["101", "102"]}
//	  transform:
//	    - replace: {pattern: 'Acme\s+Widget', with: Acme Gadget}
//	assertions:
//	  - {type: outcome, id: "102", status: failed, stage: lock}
//	  - {type: summary, counts: {changed: 1, failed: 1}}
//	  - {type: content, id: "101", content: "Acme Gadget manual"}
//
// The job section is a job file without repository or output sections; the
// harness supplies an in-memory repository and an in-memory run ledger.
// Relative paths in the job resolve against the working directory.
//
// # Assertion Types
//
//   - outcome: the document's recorded status, and optionally its stage and
//     a message substring
//   - summary: run counts (processed, changed, would_change, unchanged,
//     skipped, failed, untouched)
//   - content: the document's latest content
//   - versions: the document's version count
//   - locked: the operator holding the document's lock ("" for unlocked)
//   - diff: a substring of the recorded diff
//   - fatal: the run aborted with an error containing message
//
// # Deterministic Testing
//
// Every scenario runs with a fixed run ID, a stepping clock and a recording
// sleeper, so run logs are identical across runs and can be compared against
// golden files (see RunWithGolden).
package harness
