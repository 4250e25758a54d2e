package harness

import (
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/globalchange/internal/runlog"
)

// Snapshot renders a result as a run log: one line per outcome in
// processing order, then the summary counts and any fatal error.
// Deterministic helpers make the rendering stable across runs.
func Snapshot(name string, result *Result) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "# scenario %s\n", name)
	for _, o := range result.Outcomes {
		b.WriteString(runlog.FormatLine(o))
		b.WriteByte('\n')
	}
	s := result.Summary
	fmt.Fprintf(&b, "# summary: selected=%d processed=%d changed=%d would_change=%d unchanged=%d skipped=%d failed=%d untouched=%d\n",
		s.Selected, s.Processed, s.Changed, s.WouldChange, s.Unchanged, s.Skipped, s.Failed, s.Untouched)
	if s.CapReached {
		b.WriteString("# stopped: cap reached\n")
	}
	if result.Fatal != "" {
		fmt.Fprintf(&b, "# fatal: %s\n", result.Fatal)
	}
	return []byte(b.String())
}

// RunWithGolden executes a scenario and compares its snapshot against a
// golden file stored in testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the snapshot doesn't match.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	AssertGolden(t, scenario.Name, result)
	return result, nil
}

// AssertGolden compares an existing result against its golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, name string, result *Result) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, Snapshot(name, result))
}
