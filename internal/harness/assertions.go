package harness

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/globalchange/internal/job"
	"github.com/roach88/globalchange/internal/repo"
	"github.com/roach88/globalchange/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string
	ID       string
	Expected any
	Actual   any
	Message  string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	subject := e.Type
	if e.ID != "" {
		subject = fmt.Sprintf("%s %s", e.Type, e.ID)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s: %s (expected %v, got %v)", subject, e.Message, e.Expected, e.Actual)
	}
	return fmt.Sprintf("%s: expected %v, got %v", subject, e.Expected, e.Actual)
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Repo  *repo.Memory
	Store *store.Store
	Ctx   context.Context
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(result, a, actx); err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func evaluate(result *Result, a Assertion, actx *AssertionContext) error {
	switch a.Type {
	case AssertOutcome:
		return assertOutcome(result, a)
	case AssertSummary:
		return assertSummary(result.Summary, a)
	case AssertContent:
		return assertContent(actx.Repo, a)
	case AssertVersions:
		return assertVersions(actx.Repo, a)
	case AssertLocked:
		return assertLocked(actx.Repo, a)
	case AssertDiff:
		return assertDiff(actx, a)
	case AssertFatal:
		return assertFatal(result, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// assertOutcome checks the last recorded outcome for a document.
func assertOutcome(result *Result, a Assertion) error {
	o, ok := result.Outcome(a.ID)
	if !ok {
		return &AssertionError{Type: a.Type, ID: a.ID, Expected: a.Status, Actual: "not processed"}
	}
	if string(o.Status) != a.Status {
		return &AssertionError{Type: a.Type, ID: a.ID, Message: "status mismatch", Expected: a.Status, Actual: o.Status}
	}
	if a.Stage != "" && string(o.Stage) != a.Stage {
		return &AssertionError{Type: a.Type, ID: a.ID, Message: "stage mismatch", Expected: a.Stage, Actual: o.Stage}
	}
	if a.Message != "" && !strings.Contains(o.Message, a.Message) {
		return &AssertionError{Type: a.Type, ID: a.ID, Message: "message mismatch", Expected: a.Message, Actual: o.Message}
	}
	return nil
}

// assertSummary checks the named counts; others are ignored.
func assertSummary(sum job.Summary, a Assertion) error {
	actual := summaryValues(sum)
	names := make([]string, 0, len(a.Counts))
	for name := range a.Counts {
		names = append(names, name)
	}
	sort.Strings(names)

	var mismatches []string
	for _, name := range names {
		if got, want := actual[name], a.Counts[name]; got != want {
			mismatches = append(mismatches, fmt.Sprintf("%s=%d (want %d)", name, got, want))
		}
	}
	if len(mismatches) > 0 {
		return &AssertionError{Type: a.Type, Message: "counts differ", Expected: a.Counts, Actual: strings.Join(mismatches, ", ")}
	}
	return nil
}

func summaryValues(s job.Summary) map[string]int {
	return map[string]int{
		"selected":     s.Selected,
		"processed":    s.Processed,
		"changed":      s.Changed,
		"would_change": s.WouldChange,
		"unchanged":    s.Unchanged,
		"skipped":      s.Skipped,
		"failed":       s.Failed,
		"untouched":    s.Untouched,
	}
}

func assertContent(mem *repo.Memory, a Assertion) error {
	content, ok := mem.Content(repo.DocID(a.ID))
	if !ok {
		return &AssertionError{Type: a.Type, ID: a.ID, Expected: *a.Content, Actual: "no such document"}
	}
	if content != *a.Content {
		return &AssertionError{Type: a.Type, ID: a.ID, Expected: fmt.Sprintf("%q", *a.Content), Actual: fmt.Sprintf("%q", content)}
	}
	return nil
}

func assertVersions(mem *repo.Memory, a Assertion) error {
	if n := len(mem.Versions(repo.DocID(a.ID))); n != a.Count {
		return &AssertionError{Type: a.Type, ID: a.ID, Message: "version count", Expected: a.Count, Actual: n}
	}
	return nil
}

func assertLocked(mem *repo.Memory, a Assertion) error {
	if by := mem.LockedBy(repo.DocID(a.ID)); by != a.By {
		return &AssertionError{Type: a.Type, ID: a.ID, Message: "lock holder", Expected: fmt.Sprintf("%q", a.By), Actual: fmt.Sprintf("%q", by)}
	}
	return nil
}

// assertDiff reads the diff back from the ledger.
func assertDiff(actx *AssertionContext, a Assertion) error {
	diff, err := actx.Store.Diff(actx.Ctx, RunID, repo.DocID(a.ID))
	if err != nil {
		return &AssertionError{Type: a.Type, ID: a.ID, Expected: a.Message, Actual: err}
	}
	if !strings.Contains(diff, a.Message) {
		return &AssertionError{Type: a.Type, ID: a.ID, Message: "fragment not in diff", Expected: a.Message, Actual: diff}
	}
	return nil
}

func assertFatal(result *Result, a Assertion) error {
	if result.Fatal == "" {
		return &AssertionError{Type: a.Type, Expected: a.Message, Actual: "run completed"}
	}
	if !strings.Contains(result.Fatal, a.Message) {
		return &AssertionError{Type: a.Type, Message: "fatal error mismatch", Expected: a.Message, Actual: result.Fatal}
	}
	return nil
}
