package harness

import (
	"github.com/roach88/globalchange/internal/job"
)

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if all assertions hold.
	Pass bool `json:"pass"`

	// Summary is the summary returned by the run.
	Summary job.Summary `json:"summary"`

	// Outcomes are the outcomes read back from the run ledger, in
	// processing order.
	Outcomes []job.Outcome `json:"outcomes"`

	// Fatal is the fatal run error, if the run aborted.
	Fatal string `json:"fatal,omitempty"`

	// Errors contains assertion failure messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:     true,
		Outcomes: []job.Outcome{},
		Errors:   []string{},
	}
}

// AddError adds an assertion failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Outcome returns the last outcome recorded for id.
func (r *Result) Outcome(id string) (job.Outcome, bool) {
	for i := len(r.Outcomes) - 1; i >= 0; i-- {
		if string(r.Outcomes[i].DocID) == id {
			return r.Outcomes[i], true
		}
	}
	return job.Outcome{}, false
}
