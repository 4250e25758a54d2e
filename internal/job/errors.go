package job

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSpec is wrapped by Spec.Validate failures.
	ErrInvalidSpec = errors.New("invalid job spec")

	// ErrNotApplicable may be returned (or wrapped) by a Transformer to signal
	// that the document is out of scope. The document is recorded as skipped.
	ErrNotApplicable = errors.New("transform not applicable")
)

// Phase names the run-level step a FatalError occurred in.
type Phase string

const (
	PhaseConfig Phase = "config"
	PhaseLogin  Phase = "login"
	PhaseSelect Phase = "select"
	PhaseRecord Phase = "record"
)

// FatalError aborts a run. Errors in PhaseConfig, PhaseLogin and PhaseSelect
// occur before any document is touched.
type FatalError struct {
	Phase Phase
	Err   error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("%s: %v", e.Phase, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// IsFatal returns true if err is (or wraps) a FatalError.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

func fatal(phase Phase, err error) *FatalError {
	return &FatalError{Phase: phase, Err: err}
}
