package job

import (
	"fmt"
	"strings"
	"time"

	"github.com/roach88/globalchange/internal/change"
	"github.com/roach88/globalchange/internal/repo"
)

// Mode selects whether a run persists its changes.
type Mode string

const (
	// ModeRehearsal computes and records every intended change without saving.
	ModeRehearsal Mode = "rehearsal"

	// ModeLive saves a new version for every changed document.
	ModeLive Mode = "live"
)

// ParseMode converts a configuration string to a Mode. "" means rehearsal.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeRehearsal:
		return ModeRehearsal, nil
	case ModeLive:
		return ModeLive, nil
	default:
		return "", fmt.Errorf("%w: unknown mode %q", ErrInvalidSpec, s)
	}
}

// DefaultPaceEvery is the number of documents between pacing pauses.
const DefaultPaceEvery = 20

// Spec is the immutable configuration of one run.
type Spec struct {
	// Credentials are used to log in when Session is nil.
	Credentials repo.Credentials

	// Session reuses an already established operator session.
	Session *repo.Session

	// Description is the human-readable change description, stored as the
	// comment of every version a live run creates. Required in live mode.
	Description string

	Mode Mode

	// Cap limits the number of documents processed. 0 means no limit.
	Cap int

	// PaceEvery and PaceInterval pause the run for PaceInterval after every
	// PaceEvery processed documents. A zero PaceInterval disables pacing.
	PaceEvery    int
	PaceInterval time.Duration

	// RequireValidation validates new content before it is saved.
	RequireValidation bool

	// Publishable marks created versions eligible for distribution.
	Publishable bool

	// ForceUnlock takes over locks held by other operators. This can discard
	// their unsaved edits and is logged for every document.
	ForceUnlock bool

	// Compare selects the change detection mode ("" = structural).
	Compare change.Mode
}

// Validate rejects misconfigured specs. All failures wrap ErrInvalidSpec.
func (s Spec) Validate() error {
	if _, err := ParseMode(string(s.Mode)); err != nil {
		return err
	}
	if s.Mode == ModeLive && strings.TrimSpace(s.Description) == "" {
		return fmt.Errorf("%w: live mode requires a change description", ErrInvalidSpec)
	}
	if s.Session == nil && s.Credentials.Operator == "" {
		return fmt.Errorf("%w: operator credentials or session required", ErrInvalidSpec)
	}
	if s.Cap < 0 {
		return fmt.Errorf("%w: cap must be non-negative, got %d", ErrInvalidSpec, s.Cap)
	}
	if s.PaceEvery < 0 {
		return fmt.Errorf("%w: pace_every must be non-negative, got %d", ErrInvalidSpec, s.PaceEvery)
	}
	if s.PaceInterval < 0 {
		return fmt.Errorf("%w: pace interval must be non-negative, got %s", ErrInvalidSpec, s.PaceInterval)
	}
	if _, err := change.ParseMode(string(s.Compare)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSpec, err)
	}
	return nil
}

// withDefaults fills optional fields.
func (s Spec) withDefaults() Spec {
	if s.Mode == "" {
		s.Mode = ModeRehearsal
	}
	if s.PaceEvery == 0 {
		s.PaceEvery = DefaultPaceEvery
	}
	if s.Compare == "" {
		s.Compare = change.ModeStructural
	}
	return s
}
