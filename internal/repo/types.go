package repo

import (
	"context"
	"strconv"
)

// DocID is the opaque, stable identity of a document.
// Integer identifiers are carried in base-10 string form.
type DocID string

// IntID formats an integer document identifier.
func IntID(n int64) DocID {
	return DocID(strconv.FormatInt(n, 10))
}

// String implements fmt.Stringer.
func (id DocID) String() string {
	return string(id)
}

// Credentials identify an operator to the repository.
type Credentials struct {
	Operator string `json:"operator"`
	Password string `json:"password"`
}

// Session is an authenticated operator session.
// Token is opaque to the engine; Operator is the lock owner identity.
type Session struct {
	Operator string `json:"operator"`
	Token    string `json:"token"`
}

// Document is a checked-out document as returned by the repository.
type Document struct {
	ID       DocID  `json:"id"`
	Content  string `json:"content"`
	DocType  string `json:"doctype"`
	Version  int    `json:"version"`
	LockedBy string `json:"locked_by,omitempty"`
}

// Severity classifies a validation message.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Message is a single validation finding.
type Message struct {
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// HasErrors reports whether any message is a hard error.
func HasErrors(msgs []Message) bool {
	for _, m := range msgs {
		if m.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Filter returns the messages with the given severity, in order.
func Filter(msgs []Message, sev Severity) []Message {
	var out []Message
	for _, m := range msgs {
		if m.Severity == sev {
			out = append(out, m)
		}
	}
	return out
}

// SaveOptions controls how a new version is written.
type SaveOptions struct {
	// Version creates a new version rather than overwriting the working copy.
	Version bool `json:"version"`

	// Publishable marks the new version eligible for downstream distribution.
	Publishable bool `json:"publishable"`

	// Comment is stored as the version's provenance/reason.
	Comment string `json:"comment"`

	// Unlock releases the lock as part of the save.
	Unlock bool `json:"unlock"`
}

// SaveResult describes the version created by Save.
type SaveResult struct {
	Version  int       `json:"version"`
	Warnings []Message `json:"warnings,omitempty"`
}

// Client is the narrow contract the engine consumes.
// Unlock must be idempotent: unlocking a document that is not locked by the
// session's operator is not an error.
type Client interface {
	Login(ctx context.Context, creds Credentials) (Session, error)
	Checkout(ctx context.Context, sess Session, id DocID, force bool) (Document, error)
	Validate(ctx context.Context, sess Session, docType, content string) ([]Message, error)
	Save(ctx context.Context, sess Session, id DocID, content string, opts SaveOptions) (SaveResult, error)
	Unlock(ctx context.Context, sess Session, id DocID) error
}
