package change

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/pmezard/go-difflib/difflib"
)

// Mode selects how old and new content are compared.
type Mode string

const (
	// ModeStructural ignores serialization artifacts (the default).
	ModeStructural Mode = "structural"

	// ModeExact compares raw bytes. Any byte difference, including a
	// re-emitted declaration or trailing newline, counts as a change.
	ModeExact Mode = "exact"
)

// ParseMode converts a configuration string to a Mode. "" means structural.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeStructural:
		return ModeStructural, nil
	case ModeExact:
		return ModeExact, nil
	default:
		return "", fmt.Errorf("unknown compare mode %q", s)
	}
}

// DomainContent separates content fingerprints from other hashes.
const DomainContent = "globalchange/content/v1"

// DefaultContext is the number of unchanged lines around each diff hunk.
const DefaultContext = 3

// Result is the outcome of comparing two versions of a document.
type Result struct {
	Changed bool

	// Diff is a unified diff of the raw content; empty when unchanged.
	Diff string

	// OldHash and NewHash fingerprint the compared (normalized) forms.
	OldHash string
	NewHash string
}

// Detector decides whether a transform produced a meaningful change.
//
// Thread-safety: Detector is immutable and safe for concurrent use.
type Detector struct {
	mode    Mode
	context int
}

// Option configures a Detector.
type Option func(*Detector)

// WithMode selects the comparison mode.
func WithMode(m Mode) Option {
	return func(d *Detector) {
		d.mode = m
	}
}

// WithContext sets the number of context lines in diffs.
func WithContext(n int) Option {
	return func(d *Detector) {
		d.context = n
	}
}

// NewDetector creates a Detector. Defaults: structural mode, 3 context lines.
func NewDetector(opts ...Option) *Detector {
	d := &Detector{mode: ModeStructural, context: DefaultContext}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Mode returns the comparison mode in use.
func (d *Detector) Mode() Mode {
	return d.mode
}

// Normalize returns the form of s used for comparison.
// XML input is canonicalized; anything that does not parse as XML falls
// back to text normalization. Exact mode returns s unchanged.
func (d *Detector) Normalize(s string) string {
	if d.mode == ModeExact {
		return s
	}
	if looksLikeXML(s) {
		if canon, err := NormalizeXML(s); err == nil {
			return canon
		}
	}
	return NormalizeText(s)
}

// Compare reports whether newContent differs meaningfully from oldContent.
// name labels the diff headers (usually the document ID).
func (d *Detector) Compare(name, oldContent, newContent string) (Result, error) {
	oldNorm := d.Normalize(oldContent)
	newNorm := d.Normalize(newContent)

	res := Result{
		Changed: oldNorm != newNorm,
		OldHash: Fingerprint(oldNorm),
		NewHash: Fingerprint(newNorm),
	}
	if !res.Changed {
		return res, nil
	}

	diff, err := d.Diff(name, oldContent, newContent)
	if err != nil {
		return Result{}, err
	}
	res.Diff = diff
	return res, nil
}

// Diff renders a unified diff of the raw content.
func (d *Detector) Diff(name, oldContent, newContent string) (string, error) {
	ud := difflib.UnifiedDiff{
		A:        difflib.SplitLines(ensureNewline(oldContent)),
		B:        difflib.SplitLines(ensureNewline(newContent)),
		FromFile: name + " (current)",
		ToFile:   name + " (proposed)",
		Context:  d.context,
	}
	out, err := difflib.GetUnifiedDiffString(ud)
	if err != nil {
		return "", fmt.Errorf("diff %s: %w", name, err)
	}
	if out == "" {
		// Only line endings or a trailing newline differ; show the raw forms.
		out = fmt.Sprintf("--- %s\n+++ %s\n-%q\n+%q\n", ud.FromFile, ud.ToFile, oldContent, newContent)
	}
	return out, nil
}

// Fingerprint computes a domain-separated SHA-256 of content.
// Format: SHA256(domain + 0x00 + content)
func Fingerprint(content string) string {
	h := sha256.New()
	h.Write([]byte(DomainContent))
	h.Write([]byte{0x00})
	h.Write([]byte(content))
	return hex.EncodeToString(h.Sum(nil))
}

func ensureNewline(s string) string {
	if s == "" || s[len(s)-1] == '\n' {
		return s
	}
	return s + "\n"
}
