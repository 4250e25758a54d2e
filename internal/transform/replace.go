package transform

import (
	"context"
	"fmt"
	"regexp"

	"github.com/roach88/globalchange/internal/job"
	"github.com/roach88/globalchange/internal/repo"
)

var _ job.Transformer = (*Replace)(nil)

// Replace rewrites every match of a regular expression.
// The replacement may reference groups as $1 or ${name}.
type Replace struct {
	re   *regexp.Regexp
	repl string
	scope
}

// NewReplace compiles pattern.
func NewReplace(pattern, replacement string, opts ...Option) (*Replace, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("replace pattern: %w", err)
	}
	return &Replace{re: re, repl: replacement, scope: newScope(opts)}, nil
}

// Transform implements job.Transformer.
func (r *Replace) Transform(_ context.Context, _ job.Env, doc repo.Document) (string, error) {
	if err := r.check(doc); err != nil {
		return "", err
	}
	return r.re.ReplaceAllString(doc.Content, r.repl), nil
}
