package transform

import (
	"context"
	"fmt"

	"github.com/roach88/globalchange/internal/job"
	"github.com/roach88/globalchange/internal/repo"
)

// Option restricts where a transformer applies.
type Option func(*scope)

type scope struct {
	docTypes map[string]bool
}

// WithDocTypes limits the transformer to the given document types.
// Other documents are reported as not applicable (skipped).
func WithDocTypes(types ...string) Option {
	return func(s *scope) {
		if len(types) == 0 {
			return
		}
		if s.docTypes == nil {
			s.docTypes = make(map[string]bool, len(types))
		}
		for _, t := range types {
			s.docTypes[t] = true
		}
	}
}

func newScope(opts []Option) scope {
	var s scope
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

func (s scope) check(doc repo.Document) error {
	if s.docTypes != nil && !s.docTypes[doc.DocType] {
		return fmt.Errorf("doctype %q: %w", doc.DocType, job.ErrNotApplicable)
	}
	return nil
}

type scoped struct {
	next job.Transformer
	scope
}

// Scope applies opts to any transformer.
func Scope(tr job.Transformer, opts ...Option) job.Transformer {
	s := newScope(opts)
	if s.docTypes == nil {
		return tr
	}
	return &scoped{next: tr, scope: s}
}

func (s *scoped) Transform(ctx context.Context, env job.Env, doc repo.Document) (string, error) {
	if err := s.check(doc); err != nil {
		return "", err
	}
	return s.next.Transform(ctx, env, doc)
}
