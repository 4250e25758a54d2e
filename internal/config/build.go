package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/globalchange/internal/change"
	"github.com/roach88/globalchange/internal/job"
	"github.com/roach88/globalchange/internal/repo"
	"github.com/roach88/globalchange/internal/selector"
	"github.com/roach88/globalchange/internal/transform"
)

// Getenv looks up an environment variable; os.Getenv in production.
type Getenv func(key string) string

// Credentials returns the operator credentials, reading the password from
// the configured environment variable.
func (j *Job) Credentials(getenv Getenv) repo.Credentials {
	return repo.Credentials{
		Operator: j.Repository.Operator,
		Password: getenv(j.Repository.PasswordEnv),
	}
}

// Spec converts the job file to a validated job.Spec.
func (j *Job) Spec(getenv Getenv) (job.Spec, error) {
	mode, err := job.ParseMode(j.Mode)
	if err != nil {
		return job.Spec{}, err
	}
	cmp, err := change.ParseMode(j.Compare)
	if err != nil {
		return job.Spec{}, fmt.Errorf("%w: %v", job.ErrInvalidSpec, err)
	}

	spec := job.Spec{
		Credentials:       j.Credentials(getenv),
		Description:       j.Description,
		Mode:              mode,
		Cap:               j.Cap,
		PaceEvery:         j.Pace.Every,
		PaceInterval:      time.Duration(j.Pace.Interval),
		RequireValidation: j.RequireValidation == nil || *j.RequireValidation,
		Publishable:       j.Publishable,
		ForceUnlock:       j.ForceUnlock,
		Compare:           cmp,
	}
	if err := spec.Validate(); err != nil {
		return job.Spec{}, err
	}
	return spec, nil
}

// Client builds the repository client, rate limited when configured.
func (j *Job) Client() (repo.Client, error) {
	var opts []repo.HTTPOption
	if j.Repository.Timeout > 0 {
		opts = append(opts, repo.WithTimeout(time.Duration(j.Repository.Timeout)))
	}
	c, err := repo.NewHTTPClient(j.Repository.URL, opts...)
	if err != nil {
		return nil, err
	}
	if j.Repository.RateLimit > 0 {
		return repo.NewRateLimited(c, j.Repository.RateLimit, j.Repository.Burst), nil
	}
	return c, nil
}

// Selector builds the configured selector. The returned close function
// releases any database connection and is never nil. ledger may be nil
// unless the job selects the failures of an earlier run.
func (j *Job) Selector(ctx context.Context, getenv Getenv, ledger selector.FailedSource) (job.Selector, func() error, error) {
	noop := func() error { return nil }
	sel := j.Select

	switch {
	case len(sel.IDs) > 0:
		ids := make(selector.Static, len(sel.IDs))
		for i, id := range sel.IDs {
			ids[i] = repo.DocID(id)
		}
		return ids, noop, nil

	case sel.File != "":
		return selector.NewFile(j.Path(sel.File)), noop, nil

	case sel.SQL != nil:
		dsn := sel.SQL.DSN
		if sel.SQL.DSNEnv != "" {
			dsn = getenv(sel.SQL.DSNEnv)
		}
		if dsn == "" {
			return nil, noop, fmt.Errorf("%w: sql selection needs dsn or a non-empty dsn_env", ErrInvalid)
		}
		if sel.SQL.Driver == selector.DriverSQLite && !strings.HasPrefix(dsn, "file:") && !strings.HasPrefix(dsn, ":") {
			dsn = j.Path(dsn)
		}
		db, err := selector.Open(ctx, sel.SQL.Driver, dsn)
		if err != nil {
			return nil, noop, err
		}
		args := make([]any, len(sel.SQL.Args))
		for i, a := range sel.SQL.Args {
			args[i] = a
		}
		return selector.NewSQL(db, sel.SQL.Query, args...), db.Close, nil

	case sel.FailedRun != "":
		if ledger == nil {
			return nil, noop, errors.New("failed_run selection requires a run ledger (--db)")
		}
		return selector.NewFailed(ledger, sel.FailedRun), noop, nil
	}
	return nil, noop, fmt.Errorf("%w: no selection configured", ErrInvalid)
}

// Transformer builds the transform chain. Lookup tables are loaded here,
// once, before any document is touched.
func (j *Job) Transformer() (job.Transformer, error) {
	steps := make(transform.Chain, 0, len(j.Transform))
	for i, st := range j.Transform {
		tr, err := j.step(st)
		if err != nil {
			return nil, fmt.Errorf("transform step %d: %w", i+1, err)
		}
		steps = append(steps, tr)
	}
	switch len(steps) {
	case 0:
		return nil, fmt.Errorf("%w: no transform configured", ErrInvalid)
	case 1:
		return steps[0], nil
	default:
		return steps, nil
	}
}

func (j *Job) step(st Step) (job.Transformer, error) {
	scope := transform.WithDocTypes(st.DocTypes...)
	switch {
	case st.Replace != nil:
		return transform.NewReplace(st.Replace.Pattern, st.Replace.With, scope)
	case st.Lookup != nil && st.Lookup.File != "":
		return transform.LoadLookup(j.Path(st.Lookup.File), st.Lookup.Sheet, scope)
	case st.Lookup != nil:
		pairs := make([]transform.Pair, len(st.Lookup.Pairs))
		for i, p := range st.Lookup.Pairs {
			pairs[i] = transform.Pair{Find: p.Find, Replace: p.Replace}
		}
		return transform.NewLookup(pairs, scope)
	case st.Marker != nil:
		ids := make([]repo.DocID, len(st.Marker.IDs))
		for i, id := range st.Marker.IDs {
			ids[i] = repo.DocID(id)
		}
		return transform.Scope(transform.NewMarker(st.Marker.Text, ids...), scope), nil
	}
	return nil, fmt.Errorf("%w: empty transform step", ErrInvalid)
}
