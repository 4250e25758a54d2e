package job

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/globalchange/internal/change"
	"github.com/roach88/globalchange/internal/repo"
)

// Sleeper pauses between batches of documents.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// timerSleeper sleeps on a real timer, returning early on cancellation.
type timerSleeper struct{}

func (timerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Job drives the per-document pipeline for one run.
//
// Thread-safety: a Job must not be Run concurrently with itself. Separate
// Jobs may run concurrently; the repository lock is their only mutual
// exclusion.
type Job struct {
	client      repo.Client
	spec        Spec
	selector    Selector
	transformer Transformer

	recorder Recorder
	detector *change.Detector
	logger   *slog.Logger
	sleeper  Sleeper
	now      func() time.Time
	runIDs   RunIDGenerator
}

// Option configures a Job.
type Option func(*Job)

// WithRecorder sets the audit trail. Default: discard.
func WithRecorder(r Recorder) Option {
	return func(j *Job) {
		j.recorder = r
	}
}

// WithDetector overrides the change detector. Default: one built from
// Spec.Compare.
func WithDetector(d *change.Detector) Option {
	return func(j *Job) {
		j.detector = d
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(j *Job) {
		j.logger = l
	}
}

// WithSleeper overrides the pacing sleeper.
func WithSleeper(s Sleeper) Option {
	return func(j *Job) {
		j.sleeper = s
	}
}

// WithClock overrides the wall clock used for run timing.
func WithClock(now func() time.Time) Option {
	return func(j *Job) {
		j.now = now
	}
}

// WithRunIDGenerator overrides run ID generation. Default: UUIDv7Generator.
func WithRunIDGenerator(g RunIDGenerator) Option {
	return func(j *Job) {
		j.runIDs = g
	}
}

// New creates a Job. The spec is copied; later changes to the caller's value
// do not affect the run.
func New(client repo.Client, spec Spec, sel Selector, tr Transformer, opts ...Option) *Job {
	j := &Job{
		client:      client,
		spec:        spec.withDefaults(),
		selector:    sel,
		transformer: tr,
		recorder:    nopRecorder{},
		logger:      slog.Default(),
		sleeper:     timerSleeper{},
		now:         time.Now,
		runIDs:      UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(j)
	}
	if j.detector == nil {
		j.detector = change.NewDetector(change.WithMode(j.spec.Compare))
	}
	return j
}

// Spec returns the effective spec, with defaults applied.
func (j *Job) Spec() Spec {
	return j.spec
}

// Run executes the job and returns its summary.
//
// A *FatalError is returned for run-level failures. Per-document failures
// are not errors: they are counted in Summary.Failed and recorded.
//
// Cancelling ctx stops the run before the next document; the document in
// progress always completes and its lock is released.
func (j *Job) Run(ctx context.Context) (Summary, error) {
	spec := j.spec
	if err := spec.Validate(); err != nil {
		return Summary{Mode: spec.Mode}, fatal(PhaseConfig, err)
	}
	if j.client == nil || j.selector == nil || j.transformer == nil {
		return Summary{Mode: spec.Mode}, fatal(PhaseConfig, fmt.Errorf("%w: client, selector and transformer are required", ErrInvalidSpec))
	}

	runID := j.runIDs.Generate()
	log := j.logger.With("run_id", runID, "mode", string(spec.Mode))
	sum := Summary{RunID: runID, Mode: spec.Mode}

	sess, err := j.session(ctx, spec)
	if err != nil {
		log.Error("login failed", "operator", spec.Credentials.Operator, "error", err)
		return sum, fatal(PhaseLogin, err)
	}

	ids, err := j.selector.Select(ctx)
	if err != nil {
		log.Error("selection failed", "error", err)
		return sum, fatal(PhaseSelect, err)
	}

	sum.Selected = len(ids)
	sum.StartedAt = j.now()

	// Audit writes must land even while shutting down.
	auditCtx := context.WithoutCancel(ctx)
	info := RunInfo{
		RunID:       runID,
		Operator:    sess.Operator,
		Description: spec.Description,
		Mode:        spec.Mode,
		Selected:    len(ids),
		Cap:         spec.Cap,
		StartedAt:   sum.StartedAt,
	}
	if err := j.recorder.Begin(auditCtx, info); err != nil {
		return sum, fatal(PhaseRecord, fmt.Errorf("begin run: %w", err))
	}

	log.Info("run starting",
		"operator", sess.Operator,
		"selected", len(ids),
		"cap", spec.Cap,
		"description", spec.Description,
		"compare", string(j.detector.Mode()),
	)
	if spec.ForceUnlock {
		log.Warn("force unlock enabled: locks held by other operators will be taken over")
	}

	for i, id := range ids {
		if spec.Cap > 0 && sum.Processed >= spec.Cap {
			sum.CapReached = true
			log.Info("document cap reached", "cap", spec.Cap)
			break
		}
		if ctx.Err() != nil {
			sum.Interrupted = true
			log.Warn("run interrupted", "error", ctx.Err())
			break
		}

		o := j.process(ctx, spec, sess, runID, i+1, id, log)
		sum.add(o)
		if err := j.recorder.Record(auditCtx, runID, o); err != nil {
			sum.Untouched = sum.Selected - sum.Processed
			return j.finalize(sum), fatal(PhaseRecord, fmt.Errorf("record %s: %w", id, err))
		}

		if j.shouldPause(spec, sum, i, len(ids)) {
			log.Debug("pacing", "processed", sum.Processed, "pause", spec.PaceInterval)
			if err := j.sleeper.Sleep(ctx, spec.PaceInterval); err != nil {
				log.Debug("pacing interrupted", "error", err)
			}
		}
	}

	sum.Untouched = sum.Selected - sum.Processed
	sum = j.finalize(sum)
	if err := j.recorder.Finish(auditCtx, sum); err != nil {
		return sum, fatal(PhaseRecord, fmt.Errorf("finish run: %w", err))
	}

	logSummary(log, sum)
	return sum, nil
}

func (j *Job) session(ctx context.Context, spec Spec) (repo.Session, error) {
	if spec.Session != nil {
		return *spec.Session, nil
	}
	return j.client.Login(ctx, spec.Credentials)
}

func (j *Job) shouldPause(spec Spec, sum Summary, i, total int) bool {
	if spec.PaceInterval <= 0 || spec.PaceEvery <= 0 {
		return false
	}
	if i == total-1 {
		return false
	}
	if spec.Cap > 0 && sum.Processed >= spec.Cap {
		return false
	}
	return sum.Processed%spec.PaceEvery == 0
}

func (j *Job) finalize(sum Summary) Summary {
	sum.FinishedAt = j.now()
	sum.Elapsed = sum.FinishedAt.Sub(sum.StartedAt)
	return sum
}

func logSummary(log *slog.Logger, sum Summary) {
	log.Info("run finished",
		"selected", sum.Selected,
		"processed", sum.Processed,
		"changed", sum.Changed,
		"would_change", sum.WouldChange,
		"unchanged", sum.Unchanged,
		"skipped", sum.Skipped,
		"failed", sum.Failed,
		"untouched", sum.Untouched,
		"elapsed", sum.Elapsed,
	)
	if sum.Failed > 0 {
		log.Warn("documents failed; re-run the failed IDs after fixing the cause", "failed", sum.Failed)
	}
}
