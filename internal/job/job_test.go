package job

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/globalchange/internal/change"
	"github.com/roach88/globalchange/internal/repo"
	"github.com/roach88/globalchange/internal/testutil"
)

const marker = "<!-- migrated -->"

// memRecorder keeps every recorder call in memory.
type memRecorder struct {
	mu       sync.Mutex
	info     *RunInfo
	outcomes []Outcome
	summary  *Summary
	failOn   int // fail the Nth Record call (1-based); 0 never
}

func (r *memRecorder) Begin(_ context.Context, info RunInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.info = &info
	return nil
}

func (r *memRecorder) Record(_ context.Context, _ string, o Outcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failOn > 0 && len(r.outcomes)+1 == r.failOn {
		return errors.New("disk full")
	}
	r.outcomes = append(r.outcomes, o)
	return nil
}

func (r *memRecorder) Finish(_ context.Context, s Summary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summary = &s
	return nil
}

func (r *memRecorder) statuses() map[repo.DocID]Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[repo.DocID]Status, len(r.outcomes))
	for _, o := range r.outcomes {
		out[o.DocID] = o.Status
	}
	return out
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func staticIDs(ids ...repo.DocID) Selector {
	return SelectorFunc(func(context.Context) ([]repo.DocID, error) {
		return ids, nil
	})
}

// appendMarker appends the marker to the listed documents unless already present.
func appendMarker(ids ...repo.DocID) Transformer {
	set := make(map[repo.DocID]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return TransformerFunc(func(_ context.Context, _ Env, doc repo.Document) (string, error) {
		if !set[doc.ID] || strings.HasSuffix(doc.Content, marker) {
			return doc.Content, nil
		}
		return doc.Content + marker, nil
	})
}

func identity() Transformer {
	return TransformerFunc(func(_ context.Context, _ Env, doc repo.Document) (string, error) {
		return doc.Content, nil
	})
}

func seed(m *repo.Memory, n int) []repo.DocID {
	ids := make([]repo.DocID, n)
	for i := 0; i < n; i++ {
		id := repo.IntID(int64(101 + i))
		m.Put(id, "article", fmt.Sprintf("<article id=%q><p>body</p></article>", id))
		ids[i] = id
	}
	return ids
}

func liveSpec() Spec {
	return Spec{
		Credentials: repo.Credentials{Operator: "migrator"},
		Description: "append migration marker",
		Mode:        ModeLive,
	}
}

func rehearsalSpec() Spec {
	s := liveSpec()
	s.Mode = ModeRehearsal
	return s
}

type harness struct {
	mem  *repo.Memory
	spy  *testutil.SpyClient
	rec  *memRecorder
	ids  []repo.DocID
	opts []Option
}

func newHarness(t *testing.T, n int) *harness {
	t.Helper()
	mem := repo.NewMemory()
	h := &harness{
		mem: mem,
		spy: testutil.NewSpyClient(mem),
		rec: &memRecorder{},
		ids: seed(mem, n),
	}
	h.opts = []Option{
		WithRecorder(h.rec),
		WithLogger(discardLogger()),
		WithSleeper(&testutil.RecordingSleeper{}),
	}
	return h
}

func (h *harness) run(t *testing.T, spec Spec, sel Selector, tr Transformer, extra ...Option) Summary {
	t.Helper()
	j := New(h.spy, spec, sel, tr, append(h.opts, extra...)...)
	sum, err := j.Run(context.Background())
	require.NoError(t, err)
	return sum
}

func (h *harness) assertAllUnlocked(t *testing.T) {
	t.Helper()
	for _, id := range h.ids {
		assert.Empty(t, h.mem.LockedBy(id), "document %s left locked", id)
	}
}

func TestRun_ConcreteScenario(t *testing.T) {
	h := newHarness(t, 3)

	sum := h.run(t, liveSpec(), staticIDs("101", "102", "103"), appendMarker("102"))

	assert.Equal(t, map[repo.DocID]Status{
		"101": StatusUnchanged,
		"102": StatusChanged,
		"103": StatusUnchanged,
	}, h.rec.statuses())

	require.Len(t, h.rec.outcomes, 3)
	changed := h.rec.outcomes[1]
	assert.Equal(t, 2, changed.NewVersion)
	assert.False(t, changed.Publishable)
	assert.NotEmpty(t, changed.Diff)

	assert.Equal(t, []repo.DocID{"102"}, h.spy.IDs("Save"))
	assert.Equal(t, 3, h.spy.Count("Unlock", ""))
	saves := h.spy.Calls()
	for _, c := range saves {
		if c.Method == "Save" {
			assert.True(t, c.Opts.Version)
			assert.False(t, c.Opts.Publishable)
			assert.Equal(t, "append migration marker", c.Opts.Comment)
		}
	}

	versions := h.mem.Versions("102")
	require.Len(t, versions, 2)
	assert.Equal(t, "append migration marker", versions[1].Comment)

	assert.Equal(t, 3, sum.Processed)
	assert.Equal(t, 1, sum.Changed)
	assert.Equal(t, 2, sum.Unchanged)
	assert.Zero(t, sum.Failed)
	h.assertAllUnlocked(t)
}

func TestRun_Idempotence(t *testing.T) {
	h := newHarness(t, 4)
	tr := appendMarker(h.ids...)

	first := h.run(t, liveSpec(), staticIDs(h.ids...), tr)
	assert.Equal(t, 4, first.Changed)

	second := h.run(t, liveSpec(), staticIDs(h.ids...), tr)
	assert.Zero(t, second.Changed)
	assert.Equal(t, 4, second.Unchanged)
	assert.Equal(t, 4, h.spy.Count("Save", ""), "second run must not save")
}

func TestRun_IdempotenceAgainstReserialization(t *testing.T) {
	h := newHarness(t, 1)
	id := h.ids[0]
	h.mem.Put(id, "article", `<?xml version="1.0"?>`+"\n"+`<article b="2" a="1"><p>x</p></article>`+"\n")

	// A transformer that re-serializes without changing anything meaningful.
	tr := TransformerFunc(func(_ context.Context, _ Env, doc repo.Document) (string, error) {
		return `<article a="1" b="2"><p>x</p></article>`, nil
	})

	sum := h.run(t, liveSpec(), staticIDs(id), tr)
	assert.Equal(t, 1, sum.Unchanged)
	assert.Zero(t, h.spy.Count("Save", ""))
}

func TestRun_RehearsalLiveParity(t *testing.T) {
	h := newHarness(t, 6)
	tr := appendMarker(h.ids[1], h.ids[3], h.ids[4])

	rehearsal := h.run(t, rehearsalSpec(), staticIDs(h.ids...), tr)
	assert.Zero(t, h.spy.Count("Save", ""), "rehearsal must not save")
	h.assertAllUnlocked(t)

	would := map[repo.DocID]bool{}
	for _, o := range h.rec.outcomes {
		if o.Status == StatusWouldChange {
			would[o.DocID] = true
			assert.NotEmpty(t, o.Diff)
			assert.Zero(t, o.NewVersion)
		}
	}
	for _, id := range h.ids {
		assert.Len(t, h.mem.Versions(id), 1, "rehearsal created a version of %s", id)
	}

	h.rec.outcomes = nil
	live := h.run(t, liveSpec(), staticIDs(h.ids...), tr)

	changed := map[repo.DocID]bool{}
	for _, o := range h.rec.outcomes {
		if o.Status == StatusChanged {
			changed[o.DocID] = true
		}
	}
	assert.Equal(t, would, changed)
	assert.Equal(t, rehearsal.WouldChange, live.Changed)
}

func TestRun_RehearsalParityWithValidation(t *testing.T) {
	mem := repo.NewMemory(repo.WithValidator(func(_, content string) []repo.Message {
		if strings.Contains(content, `id="102"`) {
			return []repo.Message{{Severity: repo.SeverityError, Message: "forbidden id"}}
		}
		return nil
	}))
	ids := seed(mem, 3)
	spy := testutil.NewSpyClient(mem)
	tr := appendMarker(ids...)

	runOnce := func(spec Spec) map[repo.DocID]Status {
		rec := &memRecorder{}
		spec.RequireValidation = true
		_, err := New(spy, spec, staticIDs(ids...), tr, WithRecorder(rec), WithLogger(discardLogger())).Run(context.Background())
		require.NoError(t, err)
		return rec.statuses()
	}

	rehearsal := runOnce(rehearsalSpec())
	live := runOnce(liveSpec())

	assert.Equal(t, StatusFailed, rehearsal["102"])
	assert.Equal(t, StatusFailed, live["102"])
	for _, id := range []repo.DocID{"101", "103"} {
		assert.Equal(t, StatusWouldChange, rehearsal[id])
		assert.Equal(t, StatusChanged, live[id])
	}
}

func TestRun_NoOpTransformSafety(t *testing.T) {
	h := newHarness(t, 5)

	sum := h.run(t, liveSpec(), staticIDs(h.ids...), identity())

	assert.Zero(t, sum.Changed)
	assert.Equal(t, 5, sum.Unchanged)
	assert.Zero(t, h.spy.Count("Save", ""))
	assert.Equal(t, 5, h.spy.Count("Unlock", ""))
}

func TestRun_FailureIsolation(t *testing.T) {
	h := newHarness(t, 5)
	failing := h.ids[2]
	base := appendMarker(h.ids...)
	tr := TransformerFunc(func(ctx context.Context, env Env, doc repo.Document) (string, error) {
		if doc.ID == failing {
			return "", errors.New("unparseable legacy markup")
		}
		return base.Transform(ctx, env, doc)
	})

	sum := h.run(t, liveSpec(), staticIDs(h.ids...), tr)

	require.Len(t, h.rec.outcomes, 5)
	for i, o := range h.rec.outcomes {
		assert.Equal(t, h.ids[i], o.DocID, "outcomes must follow selection order")
		assert.Equal(t, i+1, o.Seq)
		if o.DocID == failing {
			assert.Equal(t, StatusFailed, o.Status)
			assert.Equal(t, StageTransform, o.Stage)
			assert.Contains(t, o.Message, "unparseable legacy markup")
			continue
		}
		assert.Equal(t, StatusChanged, o.Status)
	}
	assert.Equal(t, 4, sum.Changed)
	assert.Equal(t, 1, sum.Failed)
	assert.Zero(t, h.spy.Count("Save", failing))
	h.assertAllUnlocked(t)
}

func TestRun_LockReleasedOnAllPaths(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(h *harness)
		tr        func(h *harness) Transformer
		validate  bool
		wantStage Stage
		wantLock  bool // checkout succeeded, so unlock expected
	}{
		{
			name: "lock held by another operator",
			setup: func(h *harness) {
				require.NoError(t, h.mem.Lock("101", "someone-else"))
			},
			wantStage: StageLock,
			wantLock:  false,
		},
		{
			name: "checkout transport failure",
			setup: func(h *harness) {
				h.spy.Inject(testutil.Fault{Method: "Checkout", ID: "101", Err: errors.New("connection reset")})
			},
			wantStage: StageLock,
			wantLock:  false,
		},
		{
			name: "transform error",
			tr: func(h *harness) Transformer {
				return TransformerFunc(func(context.Context, Env, repo.Document) (string, error) {
					return "", errors.New("boom")
				})
			},
			wantStage: StageTransform,
			wantLock:  true,
		},
		{
			name: "transform panic",
			tr: func(h *harness) Transformer {
				return TransformerFunc(func(context.Context, Env, repo.Document) (string, error) {
					panic("nil map")
				})
			},
			wantStage: StageTransform,
			wantLock:  true,
		},
		{
			name: "validate transport failure",
			setup: func(h *harness) {
				h.spy.Inject(testutil.Fault{Method: "Validate", Err: errors.New("timeout")})
			},
			validate:  true,
			wantStage: StageValidate,
			wantLock:  true,
		},
		{
			name: "save failure",
			setup: func(h *harness) {
				h.spy.Inject(testutil.Fault{Method: "Save", ID: "101", Err: errors.New("503")})
			},
			wantStage: StageSave,
			wantLock:  true,
		},
		{
			name: "save panic",
			setup: func(h *harness) {
				h.spy.Inject(testutil.Fault{Method: "Save", ID: "101", Panic: "driver bug"})
			},
			wantStage: StageSave,
			wantLock:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, 1)
			if tt.setup != nil {
				tt.setup(h)
			}
			tr := appendMarker("101")
			if tt.tr != nil {
				tr = tt.tr(h)
			}
			spec := liveSpec()
			spec.RequireValidation = tt.validate

			sum := h.run(t, spec, staticIDs("101"), tr)

			require.Len(t, h.rec.outcomes, 1)
			o := h.rec.outcomes[0]
			assert.Equal(t, StatusFailed, o.Status)
			assert.Equal(t, tt.wantStage, o.Stage)
			assert.Equal(t, 1, sum.Failed)

			if tt.wantLock {
				assert.Equal(t, 1, h.spy.Count("Unlock", "101"), "unlock exactly once")
				assert.Empty(t, h.mem.LockedBy("101"))
			} else {
				assert.Zero(t, h.spy.Count("Unlock", "101"), "nothing acquired, nothing released")
			}
			assert.Len(t, h.mem.Versions("101"), 1, "no version after a failure")

			// No save may follow the failing step.
			calls := h.spy.Calls()
			for i, c := range calls {
				if c.Method == "Unlock" {
					for _, later := range calls[i:] {
						assert.NotEqual(t, "Save", later.Method)
					}
				}
			}
		})
	}
}

func TestRun_UnlockExactlyOncePerDocument(t *testing.T) {
	h := newHarness(t, 4)
	require.NoError(t, h.mem.Lock(h.ids[3], "other"))
	tr := appendMarker(h.ids[0], h.ids[1])

	h.run(t, liveSpec(), staticIDs(h.ids...), tr)

	for _, id := range h.ids[:3] {
		assert.Equal(t, 1, h.spy.Count("Unlock", id), "unlock count for %s", id)
	}
	assert.Zero(t, h.spy.Count("Unlock", h.ids[3]))
	assert.Equal(t, "other", h.mem.LockedBy(h.ids[3]), "foreign lock untouched")
}

func TestRun_UnlockFailureRecorded(t *testing.T) {
	h := newHarness(t, 2)
	h.spy.Inject(testutil.Fault{Method: "Unlock", ID: "101", Err: errors.New("gateway timeout")})

	sum := h.run(t, liveSpec(), staticIDs(h.ids...), identity())

	require.Len(t, h.rec.outcomes, 2)
	assert.Equal(t, StatusUnchanged, h.rec.outcomes[0].Status)
	assert.Contains(t, h.rec.outcomes[0].UnlockErr, "gateway timeout")
	assert.Empty(t, h.rec.outcomes[1].UnlockErr)
	assert.Equal(t, 2, sum.Processed)
}

func TestRun_CapEnforcement(t *testing.T) {
	h := newHarness(t, 10)
	spec := liveSpec()
	spec.Cap = 3

	sum := h.run(t, spec, staticIDs(h.ids...), appendMarker(h.ids...))

	assert.Equal(t, 10, sum.Selected)
	assert.Equal(t, 3, sum.Processed)
	assert.Equal(t, 7, sum.Untouched)
	assert.True(t, sum.CapReached)
	assert.Equal(t, h.ids[:3], h.spy.IDs("Checkout"))
	for _, id := range h.ids[3:] {
		assert.Len(t, h.mem.Versions(id), 1)
	}
}

func TestRun_CapNotReachedWhenSelectionSmaller(t *testing.T) {
	h := newHarness(t, 2)
	spec := liveSpec()
	spec.Cap = 5

	sum := h.run(t, spec, staticIDs(h.ids...), identity())
	assert.False(t, sum.CapReached)
	assert.Equal(t, 2, sum.Processed)
	assert.Zero(t, sum.Untouched)
}

func TestRun_DuplicatesProcessedIndependently(t *testing.T) {
	h := newHarness(t, 1)

	sum := h.run(t, liveSpec(), staticIDs("101", "101"), appendMarker("101"))

	require.Len(t, h.rec.outcomes, 2)
	assert.Equal(t, StatusChanged, h.rec.outcomes[0].Status)
	assert.Equal(t, StatusUnchanged, h.rec.outcomes[1].Status)
	assert.Equal(t, 2, sum.Processed)
	assert.Equal(t, 2, h.spy.Count("Unlock", "101"))
}

func TestRun_NotApplicableIsSkipped(t *testing.T) {
	h := newHarness(t, 2)
	tr := TransformerFunc(func(_ context.Context, _ Env, doc repo.Document) (string, error) {
		if doc.ID == "101" {
			return "", fmt.Errorf("doctype %s: %w", doc.DocType, ErrNotApplicable)
		}
		return doc.Content + marker, nil
	})

	sum := h.run(t, liveSpec(), staticIDs(h.ids...), tr)
	assert.Equal(t, 1, sum.Skipped)
	assert.Equal(t, 1, sum.Changed)
	assert.Equal(t, StatusSkipped, h.rec.outcomes[0].Status)
	assert.Equal(t, 1, h.spy.Count("Unlock", "101"))
}

func TestRun_ValidationWarningsAndErrors(t *testing.T) {
	mem := repo.NewMemory(repo.WithValidator(func(_, content string) []repo.Message {
		switch {
		case strings.Contains(content, `"101"`):
			return []repo.Message{{Severity: repo.SeverityError, Message: "missing title"}}
		case strings.Contains(content, `"102"`):
			return []repo.Message{{Severity: repo.SeverityWarning, Message: "deprecated element"}}
		}
		return nil
	}))
	ids := seed(mem, 3)
	spy := testutil.NewSpyClient(mem)
	rec := &memRecorder{}
	spec := liveSpec()
	spec.RequireValidation = true
	spec.Publishable = true

	sum, err := New(spy, spec, staticIDs(ids...), appendMarker(ids...),
		WithRecorder(rec), WithLogger(discardLogger())).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, rec.outcomes, 3)
	assert.Equal(t, StatusFailed, rec.outcomes[0].Status)
	assert.Equal(t, StageValidate, rec.outcomes[0].Stage)
	assert.Contains(t, rec.outcomes[0].Message, "missing title")
	assert.Zero(t, spy.Count("Save", "101"))

	assert.Equal(t, StatusChanged, rec.outcomes[1].Status)
	assert.True(t, rec.outcomes[1].Publishable)
	assert.Equal(t, "saved version 2 (1 warnings: deprecated element)", rec.outcomes[1].Message)
	assert.Len(t, repo.Filter(rec.outcomes[1].Validation, repo.SeverityWarning), 1)

	assert.Equal(t, StatusChanged, rec.outcomes[2].Status)
	assert.Equal(t, 2, sum.Changed)
	assert.Equal(t, 1, sum.Failed)

	versions := mem.Versions("102")
	require.Len(t, versions, 2)
	assert.True(t, versions[1].Publishable)
}

func TestRun_ForceUnlock(t *testing.T) {
	h := newHarness(t, 1)
	require.NoError(t, h.mem.Lock("101", "stale-session"))
	spec := liveSpec()
	spec.ForceUnlock = true

	sum := h.run(t, spec, staticIDs("101"), appendMarker("101"))
	assert.Equal(t, 1, sum.Changed)

	calls := h.spy.Calls()
	require.NotEmpty(t, calls)
	for _, c := range calls {
		if c.Method == "Checkout" {
			assert.True(t, c.Force)
		}
	}
	assert.Empty(t, h.mem.LockedBy("101"))
}

func TestRun_Pacing(t *testing.T) {
	h := newHarness(t, 7)
	sleeper := &testutil.RecordingSleeper{}
	spec := rehearsalSpec()
	spec.PaceEvery = 3
	spec.PaceInterval = 250 * time.Millisecond

	h.run(t, spec, staticIDs(h.ids...), identity(), WithSleeper(sleeper))

	// Pauses after documents 3 and 6; never after the last document.
	assert.Equal(t, []time.Duration{250 * time.Millisecond, 250 * time.Millisecond}, sleeper.Pauses())
}

func TestRun_PacingDisabledByZeroInterval(t *testing.T) {
	h := newHarness(t, 5)
	sleeper := &testutil.RecordingSleeper{}
	spec := rehearsalSpec()
	spec.PaceEvery = 1

	h.run(t, spec, staticIDs(h.ids...), identity(), WithSleeper(sleeper))
	assert.Empty(t, sleeper.Pauses())
}

func TestRun_CancellationBetweenDocuments(t *testing.T) {
	h := newHarness(t, 6)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sleeper := &testutil.RecordingSleeper{OnSleep: cancel}
	spec := liveSpec()
	spec.PaceEvery = 2
	spec.PaceInterval = time.Second

	j := New(h.spy, spec, staticIDs(h.ids...), appendMarker(h.ids...),
		WithRecorder(h.rec), WithLogger(discardLogger()), WithSleeper(sleeper))
	sum, err := j.Run(ctx)
	require.NoError(t, err)

	assert.True(t, sum.Interrupted)
	assert.Equal(t, 2, sum.Processed)
	assert.Equal(t, 4, sum.Untouched)
	require.NotNil(t, h.rec.summary, "interrupted run must still be finalized")
	h.assertAllUnlocked(t)
}

func TestRun_DocumentCompletesDespiteCancellation(t *testing.T) {
	h := newHarness(t, 2)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Cancel while the first document is mid-pipeline.
	tr := TransformerFunc(func(_ context.Context, _ Env, doc repo.Document) (string, error) {
		cancel()
		return doc.Content + marker, nil
	})

	j := New(h.spy, liveSpec(), staticIDs(h.ids...), tr,
		WithRecorder(h.rec), WithLogger(discardLogger()))
	sum, err := j.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, sum.Processed)
	assert.Equal(t, 1, sum.Changed, "in-flight document completes its save")
	assert.True(t, sum.Interrupted)
	h.assertAllUnlocked(t)
}

func TestRun_SelectorFailureIsFatal(t *testing.T) {
	h := newHarness(t, 3)
	sel := SelectorFunc(func(context.Context) ([]repo.DocID, error) {
		return nil, errors.New("relation \"documents\" does not exist")
	})

	j := New(h.spy, liveSpec(), sel, identity(), h.opts...)
	_, err := j.Run(context.Background())

	require.Error(t, err)
	assert.True(t, IsFatal(err))
	var fe *FatalError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, PhaseSelect, fe.Phase)
	assert.Zero(t, h.spy.Count("Checkout", ""))
	assert.Nil(t, h.rec.info, "recorder must not see a run that never started")
}

func TestRun_LoginFailureIsFatal(t *testing.T) {
	mem := repo.NewMemory(repo.WithUser("migrator", "secret"))
	spy := testutil.NewSpyClient(mem)
	spec := liveSpec()
	spec.Credentials.Password = "wrong"

	_, err := New(spy, spec, staticIDs("1"), identity(), WithLogger(discardLogger())).Run(context.Background())

	var fe *FatalError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, PhaseLogin, fe.Phase)
	assert.ErrorIs(t, err, repo.ErrUnauthorized)
	assert.Zero(t, spy.Count("Checkout", ""))
}

func TestRun_SessionSkipsLogin(t *testing.T) {
	h := newHarness(t, 1)
	spec := liveSpec()
	spec.Credentials = repo.Credentials{}
	spec.Session = &repo.Session{Operator: "migrator"}

	h.run(t, spec, staticIDs("101"), identity())
	assert.Zero(t, h.spy.Count("Login", ""))
	assert.Equal(t, "migrator", h.rec.info.Operator)
}

func TestRun_InvalidSpecIsFatal(t *testing.T) {
	h := newHarness(t, 1)
	spec := liveSpec()
	spec.Description = "  "

	_, err := New(h.spy, spec, staticIDs("101"), identity(), h.opts...).Run(context.Background())

	assert.ErrorIs(t, err, ErrInvalidSpec)
	var fe *FatalError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, PhaseConfig, fe.Phase)
	assert.Empty(t, h.spy.Calls())
}

func TestRun_RecorderFailureIsFatal(t *testing.T) {
	h := newHarness(t, 4)
	h.rec.failOn = 2

	j := New(h.spy, liveSpec(), staticIDs(h.ids...), appendMarker(h.ids...), h.opts...)
	sum, err := j.Run(context.Background())

	var fe *FatalError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, PhaseRecord, fe.Phase)
	assert.Equal(t, 2, sum.Processed)
	assert.Equal(t, 2, sum.Untouched)
	assert.Equal(t, []repo.DocID{"101", "102"}, h.spy.IDs("Checkout"))
	h.assertAllUnlocked(t)
}

func TestRun_SummaryTiming(t *testing.T) {
	h := newHarness(t, 2)
	start := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	clock := testutil.NewStepClock(start, 5*time.Second)

	sum := h.run(t, rehearsalSpec(), staticIDs(h.ids...), identity(),
		WithClock(clock.Now), WithRunIDGenerator(testutil.NewFixedRunIDs("run-1")))

	assert.Equal(t, "run-1", sum.RunID)
	assert.Equal(t, start, sum.StartedAt)
	assert.Equal(t, 5*time.Second, sum.Elapsed)
	require.NotNil(t, h.rec.summary)
	assert.Equal(t, sum, *h.rec.summary)
	assert.Equal(t, "run-1", h.rec.info.RunID)
	assert.Equal(t, 2, h.rec.info.Selected)
}

func TestRun_TransformerReceivesEnv(t *testing.T) {
	h := newHarness(t, 1)
	var got Env
	tr := TransformerFunc(func(_ context.Context, env Env, doc repo.Document) (string, error) {
		got = env
		env.Logger.Info("inspecting", "doctype", doc.DocType)
		return doc.Content, nil
	})

	h.run(t, rehearsalSpec(), staticIDs("101"), tr, WithRunIDGenerator(testutil.NewFixedRunIDs("run-env")))

	assert.Equal(t, "run-env", got.RunID)
	assert.Equal(t, ModeRehearsal, got.Mode)
	assert.NotNil(t, got.Logger)
}

func TestRun_ExactCompareForcesVersionBump(t *testing.T) {
	h := newHarness(t, 1)
	h.mem.Put("101", "article", "<a/>\n")
	tr := TransformerFunc(func(_ context.Context, _ Env, doc repo.Document) (string, error) {
		return strings.TrimSuffix(doc.Content, "\n"), nil
	})

	structural := h.run(t, liveSpec(), staticIDs("101"), tr)
	assert.Equal(t, 1, structural.Unchanged)

	spec := liveSpec()
	spec.Compare = change.ModeExact
	exact := h.run(t, spec, staticIDs("101"), tr)
	assert.Equal(t, 1, exact.Changed)
}

func TestMergeMessages(t *testing.T) {
	deprecated := repo.Message{Severity: repo.SeverityWarning, Message: "deprecated element"}
	long := repo.Message{Severity: repo.SeverityWarning, Message: "line too long"}
	info := repo.Message{Severity: repo.SeverityInfo, Message: "deprecated element"}

	got := mergeMessages([]repo.Message{deprecated}, []repo.Message{deprecated, long, info, long})
	assert.Equal(t, []repo.Message{deprecated, long, info}, got)
	assert.Equal(t, []repo.Message{long}, mergeMessages(nil, []repo.Message{long}))
}
