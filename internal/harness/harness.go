package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/globalchange/internal/config"
	"github.com/roach88/globalchange/internal/job"
	"github.com/roach88/globalchange/internal/repo"
	"github.com/roach88/globalchange/internal/store"
	"github.com/roach88/globalchange/internal/testutil"
)

// Fixed identities used by every scenario run.
const (
	RunID    = "harness-run"
	Operator = "harness"
	password = "harness"
)

// Epoch is the stepping clock's start; each reading advances one second.
var Epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// Harness holds the per-scenario fixtures.
type Harness struct {
	store  *store.Store
	repo   *repo.Memory
	clock  *testutil.StepClock
	logger *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory repository and ledger.
// Deterministic helpers ensure reproducible results.
//
// Execution flow:
// 1. Seed the repository and its locks
// 2. Build the job from the scenario's job section
// 3. Run the job, recording into the ledger
// 4. Read the outcomes back from the ledger
// 5. Evaluate assertions
//
// A fatal run error is part of the result, not an error; errors are
// returned only when the scenario itself cannot be executed.
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		store:  st,
		repo:   repo.NewMemory(repo.WithUser(Operator, password), repo.WithValidator(ruleValidator(scenario.Rules))),
		clock:  testutil.NewStepClock(Epoch, time.Second),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	}

	if err := h.seed(scenario.Documents); err != nil {
		return nil, fmt.Errorf("failed to seed repository: %w", err)
	}

	ctx := context.Background()
	result := NewResult()
	if err := h.execute(ctx, scenario, result); err != nil {
		return nil, err
	}

	actx := &AssertionContext{
		Repo:  h.repo,
		Store: st,
		Ctx:   ctx,
	}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}

	return result, nil
}

func (h *Harness) seed(docs []SeedDocument) error {
	for _, d := range docs {
		h.repo.Put(repo.DocID(d.ID), d.Type, d.Content)
		if d.LockedBy != "" {
			if err := h.repo.Lock(repo.DocID(d.ID), d.LockedBy); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *Harness) execute(ctx context.Context, scenario *Scenario, result *Result) error {
	jf, err := jobFile(scenario)
	if err != nil {
		return err
	}
	getenv := func(key string) string {
		if key == config.DefaultPasswordEnv {
			return password
		}
		return ""
	}

	spec, err := jf.Spec(getenv)
	if err != nil {
		return fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}
	tr, err := jf.Transformer()
	if err != nil {
		return fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}
	sel, closeSel, err := jf.Selector(ctx, getenv, h.store)
	if err != nil {
		return fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}
	defer closeSel()

	j := job.New(h.repo, spec, sel, tr,
		job.WithRecorder(h.store),
		job.WithLogger(h.logger),
		job.WithClock(h.clock.Now),
		job.WithSleeper(&testutil.RecordingSleeper{}),
		job.WithRunIDGenerator(testutil.NewFixedRunIDs(RunID)),
	)
	sum, err := j.Run(ctx)
	result.Summary = sum
	if err != nil {
		if !job.IsFatal(err) {
			return err
		}
		result.Fatal = err.Error()
	}

	outcomes, err := h.store.Outcomes(ctx, RunID, "")
	switch {
	case errors.Is(err, store.ErrRunNotFound):
		// Aborted before the run began.
	case err != nil:
		return fmt.Errorf("failed to read outcomes: %w", err)
	default:
		result.Outcomes = outcomes
	}
	return nil
}

// jobFile completes the scenario's job section with the harness repository
// and parses it like any job file.
func jobFile(scenario *Scenario) (*config.Job, error) {
	body := make(map[string]any, len(scenario.Job)+1)
	for k, v := range scenario.Job {
		body[k] = v
	}
	body["repository"] = map[string]any{
		"url":      "http://harness.invalid",
		"operator": Operator,
	}

	data, err := yaml.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: encode job: %w", scenario.Name, err)
	}
	jf, err := config.Parse(scenario.Name+" job", data)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}
	return jf, nil
}

// ruleValidator turns scenario rules into repository validation.
func ruleValidator(rules []Rule) repo.ValidateFunc {
	return func(docType, content string) []repo.Message {
		var msgs []repo.Message
		for _, r := range rules {
			if r.DocType != "" && r.DocType != docType {
				continue
			}
			if strings.Contains(content, r.Contains) {
				msgs = append(msgs, repo.Message{Severity: repo.Severity(r.Severity), Message: r.Message})
			}
		}
		return msgs
	}
}
