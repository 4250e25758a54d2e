package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/globalchange/internal/job"
	"github.com/roach88/globalchange/internal/repo"
	"github.com/roach88/globalchange/internal/runlog"
	"github.com/roach88/globalchange/internal/store"
)

// LedgerOptions holds flags shared by the commands that read the run ledger.
type LedgerOptions struct {
	*RootOptions
	Database string
}

func (o *LedgerOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.Database, "db", "", "path to SQLite run ledger (required)")
	_ = cmd.MarkFlagRequired("db")
}

// openLedger opens an existing ledger. store.Open would create a missing
// database, which only hides a mistyped path here.
func openLedger(out *OutputFormatter, path string) (*store.Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, out.Fail(ExitCommandError, ErrCodeDatabase, "database not found", err)
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, out.Fail(ExitCommandError, ErrCodeDatabase, "failed to open database", err)
	}
	return st, nil
}

func ledgerFailure(out *OutputFormatter, message string, err error) error {
	if errors.Is(err, store.ErrRunNotFound) || errors.Is(err, store.ErrDiffNotFound) {
		return out.Fail(ExitFailure, ErrCodeNotFound, message, err)
	}
	return out.Fail(ExitFailure, ErrCodeDatabase, message, err)
}

// RunsOptions holds flags for the runs command.
type RunsOptions struct {
	LedgerOptions
	Limit int
}

// NewRunsCommand creates the runs command.
func NewRunsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunsOptions{LedgerOptions: LedgerOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs, newest first",
		Long: `List the runs recorded in a ledger, newest first.

Runs without a completion record were aborted or are still in progress.

Example:
  globalchange runs --db ledger.db
  globalchange runs --db ledger.db --limit 5 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRuns(opts, cmd)
		},
	}

	opts.bind(cmd)
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum runs to list (0 for all)")

	return cmd
}

// runList renders as a table in text mode.
type runList []store.Run

func (l runList) String() string {
	if len(l) == 0 {
		return "no runs recorded"
	}
	var b strings.Builder
	tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tMODE\tSTARTED\tSELECTED\tCHANGED\tFAILED\tSTATE\tDESCRIPTION")
	for _, r := range l {
		changed, failed, state := "-", "-", "unfinished"
		if r.Summary != nil {
			changed = fmt.Sprint(r.Summary.Changed + r.Summary.WouldChange)
			failed = fmt.Sprint(r.Summary.Failed)
			state = runState(*r.Summary)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
			r.RunID, r.Mode, r.StartedAt.Local().Format(time.DateTime), r.Selected, changed, failed, state, r.Description)
	}
	_ = tw.Flush()
	return strings.TrimRight(b.String(), "\n")
}

func runState(s job.Summary) string {
	switch {
	case s.Interrupted:
		return "interrupted"
	case s.CapReached:
		return "capped"
	default:
		return "complete"
	}
}

func runRuns(opts *RunsOptions, cmd *cobra.Command) error {
	out := newFormatter(opts.RootOptions, cmd)
	st, err := openLedger(out, opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := st.ListRuns(cmd.Context(), opts.Limit)
	if err != nil {
		return ledgerFailure(out, "failed to list runs", err)
	}
	return out.Success(runList(runs))
}

// ShowOptions holds flags for the show command.
type ShowOptions struct {
	LedgerOptions
	Status string
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ShowOptions{LedgerOptions: LedgerOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "show <run-id|latest>",
		Short: "Show a run and its per-document outcomes",
		Long: `Show one recorded run: its header, its summary and one line per
processed document, in processing order.

Example:
  globalchange show latest --db ledger.db
  globalchange show 0192f0c4-... --db ledger.db --status failed`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(opts, args[0], cmd)
		},
	}

	opts.bind(cmd)
	cmd.Flags().StringVar(&opts.Status, "status", "", "only outcomes with this status (changed|would_change|unchanged|skipped|failed)")

	return cmd
}

// runDetail is a run with its outcomes.
type runDetail struct {
	Run      store.Run     `json:"run"`
	Outcomes []job.Outcome `json:"outcomes"`
}

func (d runDetail) String() string {
	r := d.Run
	var b strings.Builder
	fmt.Fprintf(&b, "run %s (%s)\n", r.RunID, r.Mode)
	fmt.Fprintf(&b, "operator: %s\n", r.Operator)
	if r.Description != "" {
		fmt.Fprintf(&b, "description: %s\n", r.Description)
	}
	fmt.Fprintf(&b, "started: %s\n", r.StartedAt.Local().Format(time.DateTime))
	if s := r.Summary; s != nil {
		fmt.Fprintf(&b, "finished: %s (%s, %s)\n", s.FinishedAt.Local().Format(time.DateTime), runState(*s), s.Elapsed.Round(time.Millisecond))
		fmt.Fprintf(&b, "selected %d, processed %d: changed %d, would change %d, unchanged %d, skipped %d, failed %d, untouched %d\n",
			r.Selected, s.Processed, s.Changed, s.WouldChange, s.Unchanged, s.Skipped, s.Failed, s.Untouched)
	} else {
		fmt.Fprintf(&b, "selected %d, unfinished\n", r.Selected)
	}
	for _, o := range d.Outcomes {
		b.WriteString(runlog.FormatLine(o))
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

var outcomeStatuses = []job.Status{
	job.StatusChanged, job.StatusWouldChange, job.StatusUnchanged, job.StatusSkipped, job.StatusFailed,
}

func parseStatus(s string) (job.Status, error) {
	if s == "" {
		return "", nil
	}
	for _, st := range outcomeStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown status %q", s)
}

func runShow(opts *ShowOptions, ref string, cmd *cobra.Command) error {
	out := newFormatter(opts.RootOptions, cmd)
	status, err := parseStatus(opts.Status)
	if err != nil {
		return out.Fail(ExitCommandError, ErrCodeGeneric, "invalid --status", err)
	}
	st, err := openLedger(out, opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := cmd.Context()
	var run store.Run
	if ref == "latest" {
		run, err = st.LatestRun(ctx)
	} else {
		run, err = st.GetRun(ctx, ref)
	}
	if err != nil {
		return ledgerFailure(out, "failed to load run", err)
	}
	outcomes, err := st.Outcomes(ctx, run.RunID, status)
	if err != nil {
		return ledgerFailure(out, "failed to load outcomes", err)
	}
	return out.Success(runDetail{Run: run, Outcomes: outcomes})
}

// NewDiffCommand creates the diff command.
func NewDiffCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LedgerOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "diff <run-id> <doc-id>",
		Short: "Print the recorded diff for one document of a run",
		Long: `Print the unified diff recorded for a changed (or would-change)
document. Diffs are recorded for rehearsals too, so a rehearsal can be
reviewed before the live run.

Example:
  globalchange diff 0192f0c4-... 1042 --db ledger.db`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiff(opts, args[0], repo.DocID(args[1]), cmd)
		},
	}

	opts.bind(cmd)

	return cmd
}

func runDiff(opts *LedgerOptions, runID string, docID repo.DocID, cmd *cobra.Command) error {
	out := newFormatter(opts.RootOptions, cmd)
	st, err := openLedger(out, opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	diff, err := st.Diff(cmd.Context(), runID, docID)
	if err != nil {
		return ledgerFailure(out, fmt.Sprintf("no diff for %s in run %s", docID, runID), err)
	}
	if out.JSON() {
		return out.Success(map[string]string{"run_id": runID, "doc_id": string(docID), "diff": diff})
	}
	_, err = fmt.Fprint(out.Writer, diff)
	return err
}

// NewFailedCommand creates the failed command.
func NewFailedCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LedgerOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "failed <run-id|latest>",
		Short: "Print the IDs of documents that failed in a run",
		Long: `Print the IDs of the documents that failed in a run, one per line,
in processing order. The output is a valid ID file for select: {file: ...}.

Example:
  globalchange failed latest --db ledger.db > retry.txt`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFailed(opts, args[0], cmd)
		},
	}

	opts.bind(cmd)

	return cmd
}

func runFailed(opts *LedgerOptions, ref string, cmd *cobra.Command) error {
	out := newFormatter(opts.RootOptions, cmd)
	st, err := openLedger(out, opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := cmd.Context()
	runID := ref
	if ref == "latest" {
		run, err := st.LatestRun(ctx)
		if err != nil {
			return ledgerFailure(out, "failed to load run", err)
		}
		runID = run.RunID
	}
	ids, err := st.FailedIDs(ctx, runID)
	if err != nil {
		return ledgerFailure(out, "failed to load failed documents", err)
	}
	if out.JSON() {
		return out.Success(map[string]any{"run_id": runID, "ids": ids})
	}
	for _, id := range ids {
		if _, err := fmt.Fprintln(out.Writer, id); err != nil {
			return err
		}
	}
	return nil
}
