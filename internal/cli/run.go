package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/globalchange/internal/config"
	"github.com/roach88/globalchange/internal/job"
	"github.com/roach88/globalchange/internal/runlog"
	"github.com/roach88/globalchange/internal/selector"
	"github.com/roach88/globalchange/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Live     bool
	Cap      int
	Database string
	LogPath  string
	DiffDir  string
	EnvFiles []string

	// RunIDs allows overriding the run ID generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	RunIDs job.RunIDGenerator

	// Getenv allows overriding environment lookup (for testing).
	// If nil, defaults to os.Getenv.
	Getenv config.Getenv
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(&RunOptions{RootOptions: rootOpts})
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <job.yaml>",
		Short: "Apply a job's transformation to its selected documents",
		Long: `Run a batch mutation job.

The job file names the repository, the selection and the transformation.
Without --live the run is a rehearsal: documents are locked, transformed,
compared and validated, but nothing is saved.

The repository password is read from the variable named by password_env
(default GLOBALCHANGE_PASSWORD). A .env file next to the job file or in the
working directory is loaded first.

Example:
  globalchange run rename.yaml
  globalchange run rename.yaml --live --cap 50 --db ledger.db --log run.log`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJob(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Live, "live", false, "save new versions (default is a rehearsal)")
	cmd.Flags().IntVar(&opts.Cap, "cap", 0, "stop after this many documents (overrides the job file)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite run ledger (overrides the job file)")
	cmd.Flags().StringVar(&opts.LogPath, "log", "", "path to run log file (overrides the job file)")
	cmd.Flags().StringVar(&opts.DiffDir, "diff-dir", "", "directory for per-document diffs (overrides the job file)")
	cmd.Flags().StringSliceVar(&opts.EnvFiles, "env-file", nil, ".env files to load (default: next to the job file, then the working directory)")

	return cmd
}

// runReport is the run command's output.
type runReport struct {
	Summary job.Summary `json:"summary"`
	DB      string      `json:"db,omitempty"`
	Log     string      `json:"log,omitempty"`
}

func (r runReport) String() string {
	s := r.Summary
	var b strings.Builder
	fmt.Fprintf(&b, "run %s (%s) finished in %s\n", s.RunID, s.Mode, s.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(&b, "selected %d, processed %d: changed %d, would change %d, unchanged %d, skipped %d, failed %d, untouched %d",
		s.Selected, s.Processed, s.Changed, s.WouldChange, s.Unchanged, s.Skipped, s.Failed, s.Untouched)
	if s.CapReached {
		b.WriteString("\nstopped: document cap reached")
	}
	if s.Interrupted {
		b.WriteString("\nstopped: interrupted")
	}
	if s.Failed > 0 && r.DB != "" {
		fmt.Fprintf(&b, "\nre-run failures with select: {failed_run: %s} (list them: globalchange failed %s --db %s)", s.RunID, s.RunID, r.DB)
	}
	return b.String()
}

func runJob(opts *RunOptions, jobPath string, cmd *cobra.Command) error {
	out := newFormatter(opts.RootOptions, cmd)
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())
	slog.SetDefault(logger)

	envFiles := opts.EnvFiles
	if len(envFiles) == 0 {
		envFiles = []string{filepath.Join(filepath.Dir(jobPath), ".env"), ".env"}
	}
	if err := config.LoadEnv(envFiles...); err != nil {
		return out.Fail(ExitCommandError, ErrCodeConfig, "failed to load environment", err)
	}
	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}

	jf, err := config.Load(jobPath)
	if err != nil {
		return out.Fail(ExitCommandError, ErrCodeConfig, "failed to load job file", err)
	}
	if err := applyRunFlags(opts, cmd, jf); err != nil {
		return out.Fail(ExitCommandError, ErrCodeConfig, "invalid flags", err)
	}

	spec, err := jf.Spec(getenv)
	if err != nil {
		return out.Fail(ExitCommandError, ErrCodeConfig, "invalid job", err)
	}
	client, err := jf.Client()
	if err != nil {
		return out.Fail(ExitCommandError, ErrCodeConfig, "invalid repository", err)
	}
	tr, err := jf.Transformer()
	if err != nil {
		return out.Fail(ExitCommandError, ErrCodeConfig, "failed to build transform", err)
	}

	// Setup signal handling for graceful shutdown
	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan) // Prevent signal handler leak

	go func() {
		select {
		case sig := <-sigChan:
			slog.Warn("received signal, stopping after the current document", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	var recorders runlog.Multi
	var ledger selector.FailedSource
	dbPath := jf.Path(jf.Output.DB)
	if dbPath != "" {
		slog.Debug("opening run ledger", "path", dbPath)
		st, err := store.Open(dbPath)
		if err != nil {
			return out.Fail(ExitCommandError, ErrCodeDatabase, "failed to open database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				slog.Error("error closing database", "error", closeErr)
			}
		}()
		ledger = st
		recorders = append(recorders, st)
	}
	logPath := jf.Path(jf.Output.Log)
	if logPath != "" || jf.Output.DiffDir != "" {
		fr := runlog.NewFileRecorder(logPath, jf.Path(jf.Output.DiffDir))
		defer fr.Close()
		recorders = append(recorders, fr)
	}

	sel, closeSel, err := jf.Selector(ctx, getenv, ledger)
	if err != nil {
		return out.Fail(ExitCommandError, ErrCodeSelect, "failed to build selection", err)
	}
	defer func() {
		if closeErr := closeSel(); closeErr != nil {
			slog.Error("error closing selection source", "error", closeErr)
		}
	}()

	jobOpts := []job.Option{job.WithRecorder(recorders), job.WithLogger(logger)}
	if opts.RunIDs != nil {
		jobOpts = append(jobOpts, job.WithRunIDGenerator(opts.RunIDs))
	}

	sum, err := job.New(client, spec, sel, tr, jobOpts...).Run(ctx)
	if err != nil {
		return runFailure(out, err)
	}
	return out.Success(runReport{Summary: sum, DB: dbPath, Log: logPath})
}

// applyRunFlags overrides job file settings with explicitly given flags.
// Flag paths are relative to the working directory, not the job file.
func applyRunFlags(opts *RunOptions, cmd *cobra.Command, jf *config.Job) error {
	if opts.Live {
		jf.Mode = string(job.ModeLive)
	}
	if cmd.Flags().Changed("cap") {
		jf.Cap = opts.Cap
	}
	for _, o := range []struct {
		flag string
		val  string
		dst  *string
	}{
		{"db", opts.Database, &jf.Output.DB},
		{"log", opts.LogPath, &jf.Output.Log},
		{"diff-dir", opts.DiffDir, &jf.Output.DiffDir},
	} {
		if !cmd.Flags().Changed(o.flag) {
			continue
		}
		if o.val == "" {
			*o.dst = ""
			continue
		}
		abs, err := filepath.Abs(o.val)
		if err != nil {
			return fmt.Errorf("--%s: %w", o.flag, err)
		}
		*o.dst = abs
	}
	return nil
}

// runFailure maps a fatal run error to an exit code. A bad job spec is a
// command error; anything else aborted a run.
func runFailure(out *OutputFormatter, err error) error {
	var fe *job.FatalError
	if !errors.As(err, &fe) {
		return out.Fail(ExitFailure, ErrCodeGeneric, "run failed", err)
	}
	switch fe.Phase {
	case job.PhaseConfig:
		return out.Fail(ExitCommandError, ErrCodeConfig, "invalid job", fe.Err)
	case job.PhaseLogin:
		return out.Fail(ExitFailure, ErrCodeLogin, "login failed", fe.Err)
	case job.PhaseSelect:
		return out.Fail(ExitFailure, ErrCodeSelect, "selection failed", fe.Err)
	default:
		return out.Fail(ExitFailure, ErrCodeRecord, "audit trail failed", fe.Err)
	}
}
