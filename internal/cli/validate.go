package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/globalchange/internal/config"
)

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <job.yaml>",
		Short: "Check a job file without touching the repository",
		Long: `Validate a job file against the job schema and build its transform.

Lookup tables are loaded and replacement patterns compiled, so a job that
validates fails only on repository or selection errors when run. The
repository is not contacted.

Example:
  globalchange validate rename.yaml
  globalchange validate rename.yaml --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

// validateResult is the validate command's output.
type validateResult struct {
	Job         string `json:"job"`
	Description string `json:"description"`
	Mode        string `json:"mode"`
	Steps       int    `json:"steps"`
}

func (r validateResult) String() string {
	return fmt.Sprintf("✓ %s is valid (%s, %d transform step(s))", r.Job, r.Mode, r.Steps)
}

func runValidate(opts *RootOptions, jobPath string, cmd *cobra.Command) error {
	out := newFormatter(opts, cmd)

	jf, err := config.Load(jobPath)
	if err != nil {
		return out.Fail(ExitCommandError, ErrCodeConfig, "invalid job file", err)
	}
	out.VerboseLog("Loaded %s", jobPath)

	spec, err := jf.Spec(os.Getenv)
	if err != nil {
		return out.Fail(ExitCommandError, ErrCodeConfig, "invalid job", err)
	}
	if _, err := jf.Client(); err != nil {
		return out.Fail(ExitCommandError, ErrCodeConfig, "invalid repository", err)
	}
	if _, err := jf.Transformer(); err != nil {
		return out.Fail(ExitCommandError, ErrCodeConfig, "failed to build transform", err)
	}
	out.VerboseLog("Transform built with %d step(s)", len(jf.Transform))

	return out.Success(validateResult{
		Job:         jobPath,
		Description: spec.Description,
		Mode:        string(spec.Mode),
		Steps:       len(jf.Transform),
	})
}
