package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/kiln/internal/build"
	"github.com/roach88/kiln/internal/report"
	"github.com/roach88/kiln/internal/watch"
)

// BuildReport is the result of `kiln build`.
type BuildReport struct {
	Outputs []OutputStatus `json:"outputs"`
	Stats   report.Stats   `json:"stats"`
	Failed  []string       `json:"failed"`
}

// OutputStatus is one output target's outcome.
type OutputStatus struct {
	Target string       `json:"target"`
	Status build.Status `json:"status"`
	Logs   string       `json:"logs,omitempty"`
}

// Text implements text output.
func (r BuildReport) Text(w io.Writer) {
	for _, o := range r.Outputs {
		fmt.Fprintf(w, "%-8s %s\n", o.Status, o.Target)
	}
	fmt.Fprintf(w, "built %d outputs in %s: %d executed, %d unchanged, %d failed\n",
		len(r.Outputs), r.Stats.Elapsed, r.Stats.Executed, r.Stats.Cached, len(r.Failed))
}

// NewBuildCommand creates the build command.
func NewBuildCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "build",
		Short: "Build every output once",
		Long: `Build every output of the site once and exit.

Exits 1 if any output failed or was skipped.

Examples:
  kiln build
  kiln build --config site/kiln.cue --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(rootOpts, cmd, &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()})
		},
	}
}

func runBuild(opts *RootOptions, cmd *cobra.Command, f *OutputFormatter) (err error) {
	s, err := openSession(opts, cmd.ErrOrStderr(), nil)
	if err != nil {
		return f.Fail(err)
	}
	defer func() {
		if closeErr := s.Close(); closeErr != nil && err == nil {
			err = WrapExitError(ExitCommandError, "failed to close session", closeErr)
		}
	}()

	outputs := s.project.Outputs()
	s.beginPass("build")
	results, err := watch.BuildAll(cmd.Context(), s.runner, outputs)
	if err != nil {
		return f.Fail(WrapExitError(ExitCommandError, "build interrupted", err))
	}
	s.endPass(results)

	rep := BuildReport{
		Outputs: make([]OutputStatus, len(outputs)),
		Stats:   s.summary.Stats(),
		Failed:  s.summary.Failed(outputs),
	}
	for i, t := range outputs {
		rep.Outputs[i] = OutputStatus{Target: t.ID(), Status: results[i].Status}
		if !results[i].OK() {
			rep.Outputs[i].Logs = results[i].Logs
		}
	}
	if rep.Failed == nil {
		rep.Failed = []string{}
	}
	if err := f.Success(rep); err != nil {
		return err
	}
	if len(rep.Failed) > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d outputs failed", len(rep.Failed), len(outputs)))
	}
	return nil
}
