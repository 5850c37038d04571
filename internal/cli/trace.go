package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/kiln/internal/journal"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Run      string
}

// RunList is the text and JSON form of the journal's runs.
type RunList []journal.Run

// Text implements text output.
func (l RunList) Text(w io.Writer) {
	if len(l) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return
	}
	for _, r := range l {
		fmt.Fprintf(w, "%s  %s  %s\n", r.ID, r.StartedAt.Format(time.RFC3339), r.Label)
	}
}

// EventList is the text and JSON form of one run's events.
type EventList []journal.Entry

// Text implements text output.
func (l EventList) Text(w io.Writer) {
	if len(l) == 0 {
		fmt.Fprintln(w, "No events recorded for run.")
		return
	}
	for _, e := range l {
		line := fmt.Sprintf("%6d  %-18s  %s", e.Seq, e.Type, e.Target)
		if e.Status != "" {
			line += "  " + e.Status
		}
		if e.Cached {
			line += " (unchanged)"
		}
		if e.Obsolete {
			line += " (obsolete)"
		}
		fmt.Fprintln(w, line)
	}
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show journaled build runs",
		Long: `Show the runs recorded in the event journal, or the events of one run.

The journal is the --db file, or journal.path from the config.

Examples:
  kiln trace
  kiln trace --db .kiln/journal.db --run 0190b6a4-...
  kiln trace --run 0190b6a4-... --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd, &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()})
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to the journal database")
	cmd.Flags().StringVar(&opts.Run, "run", "", "run id to show events for")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command, f *OutputFormatter) error {
	path := opts.Database
	if path == "" {
		cfg, err := loadConfig(opts.RootOptions)
		if err != nil {
			return f.Fail(WrapExitError(ExitCommandError, "no --db given and no config", err))
		}
		path = cfg.Journal.Path
	}
	if path == "" {
		return f.Fail(NewExitError(ExitCommandError, "no journal: pass --db or set journal.path"))
	}

	st, err := journal.Open(path)
	if err != nil {
		return f.Fail(WrapExitError(ExitCommandError, "failed to open journal", err))
	}
	defer st.Close()

	ctx := cmd.Context()
	if opts.Run == "" {
		runs, err := st.Runs(ctx)
		if err != nil {
			return f.Fail(WrapExitError(ExitCommandError, "failed to read runs", err))
		}
		return f.Success(RunList(runs))
	}

	events, err := st.Events(ctx, opts.Run)
	if err != nil {
		return f.Fail(WrapExitError(ExitCommandError, "failed to read events", err))
	}
	return f.Success(EventList(events))
}
