package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/autoboard/internal/automation"
)

// RunsOptions holds flags for the runs command.
type RunsOptions struct {
	*RootOptions
	Limit int
	Since string
}

// NewRunsCommand creates the runs command.
func NewRunsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "runs <rule-id>",
		Short: "Show the run history of a rule",
		Long: `Show the run ledger of a rule, newest first.

With --since, every run at or after the given RFC3339 time is listed and
--limit is ignored.

Example:
  autoboard runs done-cleanup --limit 10
  autoboard runs due-reminder --since 2025-01-01T00:00:00Z --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRuns(opts, args[0], cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Limit, "limit", 50, "maximum number of runs to show")
	cmd.Flags().StringVar(&opts.Since, "since", "", "only runs at or after this RFC3339 time")

	return cmd
}

func runRuns(opts *RunsOptions, ruleID string, cmd *cobra.Command) error {
	var since time.Time
	if opts.Since != "" {
		t, err := time.Parse(time.RFC3339, opts.Since)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --since", err)
		}
		since = t
	}

	rt, err := opts.openRuntime()
	if err != nil {
		return err
	}
	defer rt.close()

	var entries []automation.RunLogEntry
	if since.IsZero() {
		entries, err = rt.store.ListRecentRuns(cmd.Context(), ruleID, opts.Limit)
	} else {
		entries, err = rt.store.QueryRunLog(cmd.Context(), ruleID, since)
	}
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read run log", err)
	}

	formatter := opts.formatter(cmd)
	if opts.Format == "json" {
		return formatter.Success(map[string]any{"rule": ruleID, "runs": entries})
	}

	if len(entries) == 0 {
		fmt.Fprintf(formatter.Writer, "No runs for %s.\n", ruleID)
		return nil
	}
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{e.CreatedAt.UTC().Format(time.RFC3339), string(e.Status), e.Payload, e.ErrorText})
	}
	return formatter.Table([]string{"time", "status", "payload", "error"}, rows)
}
