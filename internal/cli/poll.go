package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// NewPollCommand creates the poll command.
func NewPollCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Run one due-date poll tick",
		Long: `Run the due-date poller once against the database. Useful from
cron when the service is not running.

Example:
  autoboard poll --db ./board.db
  autoboard poll --dedup-window 6h --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPoll(rootOpts, cmd)
		},
	}

	cmd.Flags().Duration("dedup-window", 12*time.Hour, "lookback for due-rule dedup")
	cmd.Flags().Duration("action-timeout", 10*time.Second, "per-action timeout")
	cmd.Flags().String("redis-addr", "", "redis address(es) for a shared poll lease")
	cmd.Flags().String("redis-namespace", "autoboard", "redis key namespace")

	return cmd
}

func runPoll(opts *RootOptions, cmd *cobra.Command) error {
	rt, err := opts.openRuntime()
	if err != nil {
		return err
	}
	defer rt.close()

	result, err := rt.engine.PollDue(cmd.Context())
	if err != nil {
		return WrapExitError(ExitFailure, "poll failed", err)
	}

	formatter := opts.formatter(cmd)
	if opts.Format == "json" {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "poll: %d triggered, %d skipped, %d failed\n",
		result.Triggered, result.Skipped, result.Failed)
	return nil
}
