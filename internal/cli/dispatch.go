package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/autoboard/internal/automation"
)

// DispatchOptions holds flags for the dispatch command.
type DispatchOptions struct {
	*RootOptions
	Board    string
	Card     string
	List     string
	FromList string
	ToList   string
	Actor    string
	Extra    string
}

// NewDispatchCommand creates the dispatch command.
func NewDispatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DispatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "dispatch <event-type>",
		Short: "Dispatch one board event to the engine",
		Long: `Dispatch one board event against the database and run every
matching rule. Each run is appended to the run log.

Example:
  autoboard dispatch card.moved --board b1 --card c1 --from-list todo --to-list done
  autoboard dispatch label.added --board b1 --card c1 --extra '{"label_id":"urgent"}'`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDispatch(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Board, "board", "", "board id (required)")
	_ = cmd.MarkFlagRequired("board")
	cmd.Flags().StringVar(&opts.Card, "card", "", "card id (required)")
	_ = cmd.MarkFlagRequired("card")
	cmd.Flags().StringVar(&opts.List, "list", "", "list the card is in")
	cmd.Flags().StringVar(&opts.FromList, "from-list", "", "source list of a move")
	cmd.Flags().StringVar(&opts.ToList, "to-list", "", "target list of a move")
	cmd.Flags().StringVar(&opts.Actor, "actor", "", "member who caused the event")
	cmd.Flags().StringVar(&opts.Extra, "extra", "", "extra event fields as a JSON object")
	cmd.Flags().Duration("action-timeout", 10*time.Second, "per-action timeout")
	cmd.Flags().Duration("rule-cache-ttl", 0, "cache board rules for this long")

	return cmd
}

// buildEvent validates the event type and assembles the event.
func (o *DispatchOptions) buildEvent(eventType string) (automation.Event, error) {
	kind, err := automation.ParseEventKind(eventType)
	if err != nil {
		return automation.Event{}, NewExitError(ExitCommandError, err.Error())
	}

	var opts []automation.EventOption
	if o.List != "" {
		opts = append(opts, automation.WithList(o.List))
	}
	if o.FromList != "" || o.ToList != "" {
		opts = append(opts, automation.WithMove(o.FromList, o.ToList))
	}
	if o.Actor != "" {
		opts = append(opts, automation.WithActor(o.Actor))
	}
	if o.Extra != "" {
		var extra map[string]any
		if err := json.Unmarshal([]byte(o.Extra), &extra); err != nil {
			return automation.Event{}, WrapExitError(ExitCommandError, "invalid --extra JSON", err)
		}
		for k, v := range extra {
			opts = append(opts, automation.WithExtra(k, v))
		}
	}
	return automation.NewEvent(kind, o.Board, o.Card, opts...), nil
}

func runDispatch(opts *DispatchOptions, eventType string, cmd *cobra.Command) error {
	ev, err := opts.buildEvent(eventType)
	if err != nil {
		return err
	}

	rt, err := opts.openRuntime()
	if err != nil {
		return err
	}
	defer rt.close()

	result, err := rt.engine.Dispatch(cmd.Context(), ev)
	if err != nil {
		return WrapExitError(ExitFailure, "dispatch failed", err)
	}

	formatter := opts.formatter(cmd)
	if opts.Format == "json" {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "%s on card %s: %d rule(s) triggered\n", ev.Kind(), ev.CardID(), result.Triggered)
	return nil
}
