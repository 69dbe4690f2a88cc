package cli

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/autoboard/internal/automation"
	"github.com/roach88/autoboard/internal/rulebook"
	"github.com/roach88/autoboard/internal/store"
)

// RuleValidationError is one problem found in a rulebook.
type RuleValidationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool                  `json:"valid"`
	Rules  int                   `json:"rules"`
	Errors []RuleValidationError `json:"errors,omitempty"`
}

// NewRulesCommand creates the rules command group.
func NewRulesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage automation rules",
	}

	cmd.AddCommand(newRulesValidateCommand(rootOpts))
	cmd.AddCommand(newRulesImportCommand(rootOpts))
	cmd.AddCommand(newRulesListCommand(rootOpts))
	cmd.AddCommand(newRulesToggleCommand(rootOpts, "enable", true))
	cmd.AddCommand(newRulesToggleCommand(rootOpts, "disable", false))

	return cmd
}

func newRulesValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <rules-dir>",
		Short: "Check CUE rule files without touching the database",
		Long: `Validate every rule.<id> in the CUE files of a directory against the
rule schema. All problems are reported, not just the first.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRulesValidate(rootOpts, args[0], cmd)
		},
	}
}

func runRulesValidate(opts *RootOptions, dir string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	result, errs := rulebook.Load(dir, rulebook.LoadModeCollectAll)
	if result == nil && len(errs) > 0 {
		return outputLoadError(formatter, errs[0])
	}
	formatter.VerboseLog("Found %d CUE file(s) in %s", result.FileCount, dir)

	if len(errs) > 0 {
		return outputValidationErrors(formatter, len(result.Rules), toValidationErrors(errs))
	}

	if opts.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Rules: len(result.Rules)})
	}
	fmt.Fprintf(formatter.Writer, "✓ %d rule(s) valid\n", len(result.Rules))
	return nil
}

func toValidationErrors(errs []error) []RuleValidationError {
	out := make([]RuleValidationError, 0, len(errs))
	for _, err := range errs {
		var le *rulebook.LoadError
		if !errors.As(err, &le) {
			out = append(out, RuleValidationError{Code: rulebook.ErrCodeGeneric, Message: err.Error()})
			continue
		}
		ve := RuleValidationError{Code: le.Code, Message: le.Message}
		if le.Pos.IsValid() {
			ve.File = le.Pos.Filename()
			ve.Line = le.Pos.Line()
		}
		out = append(out, ve)
	}
	return out
}

// outputLoadError reports a rulebook that could not be read at all.
func outputLoadError(formatter *OutputFormatter, err error) error {
	code, message := rulebook.ErrCodeGeneric, err.Error()
	var le *rulebook.LoadError
	if errors.As(err, &le) {
		code, message = le.Code, le.Message
	}
	_ = formatter.Error(code, message, nil)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors reports every rulebook problem and fails the command.
func outputValidationErrors(formatter *OutputFormatter, valid int, errs []RuleValidationError) error {
	message := fmt.Sprintf("validation failed with %d error(s)", len(errs))
	if formatter.Format == "json" {
		return formatter.Fail(errs[0].Code, message,
			ValidationResult{Valid: false, Rules: valid, Errors: errs})
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, e := range errs {
		if e.Line > 0 {
			fmt.Fprintf(formatter.Writer, "%s:%d\n", e.File, e.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", e.Code, e.Message)
	}
	return NewExitError(ExitFailure, message)
}

// RulesImportOptions holds flags for rules import.
type RulesImportOptions struct {
	*RootOptions
	DryRun bool
}

func newRulesImportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RulesImportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "import <rules-dir>",
		Short: "Compile CUE rule files and upsert them into the database",
		Long: `Compile the rules in a directory of CUE files and save them.

Existing rules with the same id are replaced; their creation time is kept.
Nothing is written unless every rule compiles.

Example:
  autoboard rules import ./rules --db ./board.db
  autoboard rules import ./rules --dry-run`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRulesImport(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "compile only, do not save")

	return cmd
}

func runRulesImport(opts *RulesImportOptions, dir string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	result, errs := rulebook.Load(dir, rulebook.LoadModeCollectAll)
	if result == nil && len(errs) > 0 {
		return outputLoadError(formatter, errs[0])
	}
	if len(errs) > 0 {
		return outputValidationErrors(formatter, len(result.Rules), toValidationErrors(errs))
	}

	saved := 0
	if !opts.DryRun {
		rt, err := opts.openRuntime()
		if err != nil {
			return err
		}
		defer rt.close()

		saved, err = rulebook.Import(cmd.Context(), rt.store, result.Rules)
		if err != nil {
			return WrapExitError(ExitFailure, "import failed", err)
		}
	}

	if opts.Format == "json" {
		return formatter.Success(map[string]any{
			"compiled": len(result.Rules),
			"saved":    saved,
			"dry_run":  opts.DryRun,
		})
	}
	for _, r := range result.Rules {
		formatter.VerboseLog("  %s (%s, board %s)", r.ID, r.TriggerType, r.BoardID)
	}
	if opts.DryRun {
		fmt.Fprintf(formatter.Writer, "✓ %d rule(s) compiled (dry run)\n", len(result.Rules))
		return nil
	}
	fmt.Fprintf(formatter.Writer, "✓ %d rule(s) imported\n", saved)
	return nil
}

// RulesListOptions holds flags for rules list.
type RulesListOptions struct {
	*RootOptions
	Board       string
	EnabledOnly bool
}

func newRulesListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RulesListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "list",
		Short:         "List stored rules",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRulesList(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Board, "board", "", "only rules of this board")
	cmd.Flags().BoolVar(&opts.EnabledOnly, "enabled", false, "only enabled rules")

	return cmd
}

func runRulesList(opts *RulesListOptions, cmd *cobra.Command) error {
	rt, err := opts.openRuntime()
	if err != nil {
		return err
	}
	defer rt.close()

	rules, err := rt.store.ListRules(cmd.Context(), store.RuleFilter{
		BoardID:     opts.Board,
		EnabledOnly: opts.EnabledOnly,
	})
	if err != nil {
		return WrapExitError(ExitFailure, "failed to list rules", err)
	}

	formatter := opts.formatter(cmd)
	if opts.Format == "json" {
		views := make([]automation.RuleView, 0, len(rules))
		for _, r := range rules {
			v, err := r.View()
			if err != nil {
				return WrapExitError(ExitFailure, "failed to render rule "+r.ID, err)
			}
			views = append(views, v)
		}
		return formatter.Success(map[string]any{"rules": views})
	}

	if len(rules) == 0 {
		fmt.Fprintln(formatter.Writer, "No rules found.")
		return nil
	}
	rows := make([][]string, 0, len(rules))
	for _, r := range rules {
		trigger := string(r.TriggerType) + ":<invalid>"
		if r.Trigger != nil {
			trigger = string(r.TriggerType) + ":" + string(r.Trigger.Event())
		}
		rows = append(rows, []string{r.ID, r.BoardID, trigger, strconv.FormatBool(r.Enabled), r.Name})
	}
	return formatter.Table([]string{"id", "board", "trigger", "enabled", "name"}, rows)
}

func newRulesToggleCommand(rootOpts *RootOptions, verb string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:           verb + " <rule-id>",
		Short:         fmt.Sprintf("%s a rule", verb),
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := rootOpts.openRuntime()
			if err != nil {
				return err
			}
			defer rt.close()

			ruleID := args[0]
			if err := rt.engine.SetRuleEnabled(cmd.Context(), ruleID, enabled); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return WrapExitError(ExitCommandError, "rule not found", err)
				}
				return WrapExitError(ExitFailure, "failed to update rule", err)
			}

			formatter := rootOpts.formatter(cmd)
			if rootOpts.Format == "json" {
				return formatter.Success(map[string]any{"id": ruleID, "enabled": enabled})
			}
			fmt.Fprintf(formatter.Writer, "✓ rule %s %sd\n", ruleID, verb)
			return nil
		},
	}
}
