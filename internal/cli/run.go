package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/FilamentGames/rulescript/internal/harness"
)

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <scenario>...",
		Short: "Run YAML scenarios against their rule tables",
		Long: `Run scenario files through the rule engine and evaluate their
assertions. Directories are searched for .yaml and .yml files.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (missing paths)

Examples:
  rulescript run ./scenarios
  rulescript run ./scenarios/goblin_flees.yaml --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarios(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runScenarios(opts *RootOptions, args []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	var paths []string
	for _, arg := range args {
		found, err := harness.FindScenarios(arg)
		if err != nil {
			var notFound *harness.ScenarioNotFoundError
			if errors.As(err, &notFound) {
				return NewExitError(ExitCommandError, notFound.Error())
			}
			return WrapExitError(ExitCommandError, "failed to find scenarios", err)
		}
		paths = append(paths, found...)
	}

	if len(paths) == 0 {
		if formatter.JSON() {
			return formatter.Success(&harness.SuiteResult{})
		}
		fmt.Fprintln(formatter.Writer, "No scenarios found.")
		return nil
	}

	// Rule logs go to stderr only when verbose.
	logOut := io.Discard
	if opts.Verbose {
		logOut = cmd.ErrOrStderr()
	}
	logger := slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: slog.LevelDebug}))

	for _, p := range paths {
		formatter.VerboseLog("Running scenario: %s", p)
	}
	result := harness.RunSuite(paths, harness.WithLogger(logger))

	if formatter.JSON() {
		if result.Failed == 0 {
			return formatter.Success(result)
		}
		if err := formatter.Failure("S001", fmt.Sprintf("%d scenario(s) failed", result.Failed), result); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d scenario(s) failed", result.Failed, result.Total))
	}

	for _, f := range result.Failures {
		name := f.Scenario
		if name == "" {
			name = f.Path
		}
		fmt.Fprintf(formatter.Writer, "✗ %s (%s)\n", name, f.Path)
		for _, e := range f.Errors {
			fmt.Fprintf(formatter.Writer, "  %s\n", e)
		}
		fmt.Fprintln(formatter.Writer)
	}
	fmt.Fprintf(formatter.Writer, "%d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d scenario(s) failed", result.Failed, result.Total))
	}
	return nil
}
