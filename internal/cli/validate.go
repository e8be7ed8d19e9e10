package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/FilamentGames/rulescript/internal/builtin"
	"github.com/FilamentGames/rulescript/internal/compiler"
)

// codeValidationFailed is the JSON error code of a failed validation.
const codeValidationFailed = "V100"

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Type       string
	Components []string
	Registers  int
}

// ValidationResult is the JSON payload of the validate command.
type ValidationResult struct {
	Valid    bool               `json:"valid"`
	Errors   int                `json:"errors"`
	Warnings int                `json:"warnings"`
	Reports  []*compiler.Report `json:"reports"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <rules>",
		Short: "Validate rule tables against the method library",
		Long: `Compile rule tables and check every trigger, query and action
reference against the built-in library.

Tables are validated for an entity of --type carrying --components; an
empty type skips ownership checks. Warnings do not fail validation.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Type, "type", "", "entity type the tables are owned by")
	cmd.Flags().StringSliceVar(&opts.Components, "components", nil, "components the owning entity carries")
	cmd.Flags().IntVar(&opts.Registers, "registers", 0, "register bank size (0 uses the default)")

	return cmd
}

func runValidate(opts *ValidateOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	result, errs := loadTables(path, compiler.LoadModeCollectAll)
	if len(errs) > 0 {
		return outputLoadErrors(formatter, errs)
	}

	lib, err := builtin.New()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build library", err)
	}

	ctx := compiler.Context{Type: opts.Type, Components: opts.Components, Registers: opts.Registers}
	res := ValidationResult{Reports: make([]*compiler.Report, 0, len(result.Tables))}
	for _, t := range result.Tables {
		formatter.VerboseLog("Validating table: %s", t.Name)
		rep := compiler.ValidateTable(lib, t, ctx)
		res.Errors += rep.Errors
		res.Warnings += rep.Warnings
		res.Reports = append(res.Reports, rep)
	}
	res.Valid = res.Errors == 0

	if formatter.JSON() {
		if res.Valid {
			return formatter.Success(res)
		}
		if err := formatter.Failure(codeValidationFailed, fmt.Sprintf("%d error(s)", res.Errors), res); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", res.Errors))
	}

	for _, rep := range res.Reports {
		if rep.Errors == 0 && rep.Warnings == 0 && !opts.Verbose {
			continue
		}
		if err := rep.Format(formatter.Writer); err != nil {
			return err
		}
		fmt.Fprintln(formatter.Writer)
	}

	if !res.Valid {
		fmt.Fprintf(formatter.Writer, "✗ Validation failed: %d error(s), %d warning(s)\n", res.Errors, res.Warnings)
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", res.Errors))
	}
	fmt.Fprintf(formatter.Writer, "✓ %d table(s) valid, %d warning(s)\n", len(res.Reports), res.Warnings)
	return nil
}
