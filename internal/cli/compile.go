package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/FilamentGames/rulescript/internal/builtin"
	"github.com/FilamentGames/rulescript/internal/compiler"
	"github.com/FilamentGames/rulescript/internal/ir"
	"github.com/FilamentGames/rulescript/internal/library"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// TableSummary describes a compiled table.
type TableSummary struct {
	Name     string        `json:"name"`
	Triggers []string      `json:"triggers"`
	Rules    []RuleSummary `json:"rules"`
}

// RuleSummary describes a compiled rule.
type RuleSummary struct {
	ID            string `json:"id"`
	Name          string `json:"name,omitempty"`
	Trigger       string `json:"trigger"`
	Group         string `json:"group,omitempty"`
	Enabled       bool   `json:"enabled"`
	OnlyOnce      bool   `json:"only_once,omitempty"`
	DontInterrupt bool   `json:"dont_interrupt,omitempty"`
	Conditions    int    `json:"conditions"`
	Actions       int    `json:"actions"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <rules>",
		Short: "Compile CUE rule tables",
		Long: `Compile the CUE rule tables of a package directory or a single file.

Every table under the top-level "table" field is compiled; all errors are
reported with their source positions.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the table summaries as JSON to this file")

	return cmd
}

func runCompile(opts *CompileOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	result, errs := loadTables(path, compiler.LoadModeCollectAll)
	if len(errs) > 0 {
		return outputLoadErrors(formatter, errs)
	}
	formatter.VerboseLog("Found %d CUE file(s) in %s", result.FileCount, path)

	lib, err := builtin.New()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build library", err)
	}

	summaries := make([]TableSummary, len(result.Tables))
	for i, t := range result.Tables {
		formatter.VerboseLog("Compiled table: %s", t.Name)
		summaries[i] = summarize(lib, t)
	}

	if opts.Output != "" {
		if err := writeSummaries(summaries, opts.Output); err != nil {
			return WrapExitError(ExitCommandError, "writing output file", err)
		}
	}

	if formatter.JSON() {
		return formatter.Success(summaries)
	}

	fmt.Fprintf(formatter.Writer, "✓ Compiled %d table(s)\n\n", len(summaries))
	for _, s := range summaries {
		fmt.Fprintf(formatter.Writer, "%s: %d rule(s), triggers %v\n", s.Name, len(s.Rules), s.Triggers)
		for _, r := range s.Rules {
			fmt.Fprintf(formatter.Writer, "  %s on %s: %d condition(s), %d action(s)%s\n",
				r.ID, r.Trigger, r.Conditions, r.Actions, ruleFlags(r))
		}
	}
	if opts.Output != "" {
		fmt.Fprintf(formatter.Writer, "\nWrote table summaries to %s\n", opts.Output)
	}
	return nil
}

// summarize describes t, naming triggers by key when lib knows them.
func summarize(lib *library.Library, t *ir.RuleTable) TableSummary {
	s := TableSummary{Name: t.Name, Rules: make([]RuleSummary, len(t.Rules))}
	for _, id := range t.UniqueTriggers {
		s.Triggers = append(s.Triggers, triggerKey(lib, id))
	}
	for i, r := range t.Rules {
		s.Rules[i] = RuleSummary{
			ID:            r.ID,
			Name:          r.Name,
			Trigger:       triggerKey(lib, r.Trigger),
			Group:         r.RoutineGroup,
			Enabled:       r.Enabled,
			OnlyOnce:      r.OnlyOnce,
			DontInterrupt: r.DontInterrupt,
			Conditions:    len(r.Conditions),
			Actions:       len(r.Actions),
		}
	}
	return s
}

func triggerKey(lib *library.Library, id ir.TriggerID) string {
	if info, ok := lib.FindTrigger(id); ok {
		return info.Key
	}
	return id.String()
}

func ruleFlags(r RuleSummary) string {
	var out string
	if !r.Enabled {
		out += " [disabled]"
	}
	if r.OnlyOnce {
		out += " [only once]"
	}
	if r.DontInterrupt {
		out += " [don't interrupt]"
	}
	if r.Group != "" {
		out += " [group " + r.Group + "]"
	}
	return out
}

func writeSummaries(summaries []TableSummary, filename string) error {
	data, err := json.MarshalIndent(summaries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling tables: %w", err)
	}
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}
	return nil
}
