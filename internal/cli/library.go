package cli

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/FilamentGames/rulescript/internal/builtin"
	"github.com/FilamentGames/rulescript/internal/ir"
	"github.com/FilamentGames/rulescript/internal/library"
)

// LibraryOptions holds flags for the library command.
type LibraryOptions struct {
	*RootOptions
	Kind string
}

var descriptorKinds = []string{"trigger", "query", "action", "component"}

// Descriptor describes one library entry.
type Descriptor struct {
	Kind    string   `json:"kind"`
	Key     string   `json:"key"`
	Name    string   `json:"name,omitempty"`
	Owner   string   `json:"owner"`
	Params  []string `json:"params,omitempty"`
	Returns string   `json:"returns,omitempty"`
}

// NewLibraryCommand creates the library command.
func NewLibraryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LibraryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "library",
		Short: "List the triggers, queries, actions and components rules can use",
		Args:  cobra.NoArgs,
		// Usage is printed for a bad --kind.
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLibrary(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Kind, "kind", "", "only list one kind (trigger|query|action|component)")

	return cmd
}

func runLibrary(opts *LibraryOptions, cmd *cobra.Command) error {
	if opts.Kind != "" && !slices.Contains(descriptorKinds, opts.Kind) {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid kind %q: must be one of %v", opts.Kind, descriptorKinds))
	}
	formatter := newFormatter(opts.RootOptions, cmd)

	lib, err := builtin.New()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build library", err)
	}

	descs := describeLibrary(lib, opts.Kind)
	if formatter.JSON() {
		return formatter.Success(descs)
	}

	for _, d := range descs {
		line := fmt.Sprintf("%-9s %-14s owner=%s", d.Kind, d.Key, d.Owner)
		if len(d.Params) > 0 {
			line += " params=" + strings.Join(d.Params, ",")
		}
		if d.Returns != "" {
			line += " returns=" + d.Returns
		}
		fmt.Fprintln(formatter.Writer, line)
	}
	return nil
}

// describeLibrary lists lib's entries of kind, or all of them when kind
// is empty, in trigger, query, action, component order.
func describeLibrary(lib *library.Library, kind string) []Descriptor {
	var out []Descriptor
	all := library.Filter{Scope: library.ScopeAll()}

	if kind == "" || kind == "trigger" {
		for _, t := range lib.Triggers(all) {
			out = append(out, Descriptor{Kind: "trigger", Key: t.Key, Name: t.Name, Owner: ownerName(t.Owner), Params: params(t.Params)})
		}
	}
	if kind == "" || kind == "query" {
		for _, q := range lib.Queries(all) {
			out = append(out, Descriptor{Kind: "query", Key: q.Key, Name: q.Name, Owner: ownerName(q.Owner), Params: params(q.Params), Returns: q.Returns.String()})
		}
	}
	if kind == "" || kind == "action" {
		for _, a := range lib.Actions(all) {
			d := Descriptor{Kind: "action", Key: a.Key, Name: a.Name, Owner: ownerName(a.Owner), Params: params(a.Params)}
			if a.Returns != ir.KindNull {
				d.Returns = a.Returns.String()
			}
			out = append(out, d)
		}
	}
	if kind == "" || kind == "component" {
		for _, c := range lib.Components() {
			d := Descriptor{Kind: "component", Key: c.Type, Name: c.Name, Owner: "entity"}
			for _, f := range c.Fields {
				d.Params = append(d.Params, f.Name+":"+f.Kind.String())
			}
			out = append(out, d)
		}
	}
	return out
}

func ownerName(o library.Owner) string {
	switch {
	case o.IsGlobal():
		return "global"
	case o.IsAny():
		return "any"
	case o.IsComponent():
		return "component:" + o.Type
	default:
		return "type:" + o.Type
	}
}

func params(ps []library.ParameterInfo) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.Name + ":" + p.Kind.String()
	}
	return out
}
