package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/FilamentGames/rulescript/internal/config"
	"github.com/FilamentGames/rulescript/internal/ir"
	"github.com/FilamentGames/rulescript/internal/store"
)

// SnapshotOptions holds flags shared by the snapshot subcommands.
type SnapshotOptions struct {
	*RootOptions
	Database string
}

// SnapshotDetail is the JSON payload of snapshot show.
type SnapshotDetail struct {
	Name     string           `json:"name"`
	Seq      int64            `json:"seq"`
	Frame    int64            `json:"frame"`
	Entities []map[string]any `json:"entities"`
}

// NewSnapshotCommand creates the snapshot command group.
func NewSnapshotCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SnapshotOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Inspect and delete stored world snapshots",
	}
	cmd.PersistentFlags().StringVar(&opts.Database, "db", config.DefaultStorePath, "path to the snapshot database")

	cmd.AddCommand(&cobra.Command{
		Use:           "list",
		Short:         "List snapshots in save order",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSnapshotList(opts, cmd)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:           "show <name>",
		Short:         "Print the entities of a snapshot",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSnapshotShow(opts, args[0], cmd)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:           "delete <name>",
		Short:         "Delete a snapshot",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSnapshotDelete(opts, args[0], cmd)
		},
	})

	return cmd
}

// openExisting opens the database at path without creating it.
func openExisting(path string) (*store.Store, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("database not found: %s", path))
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

func runSnapshotList(opts *SnapshotOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	st, err := openExisting(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	infos, err := st.ListSnapshots(cmd.Context())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list snapshots", err)
	}

	if formatter.JSON() {
		if infos == nil {
			infos = []store.SnapshotInfo{}
		}
		return formatter.Success(infos)
	}
	if len(infos) == 0 {
		fmt.Fprintln(formatter.Writer, "No snapshots.")
		return nil
	}
	for _, info := range infos {
		fmt.Fprintf(formatter.Writer, "%-20s seq=%d frame=%d entities=%d\n", info.Name, info.Seq, info.Frame, info.Entities)
	}
	return nil
}

func runSnapshotShow(opts *SnapshotOptions, name string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	st, err := openExisting(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	snap, err := st.LoadSnapshot(cmd.Context(), name)
	if errors.Is(err, store.ErrNotFound) {
		_ = formatter.Error("E005", fmt.Sprintf("snapshot %q not found", name), nil)
		return NewExitError(ExitFailure, fmt.Sprintf("snapshot %q not found", name))
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load snapshot", err)
	}

	detail := SnapshotDetail{
		Name:     snap.Name,
		Seq:      snap.Seq,
		Frame:    snap.Frame,
		Entities: make([]map[string]any, len(snap.Entities)),
	}
	for i, e := range snap.Entities {
		detail.Entities[i] = ir.SnapshotToAny(e)
	}

	if formatter.JSON() {
		return formatter.Success(detail)
	}

	fmt.Fprintf(formatter.Writer, "%s (seq %d, frame %d)\n", snap.Name, snap.Seq, snap.Frame)
	for _, e := range snap.Entities {
		fmt.Fprintf(formatter.Writer, "  %s rules=%d components=%d\n", e.Entity, len(e.Rules), len(e.Components))
	}
	return nil
}

func runSnapshotDelete(opts *SnapshotOptions, name string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	st, err := openExisting(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	deleted, err := st.DeleteSnapshot(cmd.Context(), name)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to delete snapshot", err)
	}
	if !deleted {
		_ = formatter.Error("E005", fmt.Sprintf("snapshot %q not found", name), nil)
		return NewExitError(ExitFailure, fmt.Sprintf("snapshot %q not found", name))
	}

	if formatter.JSON() {
		return formatter.Success(map[string]string{"deleted": name})
	}
	fmt.Fprintf(formatter.Writer, "Deleted snapshot %s\n", name)
	return nil
}
