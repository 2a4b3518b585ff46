package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AshkanYarmoradi/go-snapmink/adapters"
	"github.com/AshkanYarmoradi/go-snapmink/cli/styles"
)

// streamLister is implemented by snapshot backends that can enumerate
// their contents, such as the Badger adapter.
type streamLister interface {
	StreamIDs(ctx context.Context) ([]string, error)
}

func newSnapshotCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Manage stored snapshots",
		Long: `Manage stored snapshots directly.

Snapshots are derived data: deleting one only makes the next load replay
the full stream.

Examples:
  snapmink snapshot delete Order-42
  snapmink snapshot list`,
	}

	cmd.AddCommand(newSnapshotDeleteCommand(a))
	cmd.AddCommand(newSnapshotListCommand(a))
	return cmd
}

func newSnapshotDeleteCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <stream-id>...",
		Short: "Delete snapshots",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close(cmd.Context())

			for _, streamID := range args {
				if err := s.backends.Snapshots.DeleteSnapshot(cmd.Context(), streamID); err != nil {
					return fmt.Errorf("delete snapshot %s: %w", streamID, err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), styles.FormatSuccess("Deleted snapshot "+streamID))
			}
			return nil
		},
	}
}

func newSnapshotListCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List streams that have a snapshot",
		Long:  "List streams that have a snapshot. Only the badger backend supports listing.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close(cmd.Context())

			lister, ok := findLister(s.backends.Snapshots)
			if !ok {
				return fmt.Errorf("snapshot backend %s does not support listing", s.cfg.Snapshots.Backend)
			}

			ids, err := lister.StreamIDs(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(ids) == 0 {
				fmt.Fprintln(out, styles.FormatInfo("No snapshots"))
				return nil
			}
			for _, id := range ids {
				fmt.Fprintln(out, styles.IconSnapshot+" "+id)
			}
			return nil
		},
	}
}

// findLister looks through decorators for a backend that can list.
func findLister(sa adapters.SnapshotAdapter) (streamLister, bool) {
	for sa != nil {
		if l, ok := sa.(streamLister); ok {
			return l, true
		}
		u, ok := sa.(interface{ Unwrap() adapters.SnapshotAdapter })
		if !ok {
			return nil, false
		}
		sa = u.Unwrap()
	}
	return nil, false
}
