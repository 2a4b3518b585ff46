package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AshkanYarmoradi/go-snapmink/adapters"
	"github.com/AshkanYarmoradi/go-snapmink/cli/styles"
)

// initializer is implemented by snapshot backends that need schema setup.
type initializer interface {
	Initialize(ctx context.Context) error
}

func newMigrateCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the event and snapshot storage",
		Long: `Create the tables the configured backends need. Safe to run repeatedly.

Badger and DynamoDB snapshot backends need no migration; the DynamoDB
table itself must already exist.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close(cmd.Context())

			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if err := s.backends.Events.Initialize(ctx); err != nil {
				return fmt.Errorf("initialize event store: %w", err)
			}
			fmt.Fprintln(out, styles.FormatSuccess("Event store ready ("+s.cfg.EventStore.Driver+")"))

			if init, ok := s.backends.Snapshots.(initializer); ok && !sameAdapter(s.backends.Events, s.backends.Snapshots) {
				if err := init.Initialize(ctx); err != nil {
					return fmt.Errorf("initialize snapshot store: %w", err)
				}
			}
			fmt.Fprintln(out, styles.FormatSuccess("Snapshot store ready ("+s.cfg.Snapshots.Backend+")"))
			return nil
		},
	}
}

func sameAdapter(events adapters.EventStoreAdapter, snapshots adapters.SnapshotAdapter) bool {
	other, ok := snapshots.(adapters.EventStoreAdapter)
	return ok && other == events
}
