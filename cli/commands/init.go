package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AshkanYarmoradi/go-snapmink/cli/config"
	"github.com/AshkanYarmoradi/go-snapmink/cli/styles"
)

// NewInitCommand creates the init command
func NewInitCommand() *cobra.Command {
	var (
		driver    string
		backend   string
		threshold int
		force     bool
	)

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Write a snapmink.yaml",
		Long: `Write a commented snapmink.yaml configuration file.

Examples:
  snapmink init                                  # Postgres events and snapshots
  snapmink init --snapshots badger               # Snapshots in an embedded Badger store
  snapmink init ops --snapshots dynamodb --threshold 50`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			absDir, err := filepath.Abs(dir)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if config.Exists(absDir) && !force {
				fmt.Fprintln(out, styles.FormatWarning(config.ConfigFileName+" already exists (use --force to overwrite)"))
				return nil
			}

			cfg := config.DefaultConfig()
			cfg.EventStore.Driver = driver
			cfg.Snapshots.Backend = backend
			cfg.Snapshots.Threshold = threshold
			if driver == "postgres" {
				cfg.EventStore.URL = "${DATABASE_URL}"
			}
			switch backend {
			case "badger":
				cfg.Snapshots.BadgerPath = "./data/snapshots"
			case "dynamodb":
				cfg.Snapshots.DynamoDBTable = "snapshots"
			}

			if problems := cfg.Validate(); len(problems) > 0 {
				return fmt.Errorf("invalid options: %s", strings.Join(problems, "; "))
			}

			if err := os.MkdirAll(absDir, 0755); err != nil {
				return err
			}
			path := filepath.Join(absDir, config.ConfigFileName)
			if err := os.WriteFile(path, []byte(config.GenerateYAML(cfg)), 0644); err != nil {
				return err
			}

			fmt.Fprintln(out, styles.FormatSuccess("Created "+path))
			fmt.Fprintln(out, styles.FormatStep(1, 2, "Review the settings, then run "+styles.Code.Render("snapmink migrate")))
			fmt.Fprintln(out, styles.FormatStep(2, 2, "Check the setup with "+styles.Code.Render("snapmink diagnose")))
			return nil
		},
	}

	cmd.Flags().StringVar(&driver, "driver", "postgres", "Event store driver (postgres, memory)")
	cmd.Flags().StringVar(&backend, "snapshots", "postgres", "Snapshot backend (postgres, badger, dynamodb, memory)")
	cmd.Flags().IntVar(&threshold, "threshold", 100, "Snapshot every N events")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	return cmd
}
