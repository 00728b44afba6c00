package cli

import (
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the memory schema and exit",
	RunE:  runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	// Opening the store applies every pending migration.
	_, closeStore, err := openStore(cmd.Context(), logger)
	if err != nil {
		return err
	}
	closeStore()

	logger.Info("schema is up to date")
	return nil
}
