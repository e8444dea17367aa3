package main

import (
	"github.com/spf13/cobra"

	"github.com/samims/tradenotify/internal/storage"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the event log, notification queue and in-app tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		if err := storage.Migrate(cmd.Context(), a.db); err != nil {
			return err
		}
		a.log.Info("Schema is up to date")
		return nil
	},
}
