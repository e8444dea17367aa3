package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/samims/tradenotify/internal/service"
	"github.com/samims/tradenotify/internal/storage"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect and maintain the notification queue",
}

var queueStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print row counts by status, the oldest pending row and the last error",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		stats, err := auditService(a).QueueStats(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), stats)
	},
}

var queuePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete sent, suppressed and dead-lettered rows older than --older-than",
	RunE: func(cmd *cobra.Command, args []string) error {
		olderThan, _ := cmd.Flags().GetDuration("older-than")

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		deleted, err := auditService(a).PurgeTerminal(cmd.Context(), olderThan)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), map[string]int64{"deleted": deleted})
	},
}

func init() {
	queuePurgeCmd.Flags().Duration("older-than", 30*24*time.Hour, "Minimum age of the rows to delete")
	queueCmd.AddCommand(queueStatsCmd)
	queueCmd.AddCommand(queuePurgeCmd)
}

func auditService(a *app) service.AuditService {
	return service.NewAuditService(storage.NewEventStorage(a.db), storage.NewQueueStorage(a.db), a.log)
}
