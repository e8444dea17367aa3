package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/samims/tradenotify/internal/jobs"
	"github.com/samims/tradenotify/internal/storage"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Run the periodic finance jobs by hand",
}

var jobsRunCmd = &cobra.Command{
	Use:       "run <credit_expiry|score_recovery>",
	Short:     "Run one job once, under the same single-flight lock as the scheduler",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"credit_expiry", "score_recovery"},
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		job, err := financeJob(args[0], storage.NewFinanceStorage(a.db), a.log)
		if err != nil {
			return err
		}
		summary, err := jobs.NewRunner(storage.NewLocker(a.db), a.log).Run(cmd.Context(), job)
		if err != nil {
			return err
		}
		if err := printJSON(cmd.OutOrStdout(), map[string]any{
			"job": summary.Job, "applied": summary.Applied(), "skipped": summary.Skipped(), "failed": summary.Failed(),
		}); err != nil {
			return err
		}
		return summary.Err()
	},
}

func init() {
	jobsCmd.AddCommand(jobsRunCmd)
}

func financeJob(name string, store storage.FinanceStorage, l *slog.Logger) (jobs.Job, error) {
	switch name {
	case "credit_expiry":
		return jobs.NewCreditExpiry(store, l), nil
	case "score_recovery":
		return jobs.NewScoreRecovery(store, l), nil
	}
	return nil, fmt.Errorf("unknown job %q", name)
}
