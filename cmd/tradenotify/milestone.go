package main

import (
	"github.com/spf13/cobra"

	"github.com/samims/tradenotify/internal/milestone"
	"github.com/samims/tradenotify/internal/model"
	"github.com/samims/tradenotify/internal/service"
	"github.com/samims/tradenotify/internal/storage"
)

var milestoneCmd = &cobra.Command{
	Use:   "milestone",
	Short: "Apply contract milestone changes",
}

var milestoneSetStatusCmd = &cobra.Command{
	Use:   "set-status <milestone-id> <completed|disputed>",
	Short: "Move a milestone to a new status and emit its event",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		actor, _ := cmd.Flags().GetString("actor")
		role, _ := cmd.Flags().GetString("role")
		reason, _ := cmd.Flags().GetString("reason")

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		broker := newBroker(a)
		svc := milestone.NewService(a.db, storage.NewContractStorage(a.db), broker, a.log)
		res, err := svc.UpdateStatus(cmd.Context(), milestone.UpdateRequest{
			MilestoneID: args[0],
			ActorID:     actor,
			ActorRole:   role,
			Status:      model.MilestoneStatus(args[1]),
			Reason:      reason,
		})
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"milestone_id": res.Milestone.ID,
			"status":       res.Milestone.Status,
			"event_id":     res.Event.ID,
			"degraded":     res.Degraded,
		})
	},
}

func init() {
	milestoneSetStatusCmd.Flags().String("actor", "", "Id of the user making the change")
	milestoneSetStatusCmd.Flags().String("role", model.RoleAdmin, "Role of the actor (customer, vendor, admin)")
	milestoneSetStatusCmd.Flags().String("reason", "", "Reason recorded with a dispute")
	_ = milestoneSetStatusCmd.MarkFlagRequired("actor")
	milestoneCmd.AddCommand(milestoneSetStatusCmd)
}

func newBroker(a *app) service.EventBroker {
	return service.NewEventBroker(
		storage.NewEventStorage(a.db),
		storage.NewQueueStorage(a.db),
		storage.NewMessageStorage(a.db),
		storage.NewUserStorage(a.db),
		a.tracer,
		service.BrokerConfig{MaxAttempts: a.cfg.WorkerCfg.MaxAttempts, BaseURL: a.cfg.AppCfg.BaseURL},
		a.log,
	)
}
