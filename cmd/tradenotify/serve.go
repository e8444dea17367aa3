package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/IBM/sarama"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/samims/tradenotify/internal/channel"
	appErr "github.com/samims/tradenotify/internal/errors"
	"github.com/samims/tradenotify/internal/handler"
	"github.com/samims/tradenotify/internal/jobs"
	"github.com/samims/tradenotify/internal/kafka"
	"github.com/samims/tradenotify/internal/metrics"
	"github.com/samims/tradenotify/internal/model"
	"github.com/samims/tradenotify/internal/router"
	"github.com/samims/tradenotify/internal/schedule"
	"github.com/samims/tradenotify/internal/service"
	"github.com/samims/tradenotify/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the delivery worker, the periodic jobs, the Kafka ingest and the admin HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()
		return serve(cmd.Context(), a)
	},
}

func serve(ctx context.Context, a *app) error {
	cfg, l := a.cfg, a.log
	metrics.Init()

	if err := storage.Migrate(ctx, a.db); err != nil {
		return err
	}

	users := storage.NewUserStorage(a.db)
	messages := storage.NewMessageStorage(a.db)
	queue := storage.NewQueueStorage(a.db)
	events := storage.NewEventStorage(a.db)
	broker := newBroker(a)
	probes := map[string]service.Probe{}

	// Kafka is optional: without brokers there is no realtime push and no remote ingest.
	var (
		pusher   channel.Pusher
		consumer *kafka.Consumer
	)
	if cfg.KafkaEnabled() {
		client, err := kafka.NewClient(cfg.KafkaCfg.Brokers, serviceName+"-"+cfg.WorkerCfg.ID)
		if err != nil {
			return err
		}
		defer client.Close()

		producer, err := sarama.NewSyncProducerFromClient(client)
		if err != nil {
			return fmt.Errorf("create kafka producer: %w", err)
		}
		publisher := kafka.NewPublisher(producer, cfg.KafkaCfg.PushTopic, a.tracer, l)
		defer publisher.Close()
		pusher = publisher

		group, err := sarama.NewConsumerGroupFromClient(cfg.KafkaCfg.ConsumerGroup, client)
		if err != nil {
			return fmt.Errorf("create kafka consumer group: %w", err)
		}
		ingestor := service.NewIngestor(a.db, broker, l)
		consumer = kafka.NewConsumer(cfg.KafkaCfg.IngestTopic, group, ingestor, a.tracer, l)
		probes["kafka"] = kafka.Probe(client)
	}

	sender, err := emailSender(ctx, a)
	if err != nil {
		return err
	}
	dispatcher := channel.NewDispatcher(map[model.Channel]channel.Adapter{
		model.ChannelEmail:         channel.NewEmailAdapter(users, sender),
		model.ChannelInApp:         channel.NewInAppAdapter(messages, pusher),
		model.ChannelSystemMessage: channel.NewSystemMessageAdapter(a.db, messages),
	})

	w := cfg.WorkerCfg
	worker := service.NewDeliveryWorker(queue, users, dispatcher,
		service.NewBackoff(w.BackoffBase, w.BackoffMax, w.BackoffJitter), a.tracer,
		service.WorkerConfig{
			Owner:          w.ID,
			BatchSize:      w.BatchSize,
			Concurrency:    w.Concurrency,
			AttemptTimeout: w.AttemptTimeout,
			Lease:          w.Lease,
		}, l)
	audit := service.NewAuditService(events, queue, l)

	tasks := []schedule.Task{
		{Name: "deliver", Interval: w.Interval, Run: func(ctx context.Context) error {
			_, err := worker.RunOnce(ctx)
			return err
		}},
		{Name: "queue_stats", Interval: w.StatsInterval, Run: audit.RefreshQueueGauges},
	}
	runner := jobs.NewRunner(storage.NewLocker(a.db), l)
	finance := storage.NewFinanceStorage(a.db)
	if cfg.JobsCfg.CreditExpiryEnabled {
		tasks = append(tasks, jobTask(runner, jobs.NewCreditExpiry(finance, l), cfg.JobsCfg.CreditExpiryInterval, l))
	}
	if cfg.JobsCfg.ScoreRecoveryEnabled {
		tasks = append(tasks, jobTask(runner, jobs.NewScoreRecovery(finance, l), cfg.JobsCfg.ScoreRecoveryInterval, l))
	}
	scheduler := schedule.NewScheduler(cfg.AppCfg.ShutdownGrace, l, tasks...)

	healthSvc := service.NewHealthService(storage.NewHealthCheckStorage(a.db), probes, l)
	server := &http.Server{
		Addr:              ":" + cfg.AppCfg.Port,
		Handler:           router.NewRouter(handler.NewAuditHandler(audit, l), handler.NewHealthHandler(healthSvc, l)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return scheduler.Start(gctx)
	})
	if consumer != nil {
		g.Go(func() error {
			return consumer.Start(gctx)
		})
	}
	g.Go(func() error {
		l.Info("Server started", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		l.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.AppCfg.ShutdownGrace)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		l.Error("Shutdown with error", slog.Any("error", err))
		return err
	}
	l.Info("Server exited cleanly")
	return nil
}

func emailSender(ctx context.Context, a *app) (channel.EmailSender, error) {
	if a.cfg.EmailCfg.Driver == "ses" {
		return channel.NewSESSender(ctx, a.cfg.EmailCfg.From, a.tracer)
	}
	return channel.NewLogSender(a.log), nil
}

// jobTask runs job through the single-flight runner; a run skipped because another holds the lock is not a failure.
func jobTask(runner *jobs.Runner, job jobs.Job, interval time.Duration, l *slog.Logger) schedule.Task {
	return schedule.Task{
		Name:     job.Name(),
		Interval: interval,
		Run: func(ctx context.Context) error {
			_, err := runner.Run(ctx, job)
			if errors.Is(err, appErr.ErrJobBusy) {
				l.InfoContext(ctx, "Skipping job run, lock held", slog.String("job", job.Name()))
				return nil
			}
			return err
		},
	}
}
