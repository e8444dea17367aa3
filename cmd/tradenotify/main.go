package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/samims/tradenotify/internal/config"
	"github.com/samims/tradenotify/internal/logger"
	"github.com/samims/tradenotify/internal/storage"
	"github.com/samims/tradenotify/pkg/tracing"
)

// Version is set via ldflags during build.
var Version = "dev"

const serviceName = "tradenotify"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           serviceName,
	Short:         "Event log, notification queue and delivery worker for the trades marketplace",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(milestoneCmd)
}

// app holds what every subcommand needs: configuration, logging, tracing and the database.
type app struct {
	cfg             *config.Config
	log             *slog.Logger
	db              *sqlx.DB
	tracer          *tracing.Tracer
	shutdownTracing func(context.Context) error
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	l := logger.NewLogger(cfg.AppCfg.LogLevel).With("service", serviceName)
	slog.SetDefault(l)

	traceCfg := tracing.NewConfig()
	traceCfg.ServiceVersion = Version
	if err := traceCfg.Validate(); err != nil {
		return nil, err
	}
	shutdownTracing, err := tracing.SetupTracing(ctx, traceCfg, l)
	if err != nil {
		return nil, fmt.Errorf("setup tracing: %w", err)
	}

	db, err := storage.Connect(ctx, cfg.DBConfig)
	if err != nil {
		_ = shutdownTracing(ctx)
		return nil, err
	}

	return &app{
		cfg:             cfg,
		log:             l,
		db:              db,
		tracer:          tracing.NewTracer(tracing.GetTracer(serviceName)),
		shutdownTracing: shutdownTracing,
	}, nil
}

func (a *app) close() {
	if err := a.db.Close(); err != nil {
		a.log.Warn("Failed to close database", slog.Any("error", err))
	}
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.AppCfg.ShutdownGrace)
	defer cancel()
	if err := a.shutdownTracing(ctx); err != nil {
		a.log.Warn("Failed to flush traces", slog.Any("error", err))
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
