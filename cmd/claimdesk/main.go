package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/claimdesk/claimdesk/internal/api"
	"github.com/claimdesk/claimdesk/internal/config"
	"github.com/claimdesk/claimdesk/internal/database"
	"github.com/claimdesk/claimdesk/internal/metrics"
	"github.com/claimdesk/claimdesk/internal/queue"
	"github.com/claimdesk/claimdesk/internal/repository"
	"github.com/claimdesk/claimdesk/internal/s3storage"
	"github.com/claimdesk/claimdesk/internal/service"
	"github.com/claimdesk/claimdesk/internal/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "claimdesk: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "claimdesk",
		Short:        "Vehicle damage claim intake service",
		SilenceUsage: true,
	}
	cmd.AddCommand(
		newServeCmd(),
		newWorkerCmd(),
	)
	return cmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the claim intake HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			logger, err := newLogger()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			sugar := logger.Sugar()

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			pool, err := database.Connect(ctx, cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("connect database: %w", err)
			}
			defer pool.Close()
			if err := database.EnsureSchema(ctx, pool); err != nil {
				return err
			}
			repo := repository.NewClaimRepository(pool)

			store, err := s3storage.New(cfg)
			if err != nil {
				return fmt.Errorf("init storage: %w", err)
			}
			if err := store.EnsureBucket(ctx); err != nil {
				return err
			}

			var enqueuer service.Enqueuer
			if cfg.RedisAddr != "" {
				qc := queue.NewClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
				defer qc.Close()
				enqueuer = qc
			} else {
				sugar.Warnw("no REDIS_ADDR configured, attachment text extraction stays pending")
			}

			limits := service.Limits{
				MaxUploadBytes: cfg.MaxUploadBytes(),
				UploadURLTTL:   cfg.UploadURLTTL,
				FileURLTTL:     cfg.FileURLTTL,
			}
			svc := service.New(repo, store, enqueuer, limits, sugar)
			srv := api.New(cfg, svc, sugar, metrics.New())
			return srv.Run(ctx)
		},
	}
}

func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the attachment text-extraction worker",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			logger, err := newLogger()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			sugar := logger.Sugar()

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cfg.RedisAddr == "" {
				return fmt.Errorf("REDIS_ADDR is required for the worker")
			}

			pool, err := database.Connect(ctx, cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("connect database: %w", err)
			}
			defer pool.Close()
			if err := database.EnsureSchema(ctx, pool); err != nil {
				return err
			}
			repo := repository.NewClaimRepository(pool)

			store, err := s3storage.New(cfg)
			if err != nil {
				return fmt.Errorf("init storage: %w", err)
			}
			if err := store.EnsureBucket(ctx); err != nil {
				return err
			}

			server := asynq.NewServer(asynq.RedisClientOpt{
				Addr:     cfg.RedisAddr,
				Password: cfg.RedisPassword,
				DB:       cfg.RedisDB,
			}, asynq.Config{
				Concurrency: cfg.WorkerConcurrency,
			})
			processor := worker.NewProcessor(repo, store, sugar)

			go func() {
				<-ctx.Done()
				server.Shutdown()
			}()

			sugar.Infow("worker started", "concurrency", cfg.WorkerConcurrency)
			return server.Run(processor.Handler())
		},
	}
}

func newLogger() (*zap.Logger, error) {
	logger, err := zap.NewProduction()
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return logger, nil
}
