package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/agrimart/backoffice/internal/app"
	jobmetrics "github.com/agrimart/backoffice/internal/jobs"
	"github.com/agrimart/backoffice/internal/platform/cache"
	"github.com/agrimart/backoffice/internal/platform/db"
	"github.com/agrimart/backoffice/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, db.Options{ConnectTimeout: cfg.RemoteTimeout})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	metrics := jobmetrics.NewMetrics(nil)

	var mailer jobs.Mailer = jobs.LogMailer{Logger: logger}
	if cfg.SMTPHost != "" {
		mailer = jobs.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom)
	}
	mailJob := jobs.NewMailJob(mailer, cfg.AppBaseURL, logger, metrics)
	purgeJob := jobs.NewSessionPurgeJob(pool, logger, metrics)

	handlers := append(mailJob.Handlers(), jobs.TaskHandler{Type: jobs.TaskTypePurgeSessions, Handler: purgeJob.Handle})

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: cache.Options{Addr: cfg.RedisAddr, Timeout: cfg.RemoteTimeout}.QueueOpt(),
		Logger:    logger,
		Handlers:  handlers,
		Cron: []jobs.CronRegistration{
			{Spec: "0 3 * * *", Task: jobs.NewPurgeSessionsTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
