package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/agrimart/backoffice/cmd/backoffice/cli"
	"github.com/agrimart/backoffice/internal/accounts"
	"github.com/agrimart/backoffice/internal/app"
	"github.com/agrimart/backoffice/internal/audit"
	audithttp "github.com/agrimart/backoffice/internal/audit/http"
	"github.com/agrimart/backoffice/internal/auth"
	"github.com/agrimart/backoffice/internal/governance"
	governancehttp "github.com/agrimart/backoffice/internal/governance/http"
	"github.com/agrimart/backoffice/internal/observability"
	"github.com/agrimart/backoffice/internal/platform/cache"
	"github.com/agrimart/backoffice/internal/platform/db"
	"github.com/agrimart/backoffice/internal/rbac"
	"github.com/agrimart/backoffice/internal/roles"
	"github.com/agrimart/backoffice/internal/shared"
	"github.com/agrimart/backoffice/internal/store"
	"github.com/agrimart/backoffice/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	if len(os.Args) > 1 && os.Args[1] == "jobs" {
		os.Exit(runJobs(ctx, cfg, os.Args[2:]))
	}

	logger := app.NewLogger(cfg)
	if err := run(ctx, stop, cfg, logger); err != nil {
		logger.Error("backoffice", slog.Any("error", err))
		os.Exit(1)
	}
}

func runJobs(ctx context.Context, cfg *app.Config, args []string) int {
	jobsCLI, err := cli.NewJobsCLI(cfg.RedisAddr)
	if err != nil {
		slog.Default().Error("jobs cli", slog.Any("error", err))
		return 1
	}
	defer func() { _ = jobsCLI.Close() }()
	return jobsCLI.JobsCommand(ctx, args, cli.JobsOptions{})
}

func run(ctx context.Context, stop context.CancelFunc, cfg *app.Config, logger *slog.Logger) error {
	dbpool, err := db.New(ctx, cfg.PGDSN, db.Options{ConnectTimeout: cfg.RemoteTimeout})
	if err != nil {
		return err
	}
	defer dbpool.Close()

	if cfg.RunMigrations {
		if err := db.Migrate(ctx, dbpool, logger); err != nil {
			return err
		}
	}

	redisConn := cache.Options{Addr: cfg.RedisAddr, Timeout: cfg.RemoteTimeout}
	redisClient, err := cache.New(ctx, redisConn)
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "backoffice_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	metrics := observability.NewMetrics()

	auditRepo := audit.NewPGRepository(dbpool, cfg.RemoteTimeout)
	trail := audit.NewTrail(audit.TrailConfig{
		Window:   cfg.AuditWindow,
		Sink:     auditRepo,
		Observer: metrics,
		Logger:   logger,
	})

	redisOpts := redisConn.QueueOpt()
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		return err
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	roleRegistry := roles.NewRegistry(roles.Config{
		Table:  store.NewPGTable(dbpool, store.RoleSchema(), cfg.RemoteTimeout),
		Trail:  trail,
		Logger: logger,
	})
	accountRegistry := accounts.NewRegistry(accounts.Config{
		Table:    store.NewPGTable(dbpool, store.AccountSchema(), cfg.RemoteTimeout),
		Roles:    roleRegistry,
		Trail:    trail,
		Notifier: jobClient,
		Logger:   logger,
	})
	facade := governance.New(governance.Config{
		Roles:    roleRegistry,
		Accounts: accountRegistry,
		Trail:    trail,
		History:  auditRepo,
		Window:   cfg.AuditWindow,
		Logger:   logger,
	})
	if err := facade.Refresh(ctx); err != nil {
		logger.Warn("governance refresh", slog.Any("error", err))
	}

	authService := auth.NewService(auth.NewRepository(dbpool))
	if err := bootstrapAdmin(ctx, facade, authService, cfg.BootstrapAdminEmail, cfg.BootstrapAdminPassword, logger); err != nil {
		logger.Error("bootstrap admin", slog.Any("error", err))
	}

	rbacMiddleware := rbac.Middleware{Resolver: facade, Logger: logger}

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		SessionManager:     sessionManager,
		CSRFManager:        csrfManager,
		AuthHandler:        auth.NewHandler(logger, authService, sessionManager, csrfManager, facade),
		GovernanceHandler:  governancehttp.NewHandler(logger, facade),
		AuditHandler:       audithttp.NewHandler(logger, audit.NewService(auditRepo), facade),
		PermissionsHandler: rbac.NewPermissionsHandler(logger, rbacMiddleware),
		JobHandler:         jobs.NewHandler(inspector, logger),
		RBACMiddleware:     rbacMiddleware,
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
