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
	"golang.org/x/time/rate"

	"github.com/bookstore-admin/console/internal/app"
	"github.com/bookstore-admin/console/internal/auth"
	"github.com/bookstore-admin/console/internal/gateway"
	"github.com/bookstore-admin/console/internal/observability"
	"github.com/bookstore-admin/console/internal/platform/cache"
	"github.com/bookstore-admin/console/internal/platform/db"
	"github.com/bookstore-admin/console/internal/rbac"
	"github.com/bookstore-admin/console/internal/roles"
	"github.com/bookstore-admin/console/internal/shared"
	"github.com/bookstore-admin/console/internal/users"
	"github.com/bookstore-admin/console/internal/view"
	"github.com/bookstore-admin/console/jobs"
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

	logger := app.NewLogger(cfg)

	redisClient, err := cache.New(ctx, cfg.RedisOptions())
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	var audit shared.AuditRecorder = shared.SlogAuditRecorder{Logger: logger}
	if cfg.AuditPGDSN != "" {
		pool, err := db.New(ctx, cfg.AuditPGDSN, cfg.AuditDBOptions("web"))
		if err != nil {
			logger.Error("connect audit database", slog.Any("error", err))
			os.Exit(1)
		}
		defer pool.Close()
		audit = shared.NewAuditLogger(pool)
	}

	sessionManager := shared.NewSessionManager(redisClient, "console_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	formLocks := shared.NewFormLocks(redisClient, cfg.FormLockTTL)

	templates, err := view.NewEngine()
	if err != nil {
		logger.Error("parse templates", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := observability.NewMetrics()

	var limiter *rate.Limiter
	if cfg.APIRateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.APIRateLimit), int(cfg.APIRateLimit)+1)
	}
	api := gateway.NewClient(gateway.Options{
		BaseURL:  cfg.APIBaseURL,
		Timeout:  cfg.APITimeout,
		Limiter:  limiter,
		Logger:   logger,
		Observer: metrics,
	})

	redisOpts := cfg.AsynqRedis()
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		Templates:          templates,
		SessionManager:     sessionManager,
		CSRFManager:        csrfManager,
		API:                api,
		Revoker:            jobClient,
		Metrics:            metrics,
		AuthHandler:        auth.NewHandler(logger, templates, sessionManager, csrfManager, audit),
		DashboardHandler:   app.NewDashboardHandler(logger, templates, csrfManager),
		PermissionsHandler: rbac.NewPermissionsHandler(logger, templates, csrfManager),
		RolesHandler:       roles.NewHandler(logger, templates, csrfManager, formLocks, audit),
		UsersHandler:       users.NewHandler(logger, templates, csrfManager, formLocks, audit),
		JobHandler:         jobs.NewHandler(inspector, logger),
		AccessLog:          !cfg.IsProduction(),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("console listening", slog.String("addr", cfg.AppAddr), slog.String("api", cfg.APIBaseURL))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
