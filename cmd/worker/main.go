package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/bookstore-admin/console/internal/app"
	"github.com/bookstore-admin/console/internal/gateway"
	"github.com/bookstore-admin/console/internal/observability"
	"github.com/bookstore-admin/console/internal/platform/db"
	"github.com/bookstore-admin/console/internal/shared"
	"github.com/bookstore-admin/console/jobs"
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

	if len(os.Args) > 1 {
		if err := runCommand(ctx, cfg, os.Args[1:]); err != nil {
			logger.Error("jobs command", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	metrics := observability.NewMetrics()
	api := gateway.NewClient(gateway.Options{
		BaseURL:  cfg.APIBaseURL,
		Timeout:  cfg.APITimeout,
		Logger:   logger,
		Observer: metrics,
	})

	revokeJob := &jobs.RevokeTokenJob{API: api, Logger: logger, Observer: metrics}
	handlers := []jobs.TaskHandler{{Type: jobs.TaskTypeRevokeToken, Handler: revokeJob.Handle}}

	var cron []jobs.CronRegistration
	if cfg.AuditPGDSN != "" {
		pool, err := db.New(ctx, cfg.AuditPGDSN, cfg.AuditDBOptions("worker"))
		if err != nil {
			logger.Error("connect audit database", slog.Any("error", err))
			os.Exit(1)
		}
		defer pool.Close()

		pruneJob := jobs.NewAuditPruneJob(shared.NewAuditLogger(pool), logger, metrics)
		handlers = append(handlers, jobs.TaskHandler{Type: jobs.TaskTypeAuditPrune, Handler: pruneJob.Handle})

		task, err := jobs.NewAuditPruneTask(cfg.AuditRetentionDays)
		if err != nil {
			logger.Error("build audit prune task", slog.Any("error", err))
			os.Exit(1)
		}
		cron = append(cron, jobs.CronRegistration{
			Spec:    cfg.AuditPruneSchedule,
			Task:    task,
			Options: []asynq.Option{asynq.Queue(jobs.QueueDefault), asynq.MaxRetry(3)},
		})
	} else {
		logger.Info("audit database not configured, prune schedule disabled")
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   cfg.AsynqRedis(),
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers:    handlers,
		Cron:        cron,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	router := chi.NewRouter()
	router.Handle("/metrics", metrics.Handler())
	metricsServer := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", slog.Any("error", err))
		}
	}()

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", slog.Any("error", err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("metrics shutdown", slog.Any("error", err))
	}
}

func runCommand(ctx context.Context, cfg *app.Config, args []string) error {
	ctl := newJobsCtl(cfg.AsynqRedis())
	defer func() {
		_ = ctl.Close()
	}()

	switch args[0] {
	case "trigger":
		if len(args) < 2 {
			return errors.New("usage: worker trigger <task>")
		}
		info, err := ctl.Trigger(ctx, args[1], cfg.AuditRetentionDays)
		if err != nil {
			return err
		}
		fmt.Printf("enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
	case "stats":
		stats, err := ctl.InspectQueue()
		if err != nil {
			return err
		}
		fmt.Printf("queue=%s pending=%d active=%d scheduled=%d retry=%d archived=%d\n",
			stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry, stats.Archived)
	case "scheduled":
		tasks, err := ctl.ListScheduled(20)
		if err != nil {
			return err
		}
		for _, task := range tasks {
			fmt.Printf("%s %s next=%s\n", task.ID, task.Type, task.NextProcessAt.Format(time.RFC3339))
		}
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
	return nil
}
