package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/atlas-erp/atlas-authz/internal/app"
	"github.com/atlas-erp/atlas-authz/internal/audit"
	audithttp "github.com/atlas-erp/atlas-authz/internal/audit/http"
	"github.com/atlas-erp/atlas-authz/internal/authz"
	"github.com/atlas-erp/atlas-authz/internal/observability"
	"github.com/atlas-erp/atlas-authz/internal/platform/db"
	"github.com/atlas-erp/atlas-authz/internal/snapshot"
	"github.com/atlas-erp/atlas-authz/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	queueClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init queue client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := queueClient.Close(); err != nil {
			logger.Warn("queue client close", slog.Any("error", err))
		}
	}()

	sink := audit.NewFanoutSink(
		audit.NewLogSink(logger),
		jobs.NewAuditQueueSink(queueClient),
	)
	engine := authz.NewEngine(logger, sink)

	snapStore := snapshot.NewStore(pool)
	if snap, found, err := snapStore.Load(ctx); err != nil {
		logger.Error("load snapshot", slog.Any("error", err))
		os.Exit(1)
	} else if found {
		if err := engine.Restore(snap); err != nil {
			logger.Error("restore snapshot", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("engine state restored from snapshot")
	} else {
		logger.Info("no snapshot found, using bootstrap state")
	}

	metrics := observability.NewMetrics()
	handler := authz.NewHandler(logger, engine, metrics)

	auditStore := audit.NewStore(pool)
	auditHandler := audithttp.NewHandler(logger, audit.NewService(auditStore), audit.NewCSVExporter())

	router := app.NewRouter(app.RouterParams{
		Logger:       logger,
		Config:       cfg,
		AuthzHandler: handler,
		AuditHandler: auditHandler,
		Metrics:      metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	group.Go(func() error {
		interval := cfg.SnapshotInterval
		if interval <= 0 {
			interval = 5 * time.Minute
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-groupCtx.Done():
				return nil
			case <-ticker.C:
				saveCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				if err := snapStore.Save(saveCtx, engine.Export()); err != nil {
					logger.Error("save snapshot", slog.Any("error", err))
				}
				cancel()
			}
		}
	})

	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown", slog.Any("error", err))
		}
		// Final snapshot so restarts pick up the latest assignments.
		saveCtx, cancel2 := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel2()
		if err := snapStore.Save(saveCtx, engine.Export()); err != nil {
			logger.Error("final snapshot", slog.Any("error", err))
		}
		return nil
	})

	if err := group.Wait(); err != nil {
		logger.Error("runtime", slog.Any("error", err))
		os.Exit(1)
	}
}
