package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fenger067850/todo-manager/internal/api/scheduler"
	"github.com/fenger067850/todo-manager/internal/config"
	"github.com/fenger067850/todo-manager/internal/database"
	"github.com/fenger067850/todo-manager/internal/pkg/logger"
	"github.com/fenger067850/todo-manager/internal/pkg/metrics"
	"github.com/fenger067850/todo-manager/internal/store"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

// main 是独立提醒 worker 的入口函数。
//
// 它负责：
// 1. 加载配置并连接数据库、Redis
// 2. 按 cron 表达式周期处理到期提醒
// 3. 暴露 Metrics 服务
// 4. 优雅关闭
//
// 与 API 进程同时运行时，应将 API 的 REMINDER_ENABLED 设为 false。
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	appLogger := logger.NewDefault(cfg.App.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.Database, appLogger)
	if err != nil {
		appLogger.Error("init database failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password})
		if err := rdb.Ping(ctx).Err(); err != nil {
			appLogger.Error("redis ping failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer rdb.Close()
	} else {
		appLogger.Warn("redis not configured, reminder dedup disabled")
	}

	metrics.InitMetrics(cfg.App.NotifyWorkers)
	sched := scheduler.NewFromConfig(cfg, store.New(db), rdb, appLogger)
	if err := sched.Start(ctx); err != nil {
		appLogger.Error("start reminder scheduler failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	metricsServer := &http.Server{
		Addr:              cfg.App.MetricsAddr,
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		appLogger.Info("worker metrics server started", slog.String("addr", cfg.App.MetricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("metrics server stopped with error", slog.String("error", err.Error()))
		}
	}()

	<-ctx.Done()
	appLogger.Info("shutting down reminder worker...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("metrics shutdown error", slog.String("error", err.Error()))
	}

	// 等待正在执行的批处理与邮件队列结束
	sched.Stop()

	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	appLogger.Info("reminder worker stopped gracefully")
}
