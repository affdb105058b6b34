// Package scheduler 周期性处理到期提醒：查询、去重、发送通知并标记为已处理。
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fenger067850/todo-manager/internal/model"
	"github.com/fenger067850/todo-manager/internal/pkg/metrics"
	"github.com/fenger067850/todo-manager/internal/pkg/notify"
	"github.com/fenger067850/todo-manager/internal/pkg/queue"

	"github.com/robfig/cron/v3"
)

// ReminderStore 提醒批处理需要的存储操作。
type ReminderStore interface {
	PendingReminders(ctx context.Context, now time.Time, limit int) ([]model.PendingReminder, error)
	MarkReminderProcessed(ctx context.Context, id string) (bool, error)
}

// Deduper 保证同一提醒只发送一次通知。
type Deduper interface {
	Claim(ctx context.Context, reminderID string) (bool, error)
	Release(ctx context.Context, reminderID string) error
}

// Result 单次批处理的统计。
type Result struct {
	Found     int `json:"found"`
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// Options 调度参数。
type Options struct {
	Schedule  string
	BatchSize int
}

// Scheduler 提醒调度器。ProcessPending 可由 cron 或手动接口触发，同一时刻只会执行一次。
type Scheduler struct {
	store     ReminderStore
	notifier  notify.Notifier
	deduper   Deduper
	logger    *slog.Logger
	schedule  string
	batchSize int
	now       func() time.Time

	pool *queue.Pool

	runMu sync.Mutex

	cronMu sync.Mutex
	cron   *cron.Cron
}

// New 创建调度器。deduper 可以为 nil（不去重）。
func New(store ReminderStore, notifier notify.Notifier, deduper Deduper, logger *slog.Logger, opts Options) *Scheduler {
	if opts.Schedule == "" {
		opts.Schedule = "@every 1m"
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 500
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		store:     store,
		notifier:  notifier,
		deduper:   deduper,
		logger:    logger,
		schedule:  opts.Schedule,
		batchSize: opts.BatchSize,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ProcessPending 处理一批到期提醒。
//
// 单条提醒失败只记录日志并继续；通知失败的提醒保持活跃，下次批处理重试。
func (s *Scheduler) ProcessPending(ctx context.Context) (Result, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	start := time.Now()
	defer func() {
		metrics.ReminderBatchDuration.Observe(time.Since(start).Seconds())
	}()

	var res Result
	pending, err := s.store.PendingReminders(ctx, s.now(), s.batchSize)
	if err != nil {
		return res, fmt.Errorf("load pending reminders: %w", err)
	}
	res.Found = len(pending)

	for i := range pending {
		if ctx.Err() != nil {
			break
		}
		switch s.processOne(ctx, &pending[i]) {
		case outcomeProcessed:
			res.Processed++
			metrics.RemindersProcessedTotal.Inc()
		case outcomeSkipped:
			res.Skipped++
			metrics.RemindersSkippedTotal.Inc()
		case outcomeFailed:
			res.Failed++
		}
	}

	if res.Found > 0 {
		s.logger.Info("reminder batch finished",
			slog.Int("found", res.Found),
			slog.Int("processed", res.Processed),
			slog.Int("failed", res.Failed),
			slog.Int("skipped", res.Skipped),
			slog.Duration("elapsed", time.Since(start)))
	}
	return res, ctx.Err()
}

type outcome int

const (
	outcomeProcessed outcome = iota
	outcomeSkipped
	outcomeFailed
)

func (s *Scheduler) processOne(ctx context.Context, r *model.PendingReminder) outcome {
	log := s.logger.With(slog.String("reminder_id", r.ID), slog.String("todo_id", r.TodoID))

	claimed := true
	if s.deduper != nil {
		ok, err := s.deduper.Claim(ctx, r.ID)
		if err != nil {
			// Redis 不可用时仍然发送，宁可重复也不漏发
			log.Warn("dedup claim failed", slog.String("error", err.Error()))
		} else {
			claimed = ok
		}
	}

	if claimed {
		if err := s.notifier.NotifyReminder(ctx, r); err != nil {
			log.Error("notify reminder failed", slog.String("error", err.Error()))
			metrics.RemindersFailedTotal.WithLabelValues("notify").Inc()
			if s.deduper != nil {
				if rerr := s.deduper.Release(ctx, r.ID); rerr != nil {
					log.Warn("dedup release failed", slog.String("error", rerr.Error()))
				}
			}
			return outcomeFailed
		}
	} else {
		log.Info("reminder already notified, marking only")
	}

	marked, err := s.store.MarkReminderProcessed(ctx, r.ID)
	if err != nil {
		log.Error("mark reminder failed", slog.String("error", err.Error()))
		metrics.RemindersFailedTotal.WithLabelValues("mark").Inc()
		return outcomeFailed
	}
	if !marked || !claimed {
		return outcomeSkipped
	}
	return outcomeProcessed
}

// StartWorkers 启动异步通知的 worker（未配置异步通知时无操作）。
func (s *Scheduler) StartWorkers(ctx context.Context) {
	if s.pool != nil {
		s.pool.Start(ctx)
	}
}

// Start 启动通知 worker，并按 cron 表达式周期执行 ProcessPending，重叠的执行会被跳过。
func (s *Scheduler) Start(ctx context.Context) error {
	s.StartWorkers(ctx)

	s.cronMu.Lock()
	defer s.cronMu.Unlock()
	if s.cron != nil {
		return nil
	}

	cl := cronLogger{logger: s.logger}
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	_, err := c.AddFunc(s.schedule, func() {
		if _, err := s.ProcessPending(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("reminder batch failed", slog.String("error", err.Error()))
		}
	})
	if err != nil {
		return fmt.Errorf("invalid reminder schedule %q: %w", s.schedule, err)
	}

	c.Start()
	s.cron = c
	s.logger.Info("reminder scheduler started", slog.String("schedule", s.schedule))

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Stop 停止 cron，等待正在执行的批处理结束，再排空通知队列。
func (s *Scheduler) Stop() {
	s.cronMu.Lock()
	c := s.cron
	s.cron = nil
	s.cronMu.Unlock()

	if c != nil {
		<-c.Stop().Done()
		s.logger.Info("reminder scheduler stopped")
	}
	if s.pool != nil {
		if err := s.pool.Shutdown(10 * time.Second); err != nil {
			s.logger.Warn("notify queue shutdown", slog.String("error", err.Error()))
		}
	}
}

// cronLogger 把 cron 的日志接口适配到 slog。
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	args := append([]interface{}{slog.String("error", err.Error())}, keysAndValues...)
	l.logger.Error("cron: "+msg, args...)
}
