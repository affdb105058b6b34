package scheduler

import (
	"log/slog"
	"time"

	"github.com/fenger067850/todo-manager/internal/config"
	"github.com/fenger067850/todo-manager/internal/model"
	"github.com/fenger067850/todo-manager/internal/pkg/dedup"
	"github.com/fenger067850/todo-manager/internal/pkg/metrics"
	"github.com/fenger067850/todo-manager/internal/pkg/notify"
	"github.com/fenger067850/todo-manager/internal/pkg/queue"

	"github.com/redis/go-redis/v9"
)

const notifyTimeout = 30 * time.Second

// NewFromConfig 按配置组装调度器：日志通知始终开启；SMTP 配置完整时追加异步邮件通知；
// rdb 非空时启用发送去重。
func NewFromConfig(cfg *config.Config, store ReminderStore, rdb *redis.Client, logger *slog.Logger) *Scheduler {
	notifiers := notify.Multi{notify.NewLogNotifier(logger)}

	var pool *queue.Pool
	if cfg.Email.Enabled() {
		pool = queue.New(logger, cfg.App.NotifyWorkers, cfg.App.NotifyQueueCapacity, notifyTimeout)
		pool.OnDepth = func(depth int) { metrics.NotifyQueueDepth.Set(float64(depth)) }

		async := notify.NewAsync(notify.NewEmailNotifier(cfg.Email, logger), pool)
		async.OnError = func(r model.PendingReminder, err error) {
			metrics.RemindersFailedTotal.WithLabelValues("deliver").Inc()
			logger.Error("reminder email delivery failed",
				slog.String("reminder_id", r.ID),
				slog.String("to", r.UserEmail),
				slog.String("error", err.Error()))
		}
		notifiers = append(notifiers, async)
	}

	var deduper Deduper
	if rdb != nil {
		deduper = dedup.NewGuard(rdb, cfg.Reminder.DedupWindow)
	}

	s := New(store, notifiers, deduper, logger, Options{
		Schedule:  cfg.Reminder.Schedule,
		BatchSize: cfg.Reminder.BatchSize,
	})
	s.pool = pool
	return s
}
