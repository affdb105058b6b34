// Package notify 负责把到期提醒送达用户。
package notify

import (
	"context"
	"errors"
	"log/slog"

	"github.com/fenger067850/todo-manager/internal/model"
)

// Notifier 定义提醒通知接口。
type Notifier interface {
	// NotifyReminder 发送一条到期提醒，返回错误时调用方不会把提醒标记为已处理。
	NotifyReminder(ctx context.Context, r *model.PendingReminder) error
}

// LogNotifier 把提醒写入日志，作为默认通知渠道。
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) NotifyReminder(ctx context.Context, r *model.PendingReminder) error {
	attrs := []any{
		slog.String("reminder_id", r.ID),
		slog.String("todo_id", r.TodoID),
		slog.String("todo_title", r.TodoTitle),
		slog.String("user_email", r.UserEmail),
		slog.Time("remind_at", r.RemindAt),
		slog.String("message", MessageOf(r)),
	}
	if r.TodoDueDate != nil {
		attrs = append(attrs, slog.Time("due_date", *r.TodoDueDate))
	}
	if r.CategoryName != nil {
		attrs = append(attrs, slog.String("category", *r.CategoryName))
	}
	n.logger.InfoContext(ctx, "reminder due", attrs...)
	return nil
}

// Multi 依次调用所有通知渠道，任一失败即返回合并后的错误。
type Multi []Notifier

func (m Multi) NotifyReminder(ctx context.Context, r *model.PendingReminder) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.NotifyReminder(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MessageOf 返回提醒文案，没有自定义文案时使用默认文案。
func MessageOf(r *model.PendingReminder) string {
	if r.Message != nil && *r.Message != "" {
		return *r.Message
	}
	return "Reminder: " + r.TodoTitle
}
