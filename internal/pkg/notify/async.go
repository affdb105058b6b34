package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/fenger067850/todo-manager/internal/model"
	"github.com/fenger067850/todo-manager/internal/pkg/queue"
)

// ErrQueueFull 通知任务池已满，提醒保持活跃等待下次批处理。
var ErrQueueFull = errors.New("notification queue full")

// Async 把慢速通知渠道（如 SMTP）放到任务池中执行。
//
// 入队成功即视为发送成功；OnError 在后台发送失败时回调。
type Async struct {
	next    Notifier
	pool    *queue.Pool
	OnError func(r model.PendingReminder, err error)
}

func NewAsync(next Notifier, pool *queue.Pool) *Async {
	return &Async{next: next, pool: pool}
}

func (a *Async) NotifyReminder(_ context.Context, r *model.PendingReminder) error {
	reminder := *r
	err := a.pool.Submit(queue.Task{
		Name: "reminder:" + reminder.ID,
		Run: func(ctx context.Context) error {
			err := a.next.NotifyReminder(ctx, &reminder)
			if err != nil && a.OnError != nil {
				a.OnError(reminder, err)
			}
			return err
		},
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, queue.ErrFull):
		return ErrQueueFull
	default:
		return fmt.Errorf("enqueue notification: %w", err)
	}
}
