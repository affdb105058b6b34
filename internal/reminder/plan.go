// Package reminder 计算待办提醒时间，不依赖数据库与时钟。
package reminder

import (
	"errors"
	"time"

	"github.com/fenger067850/todo-manager/internal/model"
)

// ErrRemindAtNotFuture 表示提醒时间不晚于当前时间。
var ErrRemindAtNotFuture = errors.New("remind time must be in the future")

// Offset 描述截止时间前多久提醒一次。
type Offset struct {
	Before  time.Duration
	Message string
}

// DefaultOffsets 创建待办时生成的默认提醒：截止前 1 小时、1 天、3 天。
var DefaultOffsets = []Offset{
	{Before: time.Hour, Message: "Task is due within the hour"},
	{Before: 24 * time.Hour, Message: "Task is due tomorrow"},
	{Before: 3 * 24 * time.Hour, Message: "Task is due in 3 days"},
}

// Plan 根据截止时间计算提醒。
//
// 截止时间为空或不晚于 now 时返回 nil；每个偏移量只有在提醒时间严格晚于 now 时才生成。
// 返回的提醒均为活跃状态，时间统一为 UTC。
func Plan(todoID string, due *time.Time, now time.Time, offsets []Offset) []model.Reminder {
	if due == nil || !due.After(now) {
		return nil
	}

	var out []model.Reminder
	for _, off := range offsets {
		if off.Before <= 0 {
			continue
		}
		at := due.Add(-off.Before)
		if !at.After(now) {
			continue
		}
		msg := off.Message
		out = append(out, model.Reminder{
			TodoID:   todoID,
			RemindAt: at.UTC(),
			Message:  &msg,
			IsActive: true,
		})
	}
	return out
}

// DefaultReminders 使用 DefaultOffsets 计算提醒。
func DefaultReminders(todoID string, due *time.Time, now time.Time) []model.Reminder {
	return Plan(todoID, due, now, DefaultOffsets)
}

// ValidateRemindAt 校验用户指定的提醒时间必须晚于 now。
func ValidateRemindAt(at, now time.Time) error {
	if !at.After(now) {
		return ErrRemindAtNotFuture
	}
	return nil
}
