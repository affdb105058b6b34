package store

import (
	"context"
	"time"

	"github.com/fenger067850/todo-manager/internal/model"
)

// ReminderFilter 提醒列表过滤条件。
//
// Upcoming 为 true 时只返回 [Now, Now+Window] 内的活跃提醒，IsActive 被忽略。
type ReminderFilter struct {
	IsActive *bool
	Upcoming bool
	Now      time.Time
	Window   time.Duration
}

// ListReminders 返回用户所有待办上的提醒，按提醒时间升序，并加载待办与分类。
func (s *Store) ListReminders(ctx context.Context, userID string, f ReminderFilter) ([]model.Reminder, error) {
	db := s.db.WithContext(ctx)
	q := db.Where("todo_id IN (?)", s.ownedTodoIDs(db, userID))

	switch {
	case f.Upcoming:
		now := f.Now.UTC()
		q = q.Where("is_active = ? AND remind_at >= ? AND remind_at <= ?", true, now, now.Add(f.Window))
	case f.IsActive != nil:
		q = q.Where("is_active = ?", *f.IsActive)
	}

	var list []model.Reminder
	err := q.Preload("Todo").Preload("Todo.Category").Order("remind_at ASC").Find(&list).Error
	if err != nil {
		return nil, err
	}
	return list, nil
}

func (s *Store) FindReminder(ctx context.Context, userID, id string) (*model.Reminder, error) {
	db := s.db.WithContext(ctx)
	var r model.Reminder
	err := db.Where("id = ? AND todo_id IN (?)", id, s.ownedTodoIDs(db, userID)).First(&r).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &r, nil
}

// CreateReminder 创建提醒并加载所属待办。
func (s *Store) CreateReminder(ctx context.Context, r *model.Reminder) error {
	db := s.db.WithContext(ctx)
	if err := db.Omit("Todo").Create(r).Error; err != nil {
		return err
	}
	var t model.Todo
	if err := db.Where("id = ?", r.TodoID).First(&t).Error; err == nil {
		r.Todo = &t
	}
	return nil
}

// UpdateReminder 按列名更新提醒并返回最新记录。
func (s *Store) UpdateReminder(ctx context.Context, userID, id string, updates map[string]any) (*model.Reminder, error) {
	if _, err := s.FindReminder(ctx, userID, id); err != nil {
		return nil, err
	}
	if len(updates) > 0 {
		err := s.db.WithContext(ctx).Model(&model.Reminder{}).Where("id = ?", id).Updates(updates).Error
		if err != nil {
			return nil, err
		}
	}
	var r model.Reminder
	if err := s.db.WithContext(ctx).Preload("Todo").Where("id = ?", id).First(&r).Error; err != nil {
		return nil, notFound(err)
	}
	return &r, nil
}

func (s *Store) DeleteReminder(ctx context.Context, userID, id string) error {
	db := s.db.WithContext(ctx)
	res := db.Where("id = ? AND todo_id IN (?)", id, s.ownedTodoIDs(db, userID)).Delete(&model.Reminder{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// PendingReminders 返回到期待处理的提醒：活跃、提醒时间不晚于 now、所属待办未完成。
//
// limit <= 0 表示不限制数量。
func (s *Store) PendingReminders(ctx context.Context, now time.Time, limit int) ([]model.PendingReminder, error) {
	type row struct {
		ID              string
		TodoID          string
		TodoTitle       string
		TodoDescription *string
		TodoDueDate     *time.Time
		RemindAt        time.Time
		Message         *string
		UserID          string
		UserEmail       string
		UserName        *string
		UserUsername    string
		CategoryName    *string
		CategoryColor   *string
	}

	q := s.db.WithContext(ctx).
		Table("reminders AS r").
		Select(`r.id AS id, r.todo_id AS todo_id, t.title AS todo_title,
			t.description AS todo_description, t.due_date AS todo_due_date,
			r.remind_at AS remind_at, r.message AS message,
			u.id AS user_id, u.email AS user_email, u.name AS user_name, u.username AS user_username,
			c.name AS category_name, c.color AS category_color`).
		Joins("JOIN todos AS t ON t.id = r.todo_id").
		Joins("JOIN users AS u ON u.id = t.user_id").
		Joins("LEFT JOIN categories AS c ON c.id = t.category_id").
		Where("r.is_active = ? AND r.remind_at <= ? AND t.is_completed = ?", true, now.UTC(), false).
		Order("r.remind_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var rows []row
	if err := q.Scan(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]model.PendingReminder, 0, len(rows))
	for _, r := range rows {
		u := model.User{Username: r.UserUsername, Name: r.UserName}
		out = append(out, model.PendingReminder{
			ID:              r.ID,
			TodoID:          r.TodoID,
			TodoTitle:       r.TodoTitle,
			TodoDescription: r.TodoDescription,
			TodoDueDate:     r.TodoDueDate,
			RemindAt:        r.RemindAt,
			Message:         r.Message,
			UserID:          r.UserID,
			UserEmail:       r.UserEmail,
			UserName:        u.DisplayName(),
			CategoryName:    r.CategoryName,
			CategoryColor:   r.CategoryColor,
		})
	}
	return out, nil
}

// MarkReminderProcessed 把活跃提醒置为不活跃。
//
// 返回 false 表示提醒已被处理（或不存在），调用方可据此保证每条提醒只处理一次。
func (s *Store) MarkReminderProcessed(ctx context.Context, id string) (bool, error) {
	res := s.db.WithContext(ctx).Model(&model.Reminder{}).
		Where("id = ? AND is_active = ?", id, true).
		Update("is_active", false)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
