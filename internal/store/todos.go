package store

import (
	"context"
	"time"

	"github.com/fenger067850/todo-manager/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// todoOrder 未完成在前，优先级高在前，有截止时间的在前并按截止时间升序，最后按创建时间倒序。
const todoOrder = "is_completed ASC, " +
	"CASE priority WHEN 'HIGH' THEN 3 WHEN 'MEDIUM' THEN 2 ELSE 1 END DESC, " +
	"CASE WHEN due_date IS NULL THEN 1 ELSE 0 END ASC, " +
	"due_date ASC, " +
	"created_at DESC"

// dueRangeOrder 截止时间升序，同一时间优先级高在前。
const dueRangeOrder = "due_date ASC, " +
	"CASE priority WHEN 'HIGH' THEN 3 WHEN 'MEDIUM' THEN 2 ELSE 1 END DESC, " +
	"created_at DESC"

// TodoFilter 待办列表过滤条件，nil 表示不过滤。
type TodoFilter struct {
	Quadrant    *model.Quadrant
	Priority    *model.Priority
	IsCompleted *bool
	CategoryID  *string
}

func withTodoRelations(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Category").
		Preload("Reminders", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("remind_at ASC")
		}).
		Preload("Attachments", func(tx *gorm.DB) *gorm.DB {
			return tx.Select("id", "todo_id", "original_name", "file_type", "file_size", "created_at").
				Order("created_at DESC")
		})
}

// ListTodos 返回用户的待办列表，包含分类、提醒和附件摘要。
func (s *Store) ListTodos(ctx context.Context, userID string, f TodoFilter) ([]model.Todo, error) {
	q := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if f.Quadrant != nil {
		q = q.Where("quadrant = ?", *f.Quadrant)
	}
	if f.Priority != nil {
		q = q.Where("priority = ?", *f.Priority)
	}
	if f.IsCompleted != nil {
		q = q.Where("is_completed = ?", *f.IsCompleted)
	}
	if f.CategoryID != nil {
		q = q.Where("category_id = ?", *f.CategoryID)
	}

	var todos []model.Todo
	if err := withTodoRelations(q).Order(todoOrder).Find(&todos).Error; err != nil {
		return nil, err
	}
	return todos, nil
}

// ListTodosByDueRange 返回截止时间落在 [start, end] 内的待办。
func (s *Store) ListTodosByDueRange(ctx context.Context, userID string, start, end time.Time) ([]model.Todo, error) {
	var todos []model.Todo
	err := withTodoRelations(s.db.WithContext(ctx)).
		Where("user_id = ? AND due_date >= ? AND due_date <= ?", userID, start.UTC(), end.UTC()).
		Order(dueRangeOrder).
		Find(&todos).Error
	if err != nil {
		return nil, err
	}
	return todos, nil
}

// FindTodo 按归属查找待办，不加载关联。
func (s *Store) FindTodo(ctx context.Context, userID, id string) (*model.Todo, error) {
	var t model.Todo
	if err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&t).Error; err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

// GetTodo 按归属查找待办并加载全部关联。
func (s *Store) GetTodo(ctx context.Context, userID, id string) (*model.Todo, error) {
	var t model.Todo
	err := withTodoRelations(s.db.WithContext(ctx)).
		Where("id = ? AND user_id = ?", id, userID).
		First(&t).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

// CreateTodo 在同一事务中创建待办及其初始提醒。
func (s *Store) CreateTodo(ctx context.Context, t *model.Todo, reminders []model.Reminder) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(t).Error; err != nil {
			return err
		}
		if len(reminders) == 0 {
			return nil
		}
		for i := range reminders {
			reminders[i].TodoID = t.ID
		}
		if err := tx.Create(&reminders).Error; err != nil {
			return err
		}
		t.Reminders = reminders
		return nil
	})
}

// UpdateTodo 按列名更新待办，返回带全部关联的最新记录。值为 nil 的列会被置空。
func (s *Store) UpdateTodo(ctx context.Context, userID, id string, updates map[string]any) (*model.Todo, error) {
	if len(updates) > 0 {
		res := s.db.WithContext(ctx).Model(&model.Todo{}).
			Where("id = ? AND user_id = ?", id, userID).
			Updates(updates)
		if res.Error != nil {
			return nil, res.Error
		}
	}
	return s.GetTodo(ctx, userID, id)
}

// DeleteTodo 删除待办及其提醒、附件记录，返回被删除的附件以便清理文件。
func (s *Store) DeleteTodo(ctx context.Context, userID, id string) ([]model.Attachment, error) {
	var removed []model.Attachment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var t model.Todo
		if err := tx.Where("id = ? AND user_id = ?", id, userID).First(&t).Error; err != nil {
			return notFound(err)
		}
		if err := tx.Where("todo_id = ?", t.ID).Find(&removed).Error; err != nil {
			return err
		}
		if err := tx.Where("todo_id = ?", t.ID).Delete(&model.Reminder{}).Error; err != nil {
			return err
		}
		if err := tx.Where("todo_id = ?", t.ID).Delete(&model.Attachment{}).Error; err != nil {
			return err
		}
		return tx.Delete(&t).Error
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}
