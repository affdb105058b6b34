package store

import (
	"context"

	"github.com/fenger067850/todo-manager/internal/model"
)

// ListAttachments 返回待办的附件，按上传时间倒序。
func (s *Store) ListAttachments(ctx context.Context, todoID string) ([]model.Attachment, error) {
	var list []model.Attachment
	err := s.db.WithContext(ctx).Where("todo_id = ?", todoID).Order("created_at DESC").Find(&list).Error
	if err != nil {
		return nil, err
	}
	return list, nil
}

// FindAttachment 按归属（经由所属待办）查找附件。
func (s *Store) FindAttachment(ctx context.Context, userID, id string) (*model.Attachment, error) {
	db := s.db.WithContext(ctx)
	var a model.Attachment
	err := db.Where("id = ? AND todo_id IN (?)", id, s.ownedTodoIDs(db, userID)).First(&a).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

func (s *Store) CreateAttachment(ctx context.Context, a *model.Attachment) error {
	return s.db.WithContext(ctx).Create(a).Error
}

func (s *Store) DeleteAttachment(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Attachment{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
