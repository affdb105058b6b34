package store

import (
	"context"

	"github.com/fenger067850/todo-manager/internal/model"
)

// ListCategories 返回用户全部分类（按创建时间倒序），并附带每个分类下的待办数量。
func (s *Store) ListCategories(ctx context.Context, userID string) ([]model.Category, error) {
	db := s.db.WithContext(ctx)

	var cats []model.Category
	if err := db.Where("user_id = ?", userID).Order("created_at DESC").Find(&cats).Error; err != nil {
		return nil, err
	}
	if len(cats) == 0 {
		return cats, nil
	}

	type countRow struct {
		CategoryID string
		Total      int64
	}
	var rows []countRow
	err := db.Model(&model.Todo{}).
		Select("category_id, COUNT(*) AS total").
		Where("user_id = ? AND category_id IS NOT NULL", userID).
		Group("category_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.CategoryID] = r.Total
	}
	for i := range cats {
		cats[i].Count = &model.CategoryCount{Todos: counts[cats[i].ID]}
	}
	return cats, nil
}

func (s *Store) FindCategory(ctx context.Context, userID, id string) (*model.Category, error) {
	var c model.Category
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&c).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

// CategoryNameTaken 检查同一用户下是否已有同名分类，excludeID 非空时排除该分类自身。
func (s *Store) CategoryNameTaken(ctx context.Context, userID, name, excludeID string) (bool, error) {
	q := s.db.WithContext(ctx).Model(&model.Category{}).
		Where("user_id = ? AND name = ?", userID, name)
	if excludeID != "" {
		q = q.Where("id <> ?", excludeID)
	}
	var n int64
	err := q.Count(&n).Error
	return n > 0, err
}

func (s *Store) CreateCategory(ctx context.Context, c *model.Category) error {
	return s.db.WithContext(ctx).Create(c).Error
}

// UpdateCategory 按列名更新分类并返回更新后的记录。
func (s *Store) UpdateCategory(ctx context.Context, userID, id string, updates map[string]any) (*model.Category, error) {
	if len(updates) > 0 {
		res := s.db.WithContext(ctx).Model(&model.Category{}).
			Where("id = ? AND user_id = ?", id, userID).
			Updates(updates)
		if res.Error != nil {
			return nil, res.Error
		}
	}
	return s.FindCategory(ctx, userID, id)
}

func (s *Store) DeleteCategory(ctx context.Context, userID, id string) error {
	res := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(&model.Category{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CountCategoryTodos 返回分类下的待办数量。
func (s *Store) CountCategoryTodos(ctx context.Context, categoryID string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&model.Todo{}).Where("category_id = ?", categoryID).Count(&n).Error
	return n, err
}
