// Package store 封装基于 gorm 的持久化操作。
//
// 所有按用户查询的方法都在 SQL 层校验归属：不属于该用户的记录与不存在的记录一样返回 ErrNotFound。
package store

import (
	"errors"

	"gorm.io/gorm"
)

// ErrNotFound 记录不存在或不属于当前用户。
var ErrNotFound = errors.New("record not found")

// Store 是各实体存储操作的入口。
type Store struct {
	db *gorm.DB
}

// New 创建 Store。
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB 返回底层连接，供健康检查等场景使用。
func (s *Store) DB() *gorm.DB {
	return s.db
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// ownedTodoIDs 返回 user 拥有的待办 ID 子查询。
func (s *Store) ownedTodoIDs(tx *gorm.DB, userID string) *gorm.DB {
	return tx.Session(&gorm.Session{NewDB: true}).
		Table("todos").Select("id").Where("user_id = ?", userID)
}
