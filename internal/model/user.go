package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User 表示系统用户。
type User struct {
	ID        string    `gorm:"type:varchar(36);primaryKey" json:"id"`                 // 用户 ID (UUID)
	Email     string    `gorm:"type:varchar(191);uniqueIndex;not null" json:"email"`   // 邮箱（唯一）
	Username  string    `gorm:"type:varchar(32);uniqueIndex;not null" json:"username"` // 用户名（唯一）
	Name      *string   `gorm:"type:varchar(100)" json:"name"`                         // 显示名称
	Password  string    `gorm:"not null" json:"-"`                                     // bcrypt 哈希
	CreatedAt time.Time `json:"createdAt"`                                             // 创建时间
	UpdatedAt time.Time `json:"updatedAt"`                                             // 更新时间
}

// DisplayName 返回用于通知的称呼：优先 Name，否则用户名。
func (u *User) DisplayName() string {
	if u.Name != nil && *u.Name != "" {
		return *u.Name
	}
	return u.Username
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}
