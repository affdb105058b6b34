package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Priority 待办优先级。
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
)

// Valid 判断是否为已知优先级。
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Quadrant 艾森豪威尔矩阵象限。
type Quadrant string

const (
	QuadrantUrgentImportant       Quadrant = "URGENT_IMPORTANT"
	QuadrantNotUrgentImportant    Quadrant = "NOT_URGENT_IMPORTANT"
	QuadrantUrgentNotImportant    Quadrant = "URGENT_NOT_IMPORTANT"
	QuadrantNotUrgentNotImportant Quadrant = "NOT_URGENT_NOT_IMPORTANT"
)

// Valid 判断是否为已知象限。
func (q Quadrant) Valid() bool {
	switch q {
	case QuadrantUrgentImportant, QuadrantNotUrgentImportant, QuadrantUrgentNotImportant, QuadrantNotUrgentNotImportant:
		return true
	}
	return false
}

// Category 用户自定义的待办分类，名称在同一用户下唯一。
type Category struct {
	ID          string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name        string    `gorm:"type:varchar(50);not null;index:idx_category_user_name" json:"name"`
	Color       *string   `gorm:"type:varchar(7)" json:"color"`
	Description *string   `gorm:"type:varchar(200)" json:"description"`
	UserID      string    `gorm:"type:varchar(36);not null;index:idx_category_user_name" json:"userId"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`

	Count *CategoryCount `gorm:"-" json:"_count,omitempty"`
}

// CategoryCount 分类下的关联计数。
type CategoryCount struct {
	Todos int64 `json:"todos"`
}

// Todo 表示一条待办事项。
type Todo struct {
	ID          string     `gorm:"type:varchar(36);primaryKey" json:"id"`
	Title       string     `gorm:"type:varchar(100);not null" json:"title"`
	Description *string    `gorm:"type:text" json:"description"`
	DueDate     *time.Time `gorm:"index" json:"dueDate"`
	IsCompleted bool       `gorm:"not null;default:false" json:"isCompleted"`
	Priority    Priority   `gorm:"type:varchar(16);not null;default:'MEDIUM'" json:"priority"`
	Quadrant    *Quadrant  `gorm:"type:varchar(32)" json:"quadrant"`
	UserID      string     `gorm:"type:varchar(36);not null;index" json:"userId"`
	CategoryID  *string    `gorm:"type:varchar(36);index" json:"categoryId"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`

	Category    *Category    `gorm:"foreignKey:CategoryID" json:"category"`
	Reminders   []Reminder   `gorm:"foreignKey:TodoID" json:"reminders"`
	Attachments []Attachment `gorm:"foreignKey:TodoID" json:"attachments"`
}

// Attachment 待办附件的元数据，文件本体保存在附件存储中。
type Attachment struct {
	ID           string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	TodoID       string    `gorm:"type:varchar(36);not null;index" json:"todoId"`
	Filename     string    `gorm:"type:varchar(255);not null" json:"-"` // 存储文件名（唯一）
	OriginalName string    `gorm:"type:varchar(255);not null" json:"originalName"`
	FileType     string    `gorm:"type:varchar(128);not null" json:"fileType"`
	FileSize     int64     `gorm:"not null" json:"fileSize"`
	FilePath     string    `gorm:"type:varchar(512);not null" json:"-"` // 存储内相对路径
	CreatedAt    time.Time `json:"createdAt"`
}

// Reminder 待办提醒，处理后置为不活跃。
type Reminder struct {
	ID        string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	TodoID    string    `gorm:"type:varchar(36);not null;index" json:"todoId"`
	RemindAt  time.Time `gorm:"not null;index" json:"remindAt"`
	Message   *string   `gorm:"type:varchar(200)" json:"message"`
	IsActive  bool      `gorm:"not null;default:true;index" json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`

	Todo *Todo `gorm:"foreignKey:TodoID" json:"todo,omitempty"`
}

// PendingReminder 是发送通知时使用的提醒视图（提醒 + 待办 + 用户 + 分类）。
type PendingReminder struct {
	ID              string
	TodoID          string
	TodoTitle       string
	TodoDescription *string
	TodoDueDate     *time.Time
	RemindAt        time.Time
	Message         *string
	UserID          string
	UserEmail       string
	UserName        string
	CategoryName    *string
	CategoryColor   *string
}

func (c *Category) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

func (t *Todo) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	return nil
}

func (a *Attachment) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

func (r *Reminder) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

// FillEmpty 把空关联切片替换为空数组，保证 JSON 输出为 [] 而不是 null。
func (t *Todo) FillEmpty() {
	if t.Reminders == nil {
		t.Reminders = []Reminder{}
	}
	if t.Attachments == nil {
		t.Attachments = []Attachment{}
	}
}

// All 返回需要自动迁移的全部模型。
func All() []any {
	return []any{&User{}, &Category{}, &Todo{}, &Attachment{}, &Reminder{}}
}
