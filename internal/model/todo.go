package model

import "time"

// TodoStatus 待办状态枚举。
type TodoStatus string

const (
	StatusPending    TodoStatus = "pending"     // 待处理
	StatusInProgress TodoStatus = "in_progress" // 进行中
	StatusCompleted  TodoStatus = "completed"   // 已完成
	StatusCancelled  TodoStatus = "cancelled"   // 已取消
)

// ValidStatus 判断 s 是否为合法的待办状态。
func ValidStatus(s string) bool {
	switch TodoStatus(s) {
	case StatusPending, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Todo 表示一条待办事项。
//
// 每条待办归属唯一用户，所有读写都必须带 user_id 条件过滤。
type Todo struct {
	ID        uint      `gorm:"primaryKey"` // 待办唯一标识
	CreatedAt time.Time // 创建时间
	UpdatedAt time.Time // 更新时间

	UserID uint `gorm:"not null;index"` // 所属用户 ID
	User   User `gorm:"foreignKey:UserID"`

	Title       string     `gorm:"type:varchar(255);not null"`          // 标题（1-255 字符）
	Description string     `gorm:"type:text"`                           // 详细描述
	Status      TodoStatus `gorm:"type:varchar(16);default:pending"`    // 状态: pending / in_progress / completed / cancelled
	DueDate     *time.Time `gorm:"type:date"`                           // 截止日期（只取日期，不含时刻）
}
