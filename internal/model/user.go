package model

import "time"

// User 表示系统用户。
type User struct {
	ID           uint      `gorm:"primaryKey"`                             // 用户 ID
	Username     string    `gorm:"type:varchar(191);uniqueIndex;not null"` // 用户名（唯一）
	Email        string    `gorm:"type:varchar(191);uniqueIndex;not null"` // 邮箱（唯一）
	PasswordHash string    `gorm:"not null"`                               // bcrypt 哈希，绝不对外返回
	FirstName    string    `gorm:"type:varchar(255)"`                      // 名
	LastName     string    `gorm:"type:varchar(255)"`                      // 姓
	IsActive     bool      `gorm:"default:true"`                           // 账号是否启用
	CreatedAt    time.Time // 创建时间
	UpdatedAt    time.Time // 更新时间

	Todos []Todo `gorm:"foreignKey:UserID"` // 该用户的待办列表
}
