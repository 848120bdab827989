package model

import (
	"time"
)

// User 用户模型
// 索引与唯一约束：用户名唯一、邮箱唯一
// 说明：密码仅存储哈希（PasswordHash），不存储明文
// IsOnline 是在线状态的缓存，只由聊天Hub在上线/下线切换时写入
// LastSeen 用于最近一次在线状态切换时间

type User struct {
	ID           uint      `gorm:"primaryKey"`
	Username     string    `gorm:"type:varchar(50);not null;uniqueIndex;comment:用户名"`
	Email        string    `gorm:"type:varchar(255);not null;uniqueIndex;comment:邮箱"`
	PasswordHash string    `gorm:"type:varchar(255);not null;comment:密码哈希"`
	IsOnline     bool      `gorm:"not null;default:false;comment:是否在线"`
	LastSeen     time.Time `gorm:"comment:最近在线时间"`
	CreatedAt    time.Time `gorm:"comment:创建时间"`
	UpdatedAt    time.Time `gorm:"comment:更新时间"`
}

// TableName 指定表名（因全局配置使用单数表名，这里与结构体名一致为 user）
func (User) TableName() string { return "user" }
