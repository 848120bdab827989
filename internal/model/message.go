package model

import (
	"time"
)

// Message 全局聊天室消息
// 创建后不可修改；用户被删除时级联删除

type Message struct {
	ID        uint      `gorm:"primaryKey"`
	Content   string    `gorm:"type:varchar(1000);not null;comment:消息内容"`
	UserID    uint      `gorm:"not null;index;comment:发送者ID"`
	CreatedAt time.Time `gorm:"precision:3;not null;index;comment:创建时间(UTC)"`

	User      User              `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	Reactions []MessageReaction `gorm:"foreignKey:MessageID;constraint:OnDelete:CASCADE"`
}

func (Message) TableName() string { return "message" }
