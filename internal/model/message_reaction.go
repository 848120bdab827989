package model

import (
	"time"
)

// MessageReaction 消息表情回应
// (message_id, user_id, emoji) 唯一：同一用户对同一消息的同一表情最多一条
// 消息或用户被删除时级联删除

type MessageReaction struct {
	ID        uint      `gorm:"primaryKey"`
	MessageID uint      `gorm:"not null;uniqueIndex:idx_reaction_message_user_emoji,priority:1;comment:消息ID"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_reaction_message_user_emoji,priority:2;index;comment:用户ID"`
	Emoji     string    `gorm:"type:varchar(10);not null;uniqueIndex:idx_reaction_message_user_emoji,priority:3;comment:表情"`
	CreatedAt time.Time `gorm:"comment:创建时间(UTC)"`

	User User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}

func (MessageReaction) TableName() string { return "message_reaction" }
