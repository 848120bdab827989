package repository

import (
	"context"
	"errors"

	"chat-system/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MessageRepository 消息数据仓储
type MessageRepository struct {
	db *gorm.DB
}

// NewMessageRepository 创建MessageRepository实例
func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// InsertMessage 写入消息，成功后 message.ID 与 message.CreatedAt 为数据库中的值
func (r *MessageRepository) InsertMessage(ctx context.Context, message *model.Message) error {
	err := r.db.WithContext(ctx).Omit(clause.Associations).Create(message).Error
	if isForeignKeyViolation(err) {
		return ErrUserNotFound
	}
	return err
}

// GetByID 根据ID获取消息（带作者）
func (r *MessageRepository) GetByID(ctx context.Context, id uint) (*model.Message, error) {
	var message model.Message
	err := r.db.WithContext(ctx).Preload("User").First(&message, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}
	return &message, nil
}
