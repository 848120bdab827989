package repository

import (
	"context"
	"errors"

	"chat-system/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ReactionRepository 表情回应数据仓储
type ReactionRepository struct {
	db *gorm.DB
}

// NewReactionRepository 创建ReactionRepository实例
func NewReactionRepository(db *gorm.DB) *ReactionRepository {
	return &ReactionRepository{db: db}
}

// FindReaction 按 (message_id, user_id, emoji) 查找，不存在时返回 ErrReactionNotFound
func (r *ReactionRepository) FindReaction(ctx context.Context, messageID, userID uint, emoji string) (*model.MessageReaction, error) {
	var reaction model.MessageReaction
	err := r.db.WithContext(ctx).
		Where("message_id = ? AND user_id = ? AND emoji = ?", messageID, userID, emoji).
		First(&reaction).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrReactionNotFound
		}
		return nil, err
	}
	return &reaction, nil
}

// InsertReaction 写入回应；唯一约束冲突返回 ErrDuplicateReaction
func (r *ReactionRepository) InsertReaction(ctx context.Context, reaction *model.MessageReaction) error {
	err := r.db.WithContext(ctx).Omit(clause.Associations).Create(reaction).Error
	switch {
	case err == nil:
		return nil
	case isDuplicateKey(err):
		return ErrDuplicateReaction
	case isForeignKeyViolation(err):
		return ErrMessageNotFound
	default:
		return err
	}
}

// DeleteReaction 删除回应，返回是否确实删除了一行
func (r *ReactionRepository) DeleteReaction(ctx context.Context, messageID, userID uint, emoji string) (bool, error) {
	result := r.db.WithContext(ctx).
		Where("message_id = ? AND user_id = ? AND emoji = ?", messageID, userID, emoji).
		Delete(&model.MessageReaction{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// CountByMessage 统计某条消息上的回应数量
func (r *ReactionRepository) CountByMessage(ctx context.Context, messageID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.MessageReaction{}).
		Where("message_id = ?", messageID).
		Count(&count).Error
	return count, err
}
