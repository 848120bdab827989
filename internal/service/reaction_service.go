//go:generate go run go.uber.org/mock/mockgen -source=reaction_service.go -destination=../mocks/mock_reaction_store.go -package=mocks
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"chat-system/config"
	"chat-system/internal/model"
	"chat-system/internal/repository"

	"github.com/go-playground/validator/v10"
)

// ReactionStore 表情回应持久化
type ReactionStore interface {
	FindReaction(ctx context.Context, messageID, userID uint, emoji string) (*model.MessageReaction, error)
	InsertReaction(ctx context.Context, reaction *model.MessageReaction) error
	DeleteReaction(ctx context.Context, messageID, userID uint, emoji string) (bool, error)
}

// ReactionEvent 回应变更事件；移除事件不带用户名
type ReactionEvent struct {
	MessageID uint   `json:"messageId"`
	Emoji     string `json:"emoji"`
	Username  string `json:"username,omitempty"`
	UserID    uint   `json:"userId"`
}

// ReactionService 表情回应服务，添加与移除都是幂等的
type ReactionService struct {
	store    ReactionStore
	validate *validator.Validate
	maxEmoji int
	now      func() time.Time
}

// NewReactionService 创建ReactionService实例
func NewReactionService(store ReactionStore, cfg config.ChatConfig) *ReactionService {
	return &ReactionService{
		store:    store,
		validate: validator.New(),
		maxEmoji: cfg.MaxEmojiLength,
		now:      time.Now,
	}
}

// Add 添加回应；已存在时返回 nil 事件（无需广播）
func (s *ReactionService) Add(ctx context.Context, messageID, userID uint, username, emoji string) (*ReactionEvent, error) {
	emoji = strings.TrimSpace(emoji)
	if err := s.validateReaction(messageID, emoji); err != nil {
		return nil, err
	}

	if _, err := s.store.FindReaction(ctx, messageID, userID, emoji); err == nil {
		return nil, nil
	} else if !errors.Is(err, repository.ErrReactionNotFound) {
		return nil, fmt.Errorf("%w: find reaction: %v", ErrPersistence, err)
	}

	reaction := &model.MessageReaction{
		MessageID: messageID,
		UserID:    userID,
		Emoji:     emoji,
		CreatedAt: s.now().UTC(),
	}
	err := s.store.InsertReaction(ctx, reaction)
	switch {
	case err == nil:
		return &ReactionEvent{MessageID: messageID, Emoji: emoji, Username: username, UserID: userID}, nil
	case errors.Is(err, repository.ErrDuplicateReaction):
		// 并发添加：另一方先写入，本次视为成功
		return nil, nil
	case errors.Is(err, repository.ErrMessageNotFound):
		return nil, fmt.Errorf("%w: message %d does not exist", ErrValidation, messageID)
	}

	// 部分驱动不区分唯一约束错误，再查一次确认是否已被并发写入
	if _, findErr := s.store.FindReaction(ctx, messageID, userID, emoji); findErr == nil {
		return nil, nil
	}
	return nil, fmt.Errorf("%w: insert reaction: %v", ErrPersistence, err)
}

// Remove 移除回应；不存在时返回 nil 事件且不报错
func (s *ReactionService) Remove(ctx context.Context, messageID, userID uint, emoji string) (*ReactionEvent, error) {
	emoji = strings.TrimSpace(emoji)
	if err := s.validateReaction(messageID, emoji); err != nil {
		return nil, err
	}

	deleted, err := s.store.DeleteReaction(ctx, messageID, userID, emoji)
	if err != nil {
		return nil, fmt.Errorf("%w: delete reaction: %v", ErrPersistence, err)
	}
	if !deleted {
		return nil, nil
	}
	return &ReactionEvent{MessageID: messageID, Emoji: emoji, UserID: userID}, nil
}

// validateReaction 校验的 emoji 必须就是要落库的值
func (s *ReactionService) validateReaction(messageID uint, emoji string) error {
	if messageID == 0 {
		return fmt.Errorf("%w: messageId is required", ErrValidation)
	}
	if err := s.validate.Var(emoji, fmt.Sprintf("required,max=%d", s.maxEmoji)); err != nil {
		return fmt.Errorf("%w: emoji must be 1-%d characters", ErrValidation, s.maxEmoji)
	}
	return nil
}
