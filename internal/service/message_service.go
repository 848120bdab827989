//go:generate go run go.uber.org/mock/mockgen -source=message_service.go -destination=../mocks/mock_message_store.go -package=mocks
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"chat-system/config"
	"chat-system/internal/model"

	"github.com/go-playground/validator/v10"
)

// TimestampLayout ISO-8601 UTC，毫秒精度
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// MessageStore 消息持久化
type MessageStore interface {
	InsertMessage(ctx context.Context, message *model.Message) error
}

// PersistedMessage 已落库的消息快照，用于广播
type PersistedMessage struct {
	ID        uint   `json:"id"`
	Content   string `json:"content"`
	UserID    uint   `json:"userId"`
	Username  string `json:"username"`
	CreatedAt string `json:"createdAt"`
}

// MessageService 消息服务
type MessageService struct {
	store     MessageStore
	validate  *validator.Validate
	maxLength int
	now       func() time.Time
}

// NewMessageService 创建MessageService实例
func NewMessageService(store MessageStore, cfg config.ChatConfig) *MessageService {
	return &MessageService{
		store:     store,
		validate:  validator.New(),
		maxLength: cfg.MaxContentLength,
		now:       time.Now,
	}
}

// Send 校验并保存一条消息，返回带服务端ID与时间戳的快照
// 校验失败时不会访问存储
func (s *MessageService) Send(ctx context.Context, userID uint, username, content string) (*PersistedMessage, error) {
	if err := s.validateContent(content); err != nil {
		return nil, err
	}

	message := &model.Message{
		Content:   content,
		UserID:    userID,
		CreatedAt: s.now().UTC().Truncate(time.Millisecond),
	}
	if err := s.store.InsertMessage(ctx, message); err != nil {
		return nil, fmt.Errorf("%w: insert message: %v", ErrPersistence, err)
	}

	return &PersistedMessage{
		ID:        message.ID,
		Content:   message.Content,
		UserID:    message.UserID,
		Username:  username,
		CreatedAt: FormatTimestamp(message.CreatedAt),
	}, nil
}

func (s *MessageService) validateContent(content string) error {
	if err := s.validate.Var(strings.TrimSpace(content), "required"); err != nil {
		return fmt.Errorf("%w: message content must not be empty", ErrValidation)
	}
	if err := s.validate.Var(content, fmt.Sprintf("max=%d", s.maxLength)); err != nil {
		return fmt.Errorf("%w: message content exceeds %d characters", ErrValidation, s.maxLength)
	}
	return nil
}

// FormatTimestamp 按 TimestampLayout 输出UTC时间
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}
