package handler

import (
	"context"
	"errors"
	"strconv"

	"chat-system/internal/model"
	"chat-system/internal/repository"
	"chat-system/internal/service"
	"chat-system/pkg/jwt"
	"chat-system/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// MessagePoster 持久化并广播消息（聊天Hub）
type MessagePoster interface {
	PostMessage(ctx context.Context, author jwt.Identity, content string) (*service.PersistedMessage, error)
}

// MessageReader 按ID读取消息
type MessageReader interface {
	GetByID(ctx context.Context, id uint) (*model.Message, error)
}

// ReactionCounter 统计消息上的回应
type ReactionCounter interface {
	CountByMessage(ctx context.Context, messageID uint) (int64, error)
}

// MessageDetail 单条消息详情
type MessageDetail struct {
	service.PersistedMessage
	ReactionCount int64 `json:"reactionCount"`
}

// MessageHandler 消息处理器
type MessageHandler struct {
	poster    MessagePoster
	messages  MessageReader
	reactions ReactionCounter
	logger    *zap.Logger
}

// NewMessageHandler 创建MessageHandler实例
func NewMessageHandler(poster MessagePoster, messages MessageReader, reactions ReactionCounter, logger *zap.Logger) *MessageHandler {
	return &MessageHandler{
		poster:    poster,
		messages:  messages,
		reactions: reactions,
		logger:    logger,
	}
}

// SendMessage 通过HTTP发送消息，与Hub中的 SendMessage 走同一条持久化+广播路径
func (h *MessageHandler) SendMessage(c *gin.Context) {
	type req struct {
		Content string `json:"content" binding:"required"`
	}
	var r req
	if err := c.ShouldBindJSON(&r); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	author := jwt.Identity{UserID: jwt.GetUserID(c), Username: jwt.GetUsername(c)}
	message, err := h.poster.PostMessage(c.Request.Context(), author, r.Content)
	switch {
	case err == nil:
	case errors.Is(err, service.ErrValidation):
		response.BadRequest(c, err.Error())
		return
	default:
		h.logger.Error("发送消息失败", zap.Uint("user_id", author.UserID), zap.Error(err))
		response.InternalError(c, "消息发送失败")
		return
	}

	response.SuccessWithMessage(c, "消息发送成功", message)
}

// GetMessage 获取单条消息及其回应数量
func (h *MessageHandler) GetMessage(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("message_id"), 10, 32)
	if err != nil || id == 0 {
		response.BadRequest(c, "invalid message_id")
		return
	}
	ctx := c.Request.Context()

	message, err := h.messages.GetByID(ctx, uint(id))
	if errors.Is(err, repository.ErrMessageNotFound) {
		response.NotFound(c, "消息不存在")
		return
	}
	if err != nil {
		response.InternalError(c, "获取消息失败")
		return
	}

	count, err := h.reactions.CountByMessage(ctx, message.ID)
	if err != nil {
		response.InternalError(c, "获取消息失败")
		return
	}

	response.Success(c, &MessageDetail{
		PersistedMessage: service.PersistedMessage{
			ID:        message.ID,
			Content:   message.Content,
			UserID:    message.UserID,
			Username:  message.User.Username,
			CreatedAt: service.FormatTimestamp(message.CreatedAt),
		},
		ReactionCount: count,
	})
}
