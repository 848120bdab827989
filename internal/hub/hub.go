package hub

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"chat-system/internal/model"
	"chat-system/internal/service"
	"chat-system/pkg/jwt"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

var (
	// ErrAuthentication 令牌缺失、无效或身份声明不完整
	ErrAuthentication = errors.New("authentication failed")
	// ErrSessionNotActive 非 Active 状态下的动作一律拒绝
	ErrSessionNotActive = errors.New("session is not active")
	// ErrInvalidTransition 状态机不允许的转换
	ErrInvalidTransition = errors.New("invalid session transition")
	// ErrMalformedFrame 无法解码或未知类型的帧
	ErrMalformedFrame = errors.New("malformed frame")
	// ErrHubClosed 关闭后不再接受新会话
	ErrHubClosed = errors.New("hub is shut down")
)

// TokenVerifier 凭证服务
type TokenVerifier interface {
	VerifyToken(token string) (jwt.Identity, error)
}

// UserFinder 认证时确认用户仍然存在
type UserFinder interface {
	FindUser(ctx context.Context, id uint) (*model.User, error)
}

// MessageSender 消息持久化
type MessageSender interface {
	Send(ctx context.Context, userID uint, username, content string) (*service.PersistedMessage, error)
}

// ReactionToggler 回应增删
type ReactionToggler interface {
	Add(ctx context.Context, messageID, userID uint, username, emoji string) (*service.ReactionEvent, error)
	Remove(ctx context.Context, messageID, userID uint, emoji string) (*service.ReactionEvent, error)
}

// Options Hub 依赖；Users、Status、Mirror 可为空
type Options struct {
	Verifier  TokenVerifier
	Users     UserFinder
	Messages  MessageSender
	Reactions ReactionToggler
	Status    StatusStore
	Mirror    PresenceMirror
	Logger    *zap.Logger
}

// Hub 实时连接中心：会话、注册表、在线状态与广播
type Hub struct {
	verifier  TokenVerifier
	users     UserFinder
	messages  MessageSender
	reactions ReactionToggler

	registry    *Registry
	broadcaster *Broadcaster
	presence    *PresenceTracker
	logger      *zap.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

// New 创建 Hub
func New(opts Options) *Hub {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	registry := NewRegistry()
	broadcaster := NewBroadcaster(registry, logger)

	return &Hub{
		verifier:    opts.Verifier,
		users:       opts.Users,
		messages:    opts.Messages,
		reactions:   opts.Reactions,
		registry:    registry,
		broadcaster: broadcaster,
		presence:    NewPresenceTracker(registry, broadcaster, opts.Status, opts.Mirror, logger),
		logger:      logger,
		sessions:    make(map[string]*Session),
	}
}

// NewSession 为一条新连接创建处于 Connecting 状态的会话
func (h *Hub) NewSession() (*Session, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrHubClosed
	}

	s := &Session{id: uuid.NewString(), hub: h, state: StateConnecting}
	h.sessions[s.id] = s
	return s, nil
}

func (h *Hub) forget(id string) {
	h.mu.Lock()
	delete(h.sessions, id)
	h.mu.Unlock()
}

func (h *Hub) authenticate(ctx context.Context, token string) (jwt.Identity, error) {
	if token == "" {
		return jwt.Identity{}, fmt.Errorf("%w: missing token", ErrAuthentication)
	}
	identity, err := h.verifier.VerifyToken(token)
	if err != nil {
		return jwt.Identity{}, fmt.Errorf("%w: %v", ErrAuthentication, err)
	}
	if identity.UserID == 0 || identity.Username == "" {
		return jwt.Identity{}, fmt.Errorf("%w: missing identity claims", ErrAuthentication)
	}
	if h.users != nil {
		if _, err := h.users.FindUser(ctx, identity.UserID); err != nil {
			return jwt.Identity{}, fmt.Errorf("%w: user %d: %v", ErrAuthentication, identity.UserID, err)
		}
	}
	return identity, nil
}

// PostMessage 持久化一条消息并广播给所有连接，供会话与HTTP接口共用
func (h *Hub) PostMessage(ctx context.Context, author jwt.Identity, content string) (*service.PersistedMessage, error) {
	msg, err := h.messages.Send(ctx, author.UserID, author.Username, content)
	if err != nil {
		return nil, err
	}
	h.broadcaster.Broadcast(EventReceiveMessage, msg, "")
	return msg, nil
}

// Registry 只读用途（在线列表接口）
func (h *Hub) Registry() *Registry {
	return h.registry
}

// OnlineUsernames 当前在线用户名（排序、去重）
func (h *Hub) OnlineUsernames() []string {
	return h.registry.DistinctOnlineUsernames()
}

// Shutdown 关闭所有会话，每个会话都走正常的下线流程
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closed = true
	sessions := lo.Values(h.sessions)
	h.mu.Unlock()

	h.logger.Info("开始关闭连接中心", zap.Int("sessions", len(sessions)))
	for _, s := range sessions {
		s.Close(ctx)
	}

	// 传输层的读循环可能仍在收尾，等待注册表清空
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for h.registry.Len() > 0 {
		select {
		case <-ctx.Done():
			return fmt.Errorf("关闭连接中心超时: %w", ctx.Err())
		case <-ticker.C:
		}
	}
	h.logger.Info("连接中心已关闭")
	return nil
}

// ConnectionsForUser 用户当前的连接数
func (h *Hub) ConnectionsForUser(userID uint) int {
	return h.registry.ConnectionsForUser(userID)
}
