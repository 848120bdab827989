package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"chat-system/internal/service"
	"chat-system/pkg/jwt"

	"go.uber.org/zap"
)

// State 会话状态，只能单向推进
type State int

const (
	StateConnecting State = iota
	StateAuthenticated
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Session 单个连接的编排者：Connecting -> Authenticated -> Active -> Closed
// 身份在认证时确定，之后不可变
type Session struct {
	id  string
	hub *Hub

	mu       sync.Mutex
	state    State
	identity jwt.Identity
	sink     Sink

	closeOnce sync.Once
}

// ID 连接ID
func (s *Session) ID() string { return s.id }

// State 当前状态
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Identity 认证后的身份；未认证时为零值
func (s *Session) Identity() jwt.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// Authenticate 校验令牌；失败时会话直接进入 Closed，不会产生注册表条目
func (s *Session) Authenticate(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateConnecting {
		return fmt.Errorf("%w: authenticate in state %s", ErrInvalidTransition, s.state)
	}

	identity, err := s.hub.authenticate(ctx, token)
	if err != nil {
		s.state = StateClosed
		return err
	}
	s.identity = identity
	s.state = StateAuthenticated
	return nil
}

// Activate 绑定出站通道并完成上线
// 持有会话锁直到注册完成，避免与 Close 交错导致注册表残留
func (s *Session) Activate(ctx context.Context, sink Sink) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateAuthenticated {
		return fmt.Errorf("%w: activate in state %s", ErrInvalidTransition, s.state)
	}
	s.sink = sink
	s.state = StateActive

	s.hub.presence.Connect(ctx, Connection{
		ID:       s.id,
		UserID:   s.identity.UserID,
		Username: s.identity.Username,
		Sink:     sink,
	})
	return nil
}

// Close 进入终态并执行一次下线流程，可重复调用
// 已提交的写入不会回滚；下线流程不受调用方 ctx 取消影响
func (s *Session) Close(ctx context.Context) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		prev := s.state
		s.state = StateClosed
		sink := s.sink
		s.mu.Unlock()

		if prev == StateActive {
			s.hub.presence.Disconnect(context.WithoutCancel(ctx), s.id)
		}
		s.hub.forget(s.id)
		if sink != nil {
			sink.Close()
		}
	})
}

func (s *Session) activeIdentity() (jwt.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return jwt.Identity{}, fmt.Errorf("%w: state %s", ErrSessionNotActive, s.state)
	}
	return s.identity, nil
}

// SendMessage 持久化后广播给所有连接（包括自己）
func (s *Session) SendMessage(ctx context.Context, content string) error {
	identity, err := s.activeIdentity()
	if err != nil {
		return err
	}

	_, err = s.hub.PostMessage(ctx, identity, content)
	return err
}

// AddReaction 已存在的回应不会再次广播
func (s *Session) AddReaction(ctx context.Context, messageID uint, emoji string) error {
	identity, err := s.activeIdentity()
	if err != nil {
		return err
	}

	event, err := s.hub.reactions.Add(ctx, messageID, identity.UserID, identity.Username, emoji)
	if err != nil {
		return err
	}
	if event != nil {
		s.hub.broadcaster.Broadcast(EventReactionAdded, event, "")
	}
	return nil
}

// RemoveReaction 目标不存在时静默忽略
func (s *Session) RemoveReaction(ctx context.Context, messageID uint, emoji string) error {
	identity, err := s.activeIdentity()
	if err != nil {
		return err
	}

	event, err := s.hub.reactions.Remove(ctx, messageID, identity.UserID, emoji)
	if err != nil {
		return err
	}
	if event != nil {
		s.hub.broadcaster.Broadcast(EventReactionRemoved, event, "")
	}
	return nil
}

// Heartbeat 续期Redis中的在线状态，Heartbeat帧和pong都会触发
func (s *Session) Heartbeat(ctx context.Context) error {
	identity, err := s.activeIdentity()
	if err != nil {
		return err
	}
	s.hub.presence.Refresh(ctx, identity.UserID, identity.Username)
	return nil
}

// Dispatch 解码一帧入站数据并执行对应动作
// 校验与持久化错误以 Error 帧回给本连接，其他连接不受影响
func (s *Session) Dispatch(ctx context.Context, frame []byte) error {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	var err error
	switch env.Type {
	case EventSendMessage:
		var p SendMessagePayload
		if err = decodePayload(env.Data, &p); err == nil {
			err = s.SendMessage(ctx, p.Content)
		}
	case EventAddReaction:
		var p ReactionPayload
		if err = decodePayload(env.Data, &p); err == nil {
			err = s.AddReaction(ctx, p.MessageID, p.Emoji)
		}
	case EventRemoveReaction:
		var p ReactionPayload
		if err = decodePayload(env.Data, &p); err == nil {
			err = s.RemoveReaction(ctx, p.MessageID, p.Emoji)
		}
	case EventHeartbeat:
		err = s.Heartbeat(ctx)
	default:
		return fmt.Errorf("%w: unknown type %q", ErrMalformedFrame, env.Type)
	}

	if err != nil {
		s.reportError(env.Type, err)
	}
	return err
}

func decodePayload(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: missing data", service.ErrValidation)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", service.ErrValidation, err)
	}
	return nil
}

// reportError 只把校验和持久化错误回给发起方
func (s *Session) reportError(action string, err error) {
	var message string
	switch {
	case errors.Is(err, service.ErrValidation):
		message = err.Error()
	case errors.Is(err, service.ErrPersistence):
		message = "temporarily unable to save, please retry"
	default:
		return
	}

	s.hub.logger.Warn("动作执行失败",
		zap.String("conn_id", s.id),
		zap.String("action", action),
		zap.Error(err),
	)
	s.hub.broadcaster.SendTo(s.id, EventError, ErrorPayload{Action: action, Message: message})
}
