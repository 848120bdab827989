package handler

import (
	"context"
	"errors"
	"strconv"

	"chat-system/internal/model"
	"chat-system/internal/repository"
	"chat-system/internal/service"
	"chat-system/pkg/jwt"
	"chat-system/pkg/redis"
	"chat-system/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// UserFinder 按ID查询用户
type UserFinder interface {
	FindUser(ctx context.Context, id uint) (*model.User, error)
}

// OnlineDirectory 连接注册表视图，在线状态以它为准
type OnlineDirectory interface {
	OnlineUsernames() []string
	ConnectionsForUser(userID uint) int
}

// PresenceReader Redis在线状态镜像，未启用Redis时为空
type PresenceReader interface {
	GetUserPresence(ctx context.Context, userID uint) (*redis.PresenceData, error)
}

type UserHandler struct {
	service  *service.UserService
	users    UserFinder
	online   OnlineDirectory
	presence PresenceReader
	logger   *zap.Logger
}

func NewUserHandler(s *service.UserService, users UserFinder, online OnlineDirectory, presence PresenceReader, logger *zap.Logger) *UserHandler {
	return &UserHandler{
		service:  s,
		users:    users,
		online:   online,
		presence: presence,
		logger:   logger,
	}
}

// Register 用户注册
func (h *UserHandler) Register(c *gin.Context) {
	type req struct {
		Username string `json:"username" binding:"required"`
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	var r req
	if err := c.ShouldBindJSON(&r); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	user, token, err := h.service.Register(c.Request.Context(), service.RegisterInput{
		Username: r.Username,
		Email:    r.Email,
		Password: r.Password,
	})
	switch {
	case err == nil:
	case errors.Is(err, service.ErrValidation):
		response.BadRequest(c, err.Error())
		return
	case errors.Is(err, service.ErrUsernameTaken), errors.Is(err, service.ErrEmailTaken):
		response.Conflict(c, err.Error())
		return
	default:
		h.logger.Error("注册失败", zap.String("username", r.Username), zap.Error(err))
		response.InternalError(c, "注册失败")
		return
	}

	response.SuccessWithMessage(c, "注册成功", &response.AuthResponse{
		User:        response.FilterUserInfo(user),
		AccessToken: token,
	})
}

// Login 用户登录
func (h *UserHandler) Login(c *gin.Context) {
	type req struct {
		UsernameOrEmail string `json:"usernameOrEmail" binding:"required"`
		Password        string `json:"password" binding:"required"`
	}
	var r req
	if err := c.ShouldBindJSON(&r); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	user, token, err := h.service.Login(c.Request.Context(), r.UsernameOrEmail, r.Password)
	switch {
	case err == nil:
	case errors.Is(err, service.ErrInvalidCredentials), errors.Is(err, service.ErrValidation):
		response.Unauthorized(c, "用户名或密码错误")
		return
	default:
		h.logger.Error("登录失败", zap.Error(err))
		response.InternalError(c, "登录失败")
		return
	}

	response.SuccessWithMessage(c, "登录成功", &response.AuthResponse{
		User:        response.FilterUserInfo(user),
		AccessToken: token,
	})
}

// GetProfile 获取当前用户资料（需要JWT认证）
func (h *UserHandler) GetProfile(c *gin.Context) {
	user, err := h.users.FindUser(c.Request.Context(), jwt.GetUserID(c))
	if errors.Is(err, repository.ErrUserNotFound) {
		response.NotFound(c, "用户不存在")
		return
	}
	if err != nil {
		response.InternalError(c, "获取用户资料失败")
		return
	}
	response.SuccessWithMessage(c, "获取用户资料成功", response.FilterUserInfo(user))
}

// GetOnlineUsers 当前在线用户名（需要JWT认证）
func (h *UserHandler) GetOnlineUsers(c *gin.Context) {
	names := h.online.OnlineUsernames()
	response.SuccessWithMessage(c, "获取在线用户成功", &response.OnlineUsersResponse{
		OnlineCount: len(names),
		Usernames:   names,
	})
}

// GetUserPresence 查询指定用户的在线详情（需要JWT认证）
// 是否在线以连接注册表为准，最后在线时间优先取Redis镜像
func (h *UserHandler) GetUserPresence(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("user_id"), 10, 32)
	if err != nil || id == 0 {
		response.BadRequest(c, "invalid user_id")
		return
	}
	userID := uint(id)
	ctx := c.Request.Context()

	result := &response.PresenceResponse{
		UserID: userID,
		Online: h.online.ConnectionsForUser(userID) > 0,
	}

	if h.presence != nil {
		presence, err := h.presence.GetUserPresence(ctx, userID)
		switch {
		case err == nil:
			result.Username = presence.Username
			result.Connected = presence.Connected
			result.LastSeen = presence.LastSeen.Format(response.TimeLayout)
			response.SuccessWithMessage(c, "获取用户在线状态成功", result)
			return
		case !errors.Is(err, redis.ErrPresenceNotFound):
			h.logger.Warn("读取Redis在线状态失败，回退到数据库", zap.Uint("user_id", userID), zap.Error(err))
		}
	}

	user, err := h.users.FindUser(ctx, userID)
	if errors.Is(err, repository.ErrUserNotFound) {
		response.NotFound(c, "用户不存在")
		return
	}
	if err != nil {
		response.InternalError(c, "获取用户在线状态失败")
		return
	}
	result.Username = user.Username
	result.Connected = result.Online
	if !user.LastSeen.IsZero() {
		result.LastSeen = user.LastSeen.Format(response.TimeLayout)
	}
	response.SuccessWithMessage(c, "获取用户在线状态成功", result)
}
