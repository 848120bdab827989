package websocket

import (
	"errors"
	"net/http"

	"chat-system/config"
	"chat-system/internal/hub"
	"chat-system/pkg/jwt"
	"chat-system/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// Handler 聊天Hub入口：先认证再升级，认证失败直接返回401
type Handler struct {
	hub      *hub.Hub
	cfg      config.WebSocketConfig
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewHandler 创建Hub处理器
func NewHandler(h *hub.Hub, cfg config.WebSocketConfig, logger *zap.Logger) *Handler {
	return &Handler{
		hub: h,
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(cfg.AllowedOrigins),
			Subprotocols:    []string{jwt.TokenSubprotocol}, // 只回显协议名，不回显令牌
		},
		logger: logger,
	}
}

// originChecker 未配置时不限制Origin
func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if len(allowed) == 0 || origin == "" {
			return true
		}
		return lo.Contains(allowed, origin)
	}
}

// ServeHub Gin路由处理函数
func (h *Handler) ServeHub(c *gin.Context) {
	ctx := c.Request.Context()

	session, err := h.hub.NewSession()
	if err != nil {
		if errors.Is(err, hub.ErrHubClosed) {
			response.Error(c, http.StatusServiceUnavailable, "服务正在关闭")
			return
		}
		response.InternalError(c, "创建会话失败")
		return
	}

	token := jwt.TokenFromRequest(c.Request, h.cfg.Path)
	if err := session.Authenticate(ctx, token); err != nil {
		h.logger.Info("Hub认证失败",
			zap.String("client_ip", c.ClientIP()),
			zap.Error(err),
		)
		session.Close(ctx)
		response.Unauthorized(c, "token无效或已过期")
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade 已写回错误响应
		h.logger.Warn("WebSocket升级失败", zap.Error(err))
		session.Close(ctx)
		return
	}

	identity := session.Identity()
	logger := h.logger.With(
		zap.String("conn_id", session.ID()),
		zap.Uint("user_id", identity.UserID),
		zap.String("username", identity.Username),
	)

	client := NewClient(conn, h.cfg, logger)
	go client.writePump()

	if err := session.Activate(ctx, client); err != nil {
		logger.Warn("激活会话失败", zap.Error(err))
		client.Close()
		return
	}
	defer session.Close(ctx)
	logger.Info("客户端已连接")

	// 只回pong不发Heartbeat帧的客户端也要续期
	client.OnPong(func() {
		_ = session.Heartbeat(ctx)
	})

	err = client.readPump(func(frame []byte) {
		if err := session.Dispatch(ctx, frame); err != nil {
			logger.Debug("处理客户端消息失败", zap.Error(err))
		}
	})
	if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		logger.Warn("连接异常断开", zap.Error(err))
	}
	logger.Info("客户端已断开")
}
