package jwt

import (
	"net/http"
	"strings"

	"chat-system/pkg/logger"
	"chat-system/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	// ContextUserIDKey 用户ID在gin.Context中的键名
	ContextUserIDKey = "user_id"
	// ContextUsernameKey 用户名在gin.Context中的键名
	ContextUsernameKey = "username"

	// QueryTokenKey Hub路径上允许使用的query参数名
	QueryTokenKey = "access_token"
	// TokenSubprotocol 子协议形式 "access_token, <token>" 中的协议名，握手时只回显它
	TokenSubprotocol = "access_token"
)

// TokenFromRequest 提取Bearer令牌
// 普通接口只接受 Authorization 请求头；只有 hubPath 上允许从
// query 参数或 Sec-WebSocket-Protocol 中读取（浏览器WebSocket无法设置请求头）
func TokenFromRequest(r *http.Request, hubPath string) string {
	if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	}
	if hubPath == "" || r.URL.Path != hubPath {
		return ""
	}
	if token := r.URL.Query().Get(QueryTokenKey); token != "" {
		return token
	}
	return subprotocolToken(r)
}

// subprotocolToken 取 TokenSubprotocol 之后的那一项
func subprotocolToken(r *http.Request) string {
	var protocols []string
	for _, value := range r.Header.Values("Sec-WebSocket-Protocol") {
		for _, p := range strings.Split(value, ",") {
			if p = strings.TrimSpace(p); p != "" {
				protocols = append(protocols, p)
			}
		}
	}
	for i := 0; i+1 < len(protocols); i++ {
		if protocols[i] == TokenSubprotocol {
			return protocols[i+1]
		}
	}
	return ""
}

// AuthMiddleware JWT认证中间件
// 从请求头中提取Authorization: Bearer <token>
// 验证token并将用户信息存入gin.Context
func (s *JWTService) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := TokenFromRequest(c.Request, "")
		if tokenString == "" {
			response.Unauthorized(c, "缺少Authorization请求头或格式错误，应为Bearer <token>")
			c.Abort()
			return
		}

		identity, err := s.VerifyToken(tokenString)
		if err != nil {
			logger.Warn("JWT验证失败",
				zap.Error(err),
				zap.String("path", c.Request.URL.Path),
			)
			response.Unauthorized(c, "token无效或已过期")
			c.Abort()
			return
		}

		// 将用户信息存入Context
		c.Set(ContextUserIDKey, identity.UserID)
		c.Set(ContextUsernameKey, identity.Username)

		logger.Debug("用户访问接口",
			zap.Uint("user_id", identity.UserID),
			zap.String("username", identity.Username),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
		)

		c.Next()
	}
}

// GetUserID 从gin.Context中获取用户ID
func GetUserID(c *gin.Context) uint {
	if userID, exists := c.Get(ContextUserIDKey); exists {
		if id, ok := userID.(uint); ok {
			return id
		}
	}
	return 0
}

// GetUsername 从gin.Context中获取用户名
func GetUsername(c *gin.Context) string {
	if username, exists := c.Get(ContextUsernameKey); exists {
		if name, ok := username.(string); ok {
			return name
		}
	}
	return ""
}
