package websocket

import (
	"sync"
	"time"

	"chat-system/config"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Client 一条WebSocket物理连接
// 读写各一个协程；send 缓冲满或连接关闭时丢弃帧，不阻塞广播方
type Client struct {
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	cfg    config.WebSocketConfig
	logger *zap.Logger
	onPong func()

	closeOnce sync.Once
}

// NewClient 包装已升级的连接
func NewClient(conn *websocket.Conn, cfg config.WebSocketConfig, logger *zap.Logger) *Client {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 256
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 2 * cfg.PingInterval
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	return &Client{
		conn:   conn,
		send:   make(chan []byte, cfg.SendBuffer),
		done:   make(chan struct{}),
		cfg:    cfg,
		logger: logger,
	}
}

// Send 非阻塞入队
func (c *Client) Send(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- frame:
		return true
	case <-c.done:
		return false
	default:
		c.logger.Warn("发送缓冲已满，丢弃消息")
		return false
	}
}

// OnPong 收到pong时回调，需在 readPump 之前设置
func (c *Client) OnPong(fn func()) {
	c.onPong = fn
}

// Close 通知写协程发送关闭帧并断开，可重复调用
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// writePump 写协程 + 定时发送ping心跳
func (c *Client) writePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Debug("写入消息失败", zap.Error(err))
				c.Close()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(c.cfg.WriteTimeout)); err != nil {
				c.logger.Debug("发送ping失败", zap.Error(err))
				c.Close()
				return
			}
		case <-c.done:
			c.drain()
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.cfg.WriteTimeout))
			return
		}
	}
}

// drain 关闭前尽量写出已入队的帧
func (c *Client) drain() {
	for {
		select {
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		default:
			return
		}
	}
}

// readPump 读协程，按到达顺序同步处理每一帧
// 超时未收到任何读事件（包括pong）则断开
func (c *Client) readPump(handle func(frame []byte)) error {
	if c.cfg.MaxMessageSize > 0 {
		c.conn.SetReadLimit(c.cfg.MaxMessageSize)
	}
	_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		if c.onPong != nil {
			c.onPong()
		}
		return c.conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	})

	for {
		messageType, payload, err := c.conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		if messageType != websocket.TextMessage {
			continue
		}
		handle(payload)
	}
}
