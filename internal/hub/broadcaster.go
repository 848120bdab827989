package hub

import (
	"go.uber.org/zap"
)

// Broadcaster 遍历注册表逐个发送，单个连接失败不影响其他连接
type Broadcaster struct {
	registry *Registry
	logger   *zap.Logger
}

// NewBroadcaster 创建广播器
func NewBroadcaster(registry *Registry, logger *zap.Logger) *Broadcaster {
	return &Broadcaster{registry: registry, logger: logger}
}

// Broadcast 发送给所有连接，exceptID 非空时跳过该连接；返回成功投递数
func (b *Broadcaster) Broadcast(eventType string, data interface{}, exceptID string) int {
	frame, err := EncodeFrame(eventType, data)
	if err != nil {
		b.logger.Error("编码广播事件失败", zap.String("event", eventType), zap.Error(err))
		return 0
	}

	delivered := 0
	for _, conn := range b.registry.Snapshot() {
		if conn.ID == exceptID {
			continue
		}
		if conn.Sink.Send(frame) {
			delivered++
			continue
		}
		b.logger.Warn("广播投递失败",
			zap.String("event", eventType),
			zap.String("conn_id", conn.ID),
			zap.Uint("user_id", conn.UserID),
		)
	}
	return delivered
}

// SendTo 只发送给指定连接
func (b *Broadcaster) SendTo(connID, eventType string, data interface{}) bool {
	conn, ok := b.registry.Lookup(connID)
	if !ok {
		return false
	}
	frame, err := EncodeFrame(eventType, data)
	if err != nil {
		b.logger.Error("编码事件失败", zap.String("event", eventType), zap.Error(err))
		return false
	}
	return conn.Sink.Send(frame)
}
