package hub

import (
	"encoding/json"
)

// 入站事件（客户端 -> 服务端），仅在 Active 状态下有效
const (
	EventSendMessage    = "SendMessage"
	EventAddReaction    = "AddReaction"
	EventRemoveReaction = "RemoveReaction"
	EventHeartbeat      = "Heartbeat"
)

// 出站事件（服务端 -> 客户端）
const (
	EventCurrentUsers     = "CurrentUsers"
	EventUserConnected    = "UserConnected"
	EventUserDisconnected = "UserDisconnected"
	EventReceiveMessage   = "ReceiveMessage"
	EventReactionAdded    = "ReactionAdded"
	EventReactionRemoved  = "ReactionRemoved"
	EventError            = "Error"
)

// Envelope 线上帧格式 {"type": "...", "data": {...}}
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// SendMessagePayload SendMessage 入参
type SendMessagePayload struct {
	Content string `json:"content"`
}

// ReactionPayload AddReaction / RemoveReaction 入参
type ReactionPayload struct {
	MessageID uint   `json:"messageId"`
	Emoji     string `json:"emoji"`
}

// ErrorPayload 仅发给发起动作的连接
type ErrorPayload struct {
	Action  string `json:"action"`
	Message string `json:"message"`
}

type outbound struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// EncodeFrame 编码出站帧
func EncodeFrame(eventType string, data interface{}) ([]byte, error) {
	return json.Marshal(outbound{Type: eventType, Data: data})
}
