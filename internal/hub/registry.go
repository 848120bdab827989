package hub

import (
	"sort"
	"sync"

	"github.com/samber/lo"
)

// Sink 单个连接的出站通道
// Send 不得阻塞，连接已关闭或缓冲已满时返回 false
type Sink interface {
	Send(frame []byte) bool
	Close()
}

// Connection 一条已认证的物理连接
type Connection struct {
	ID       string
	UserID   uint
	Username string
	Sink     Sink
}

// Registry 连接ID到用户身份的映射，是"谁在线"的唯一来源
// 所有方法并发安全，调用方无需额外加锁
type Registry struct {
	mu      sync.RWMutex
	conns   map[string]Connection
	perUser map[uint]int
}

// NewRegistry 创建空注册表
func NewRegistry() *Registry {
	return &Registry{
		conns:   make(map[string]Connection),
		perUser: make(map[uint]int),
	}
}

// Register 插入或覆盖连接，返回该用户注册后的连接数
// 同一ID重复注册按后写覆盖处理，用户计数保持一致
func (r *Registry) Register(conn Connection) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.conns[conn.ID]; ok {
		r.decrement(prev.UserID)
	}
	r.conns[conn.ID] = conn
	r.perUser[conn.UserID]++
	return r.perUser[conn.UserID]
}

// Unregister 移除连接并返回原绑定及该用户剩余连接数
// 连接不存在时 ok 为 false，可重复调用
func (r *Registry) Unregister(id string) (conn Connection, remaining int, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok = r.conns[id]
	if !ok {
		return Connection{}, 0, false
	}
	delete(r.conns, id)
	r.decrement(conn.UserID)
	return conn, r.perUser[conn.UserID], true
}

func (r *Registry) decrement(userID uint) {
	if r.perUser[userID] <= 1 {
		delete(r.perUser, userID)
		return
	}
	r.perUser[userID]--
}

// Lookup 按ID查找连接
func (r *Registry) Lookup(id string) (Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[id]
	return conn, ok
}

// ConnectionsForUser 用户当前的连接数
func (r *Registry) ConnectionsForUser(userID uint) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.perUser[userID]
}

// DistinctOnlineUsernames 在线用户名快照（去重、排序）
func (r *Registry) DistinctOnlineUsernames() []string {
	r.mu.RLock()
	names := lo.Uniq(lo.MapToSlice(r.conns, func(_ string, c Connection) string {
		return c.Username
	}))
	r.mu.RUnlock()

	sort.Strings(names)
	return names
}

// Snapshot 当前所有连接的快照，用于广播
func (r *Registry) Snapshot() []Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Values(r.conns)
}

// Len 连接总数
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
