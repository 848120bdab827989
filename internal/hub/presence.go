package hub

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// StatusStore 持久化 isOnline 缓存
type StatusStore interface {
	SaveUserOnlineStatus(ctx context.Context, userID uint, online bool) error
}

// PresenceMirror 在线状态镜像（Redis），可为空
type PresenceMirror interface {
	MarkOnline(ctx context.Context, userID uint, username string) error
	MarkOffline(ctx context.Context, userID uint) error
	Refresh(ctx context.Context, userID uint) error
}

// PresenceTracker 根据注册表计数变化推导上下线
// 同一用户的转换通过用户级锁串行化，不同用户互不阻塞
type PresenceTracker struct {
	registry    *Registry
	broadcaster *Broadcaster
	store       StatusStore
	mirror      PresenceMirror
	logger      *zap.Logger
	locks       userLocks
}

// NewPresenceTracker 创建在线状态跟踪器
func NewPresenceTracker(registry *Registry, broadcaster *Broadcaster, store StatusStore, mirror PresenceMirror, logger *zap.Logger) *PresenceTracker {
	return &PresenceTracker{
		registry:    registry,
		broadcaster: broadcaster,
		store:       store,
		mirror:      mirror,
		logger:      logger,
		locks:       userLocks{locks: make(map[uint]*userLock)},
	}
}

// Connect 注册连接；0->1 时持久化上线并通知其他连接，最后给调用方发送在线列表
func (p *PresenceTracker) Connect(ctx context.Context, conn Connection) {
	unlock := p.locks.lock(conn.UserID)
	defer unlock()

	if p.registry.Register(conn) == 1 {
		p.persist(ctx, conn.UserID, true)
		if p.mirror != nil {
			if err := p.mirror.MarkOnline(ctx, conn.UserID, conn.Username); err != nil {
				p.logger.Warn("同步Redis在线状态失败", zap.Uint("user_id", conn.UserID), zap.Error(err))
			}
		}
		p.broadcaster.Broadcast(EventUserConnected, conn.Username, conn.ID)
	}

	// 在自身注册之后计算，保证列表恰好包含自己一次
	p.broadcaster.SendTo(conn.ID, EventCurrentUsers, p.registry.DistinctOnlineUsernames())
}

// Disconnect 注销连接；最后一个连接断开时持久化离线并广播
// 连接不存在时返回 false，可重复调用
func (p *PresenceTracker) Disconnect(ctx context.Context, connID string) (Connection, bool) {
	conn, ok := p.registry.Lookup(connID)
	if !ok {
		return Connection{}, false
	}

	unlock := p.locks.lock(conn.UserID)
	defer unlock()

	conn, remaining, ok := p.registry.Unregister(connID)
	if !ok {
		return Connection{}, false
	}
	if remaining > 0 {
		return conn, true
	}

	p.persist(ctx, conn.UserID, false)
	if p.mirror != nil {
		if err := p.mirror.MarkOffline(ctx, conn.UserID); err != nil {
			p.logger.Warn("清除Redis在线状态失败", zap.Uint("user_id", conn.UserID), zap.Error(err))
		}
	}
	p.broadcaster.Broadcast(EventUserDisconnected, conn.Username, "")
	return conn, true
}

// Refresh 心跳续期，仅影响Redis镜像
// 镜像记录已过期但用户仍有连接时重新写入
func (p *PresenceTracker) Refresh(ctx context.Context, userID uint, username string) {
	if p.mirror == nil {
		return
	}
	err := p.mirror.Refresh(ctx, userID)
	if err == nil {
		return
	}

	unlock := p.locks.lock(userID)
	defer unlock()
	if p.registry.ConnectionsForUser(userID) == 0 {
		return
	}
	if err := p.mirror.MarkOnline(ctx, userID, username); err != nil {
		p.logger.Debug("重新写入Redis在线状态失败", zap.Uint("user_id", userID), zap.Error(err))
	}
}

// persist isOnline 只是缓存，失败只记录日志
func (p *PresenceTracker) persist(ctx context.Context, userID uint, online bool) {
	if p.store == nil {
		return
	}
	if err := p.store.SaveUserOnlineStatus(ctx, userID, online); err != nil {
		p.logger.Error("保存用户在线状态失败",
			zap.Uint("user_id", userID),
			zap.Bool("online", online),
			zap.Error(err),
		)
	}
}

type userLock struct {
	sync.Mutex
	refs int
}

// userLocks 按用户ID分配的互斥锁，无人持有时回收
type userLocks struct {
	mu    sync.Mutex
	locks map[uint]*userLock
}

func (l *userLocks) lock(userID uint) func() {
	l.mu.Lock()
	ul, ok := l.locks[userID]
	if !ok {
		ul = &userLock{}
		l.locks[userID] = ul
	}
	ul.refs++
	l.mu.Unlock()

	ul.Lock()
	return func() {
		ul.Unlock()
		l.mu.Lock()
		ul.refs--
		if ul.refs == 0 {
			delete(l.locks, userID)
		}
		l.mu.Unlock()
	}
}
