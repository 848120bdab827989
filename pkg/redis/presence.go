package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// 在线状态相关常量
const (
	PresenceKeyPrefix  = "chat:presence:user:" // 用户在线状态key前缀
	OnlineUsersKey     = "chat:online:users"   // 在线用户集合key
	DefaultPresenceTTL = 2 * time.Minute       // 在线状态TTL（2倍心跳周期）

	StatusOnline  = "online"
	StatusOffline = "offline"
)

var (
	// ErrPresenceNotFound 没有该用户的在线记录
	ErrPresenceNotFound = errors.New("presence not found")
	// ErrNotOnline 用户当前不在线，无法续期
	ErrNotOnline = errors.New("user is not online")
)

// PresenceData 在线状态数据
type PresenceData struct {
	UserID    uint      `json:"user_id"`
	Username  string    `json:"username"`
	Status    string    `json:"status"` // online/offline
	LastSeen  time.Time `json:"last_seen"`
	Connected bool      `json:"connected"` // 是否有活跃连接
}

// PresenceStore Redis中的在线状态镜像
// 权威数据在连接注册表中，这里只供外部查询，TTL兜底进程异常退出
type PresenceStore struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

// NewPresenceStore 创建在线状态镜像
func NewPresenceStore(c *redis.Client, ttl time.Duration) *PresenceStore {
	if ttl <= 0 {
		ttl = DefaultPresenceTTL
	}
	return &PresenceStore{client: c, ttl: ttl, now: time.Now}
}

func presenceKey(userID uint) string {
	return PresenceKeyPrefix + strconv.FormatUint(uint64(userID), 10)
}

// MarkOnline 写入在线状态（带TTL）并加入在线集合
func (p *PresenceStore) MarkOnline(ctx context.Context, userID uint, username string) error {
	data, err := json.Marshal(PresenceData{
		UserID:    userID,
		Username:  username,
		Status:    StatusOnline,
		LastSeen:  p.now().UTC(),
		Connected: true,
	})
	if err != nil {
		return fmt.Errorf("序列化在线状态失败: %w", err)
	}

	pipe := p.client.TxPipeline()
	pipe.Set(ctx, presenceKey(userID), data, p.ttl)
	pipe.SAdd(ctx, OnlineUsersKey, userID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("设置用户在线状态失败: %w", err)
	}
	return nil
}

// MarkOffline 记录最后在线时间并移出在线集合；离线记录不过期
func (p *PresenceStore) MarkOffline(ctx context.Context, userID uint) error {
	presence, err := p.GetUserPresence(ctx, userID)
	if err != nil && !errors.Is(err, ErrPresenceNotFound) {
		return err
	}
	if presence == nil {
		presence = &PresenceData{UserID: userID}
	}
	presence.Status = StatusOffline
	presence.Connected = false
	presence.LastSeen = p.now().UTC()

	data, err := json.Marshal(presence)
	if err != nil {
		return fmt.Errorf("序列化在线状态失败: %w", err)
	}

	pipe := p.client.TxPipeline()
	pipe.Set(ctx, presenceKey(userID), data, 0)
	pipe.SRem(ctx, OnlineUsersKey, userID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("设置用户离线状态失败: %w", err)
	}
	return nil
}

// Refresh 心跳续期（延长TTL）
func (p *PresenceStore) Refresh(ctx context.Context, userID uint) error {
	presence, err := p.GetUserPresence(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrPresenceNotFound) {
			return ErrNotOnline
		}
		return err
	}
	if !presence.Connected {
		return ErrNotOnline
	}

	if err := p.client.Expire(ctx, presenceKey(userID), p.ttl).Err(); err != nil {
		return fmt.Errorf("刷新用户在线状态失败: %w", err)
	}
	return nil
}

// GetUserPresence 获取用户在线状态
func (p *PresenceStore) GetUserPresence(ctx context.Context, userID uint) (*PresenceData, error) {
	data, err := p.client.Get(ctx, presenceKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrPresenceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("获取用户在线状态失败: %w", err)
	}

	var presence PresenceData
	if err := json.Unmarshal(data, &presence); err != nil {
		return nil, fmt.Errorf("反序列化在线状态失败: %w", err)
	}
	return &presence, nil
}

// OnlineUserIDs 在线集合中的用户ID
func (p *PresenceStore) OnlineUserIDs(ctx context.Context) ([]uint, error) {
	members, err := p.client.SMembers(ctx, OnlineUsersKey).Result()
	if err != nil {
		return nil, fmt.Errorf("获取在线用户列表失败: %w", err)
	}

	userIDs := make([]uint, 0, len(members))
	for _, member := range members {
		id, err := strconv.ParseUint(member, 10, 64)
		if err != nil {
			continue
		}
		userIDs = append(userIDs, uint(id))
	}
	return userIDs, nil
}

// CleanExpired 清理在线集合中TTL已过期的用户（定期任务），返回清理数量
func (p *PresenceStore) CleanExpired(ctx context.Context) (int, error) {
	userIDs, err := p.OnlineUserIDs(ctx)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, userID := range userIDs {
		exists, err := p.client.Exists(ctx, presenceKey(userID)).Result()
		if err != nil {
			return removed, fmt.Errorf("检查用户状态失败: %w", err)
		}
		if exists > 0 {
			continue
		}
		if err := p.client.SRem(ctx, OnlineUsersKey, userID).Err(); err != nil {
			return removed, fmt.Errorf("从在线用户集合移除失败: %w", err)
		}
		removed++
	}
	return removed, nil
}
