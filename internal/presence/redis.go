package presence

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisTracker Redis版本的在线追踪，多实例部署共享同一份视图
type RedisTracker struct {
	client *redis.Client
	ttl    time.Duration
}

// presenceData Redis存储的设备在线数据结构
type presenceData struct {
	Serial   string    `json:"serial"`
	LastSeen time.Time `json:"last_seen"`
}

// Redis Key设计
const (
	// presence:device:{serial} -> presenceData JSON
	keyDevicePrefix = "presence:device:"
)

// NewRedisTracker 创建Redis在线追踪器
func NewRedisTracker(client *redis.Client, ttl time.Duration) *RedisTracker {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisTracker{client: client, ttl: ttl}
}

// Touch 记录设备一次心跳
func (m *RedisTracker) Touch(serial string, t time.Time) {
	ctx := context.Background()
	data := &presenceData{Serial: serial, LastSeen: t}

	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}

	// 过期时间取在线窗口的2倍，窗口外的键自然淘汰
	m.client.Set(ctx, keyDevicePrefix+serial, jsonData, m.ttl*2)
}

// LastSeen 返回设备最近一次心跳时间
func (m *RedisTracker) LastSeen(serial string) (time.Time, bool) {
	ctx := context.Background()
	data, err := m.getPresenceData(ctx, serial)
	if err != nil {
		return time.Time{}, false
	}
	return data.LastSeen, true
}

// IsOnline 判断设备是否在线（最近心跳落在窗口内）
func (m *RedisTracker) IsOnline(serial string, now time.Time) bool {
	ctx := context.Background()
	data, err := m.getPresenceData(ctx, serial)
	if err != nil {
		return false
	}
	return now.Sub(data.LastSeen) <= m.ttl
}

// OnlineCount 返回当前在线设备数量
func (m *RedisTracker) OnlineCount(now time.Time) int {
	ctx := context.Background()

	// 扫描所有设备在线键
	var cursor uint64
	count := 0

	for {
		keys, nextCursor, err := m.client.Scan(ctx, cursor, keyDevicePrefix+"*", 100).Result()
		if err != nil {
			break
		}

		for _, key := range keys {
			serial := key[len(keyDevicePrefix):]
			if m.IsOnline(serial, now) {
				count++
			}
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	return count
}

// --- 辅助方法 ---

func (m *RedisTracker) getPresenceData(ctx context.Context, serial string) (*presenceData, error) {
	val, err := m.client.Get(ctx, keyDevicePrefix+serial).Result()
	if err != nil {
		return nil, err
	}

	var data presenceData
	if err := json.Unmarshal([]byte(val), &data); err != nil {
		return nil, err
	}

	return &data, nil
}
