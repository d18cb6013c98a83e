package presence

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

// 使用测试用Redis客户端（需要真实Redis实例）
func setupTestRedis(t *testing.T) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // 使用测试专用数据库
	})

	// 测试连接
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skip("Redis not available, skipping test")
		return nil
	}

	// 清空测试数据库
	client.FlushDB(ctx)

	t.Cleanup(func() {
		client.FlushDB(ctx)
		client.Close()
	})

	return client
}

func TestRedisTracker_Basic(t *testing.T) {
	client := setupTestRedis(t)
	if client == nil {
		return
	}

	tr := NewRedisTracker(client, 5*time.Minute)

	now := time.Now()
	tr.Touch("FLT-0001", now)

	assert.True(t, tr.IsOnline("FLT-0001", now.Add(1*time.Minute)))
	assert.False(t, tr.IsOnline("FLT-0001", now.Add(10*time.Minute)))
	assert.False(t, tr.IsOnline("FLT-0002", now))
}

func TestRedisTracker_LastSeen(t *testing.T) {
	client := setupTestRedis(t)
	if client == nil {
		return
	}

	tr := NewRedisTracker(client, 5*time.Minute)

	_, ok := tr.LastSeen("FLT-0001")
	assert.False(t, ok)

	now := time.Now()
	tr.Touch("FLT-0001", now)

	got, ok := tr.LastSeen("FLT-0001")
	assert.True(t, ok)
	assert.WithinDuration(t, now, got, time.Second)
}

func TestRedisTracker_OnlineCount(t *testing.T) {
	client := setupTestRedis(t)
	if client == nil {
		return
	}

	tr := NewRedisTracker(client, 5*time.Minute)

	now := time.Now()
	tr.Touch("FLT-0001", now)
	tr.Touch("FLT-0002", now)
	tr.Touch("FLT-0003", now.Add(-10*time.Minute)) // 已过期

	count := tr.OnlineCount(now)
	assert.Equal(t, 2, count)
}

func TestRedisTracker_SharedView(t *testing.T) {
	client := setupTestRedis(t)
	if client == nil {
		return
	}

	// 模拟两个服务实例共享同一Redis
	tr1 := NewRedisTracker(client, 5*time.Minute)
	tr2 := NewRedisTracker(client, 5*time.Minute)

	now := time.Now()
	tr1.Touch("FLT-A", now)
	tr2.Touch("FLT-B", now)

	// 互相可见
	assert.True(t, tr1.IsOnline("FLT-B", now))
	assert.True(t, tr2.IsOnline("FLT-A", now))
	assert.Equal(t, 2, tr1.OnlineCount(now))
	assert.Equal(t, 2, tr2.OnlineCount(now))
}

func TestRedisTracker_Interface(t *testing.T) {
	client := setupTestRedis(t)
	if client == nil {
		return
	}

	// 验证RedisTracker实现了Tracker接口
	var _ Tracker = NewRedisTracker(client, 5*time.Minute)
}
