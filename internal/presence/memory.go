package presence

import (
	"sync"
	"time"
)

// Memory 在线追踪最小实现：记录设备最近心跳时间，判断是否在线
type Memory struct {
	mu       sync.RWMutex
	lastSeen map[string]time.Time // serial -> last seen
	ttl      time.Duration
}

func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Memory{lastSeen: make(map[string]time.Time), ttl: ttl}
}

// Touch 记录设备一次心跳
func (m *Memory) Touch(serial string, t time.Time) {
	m.mu.Lock()
	m.lastSeen[serial] = t
	m.mu.Unlock()
}

// LastSeen 返回设备最近一次心跳时间
func (m *Memory) LastSeen(serial string) (time.Time, bool) {
	m.mu.RLock()
	ts, ok := m.lastSeen[serial]
	m.mu.RUnlock()
	return ts, ok
}

// IsOnline 判断设备是否在线
func (m *Memory) IsOnline(serial string, now time.Time) bool {
	m.mu.RLock()
	ts, ok := m.lastSeen[serial]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	return now.Sub(ts) <= m.ttl
}

// OnlineCount 返回当前在线设备数量
func (m *Memory) OnlineCount(now time.Time) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, ts := range m.lastSeen {
		if now.Sub(ts) <= m.ttl {
			count++
		}
	}
	return count
}
