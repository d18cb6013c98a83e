package presence

import "time"

// Tracker 设备在线追踪接口，支持内存和Redis两种实现
type Tracker interface {
	// Touch 记录设备一次心跳
	Touch(serial string, t time.Time)

	// LastSeen 返回设备最近一次心跳时间
	LastSeen(serial string) (time.Time, bool)

	// IsOnline 判断设备是否在线（最近心跳落在窗口内）
	IsOnline(serial string, now time.Time) bool

	// OnlineCount 返回当前在线设备数量
	OnlineCount(now time.Time) int
}
