package delivery

import (
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// ErrStreamActive 设备已有在途下载流
var ErrStreamActive = errors.New("download stream already active")

// Observer 观测回调，用于把追踪/解析事件计入指标
type Observer interface {
	Record(operation, status string)
}

// ObserverFunc 函数式 Observer
type ObserverFunc func(operation, status string)

func (f ObserverFunc) Record(operation, status string) {
	if f != nil {
		f(operation, status)
	}
}

// NopObserver 空观测器
func NopObserver() Observer {
	return ObserverFunc(func(string, string) {})
}

// DownloadSession 一次在途固件下载
type DownloadSession struct {
	Serial    string
	Version   string
	StartedAt time.Time
}

func (s *DownloadSession) expired(ttl time.Duration, now time.Time) bool {
	if ttl <= 0 {
		return false
	}
	return now.Sub(s.StartedAt) > ttl
}

// Tracker 在途下载追踪：每设备同时只允许一条下载流。
// 连接中断未释放的残留会在 TTL 后被惰性清理。
type Tracker struct {
	active sync.Map // serial -> *DownloadSession

	ttl      time.Duration
	observer Observer
	now      func() time.Time

	lastSweep int64
}

// TrackerOption 追踪器可选项
type TrackerOption func(*Tracker)

const defaultStreamTTL = 30 * time.Minute

// NewTracker 创建在途下载追踪器
func NewTracker(opts ...TrackerOption) *Tracker {
	t := &Tracker{
		ttl:      defaultStreamTTL,
		observer: NopObserver(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// WithStreamTTL 设置在途流的残留清理时限
func WithStreamTTL(ttl time.Duration) TrackerOption {
	return func(t *Tracker) {
		if ttl > 0 {
			t.ttl = ttl
		}
	}
}

// WithTrackerObserver 注入观测回调
func WithTrackerObserver(observer Observer) TrackerOption {
	return func(t *Tracker) {
		if observer != nil {
			t.observer = observer
		}
	}
}

// WithNow 注入时钟，测试用
func WithNow(now func() time.Time) TrackerOption {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// Acquire 登记设备的一条下载流。已有未过期的在途流时返回 ErrStreamActive，
// 过期残留被直接替换。
func (t *Tracker) Acquire(serial, version string) (*DownloadSession, error) {
	now := t.now()
	t.maybeSweep(now)

	session := &DownloadSession{
		Serial:    strings.TrimSpace(serial),
		Version:   version,
		StartedAt: now,
	}
	if existing, loaded := t.active.LoadOrStore(session.Serial, session); loaded {
		old := existing.(*DownloadSession)
		if !old.expired(t.ttl, now) {
			t.observer.Record("stream_acquire", "busy")
			return nil, ErrStreamActive
		}
		t.active.Store(session.Serial, session)
		t.observer.Record("stream_acquire", "replaced_stale")
		return session, nil
	}
	t.observer.Record("stream_acquire", "ok")
	return session, nil
}

// Release 释放设备的在途流
func (t *Tracker) Release(serial string) {
	if _, ok := t.active.LoadAndDelete(strings.TrimSpace(serial)); ok {
		t.observer.Record("stream_release", "ok")
	}
}

// ActiveCount 当前在途下载流数量
func (t *Tracker) ActiveCount() int {
	now := t.now()
	count := 0
	t.active.Range(func(_, value any) bool {
		if !value.(*DownloadSession).expired(t.ttl, now) {
			count++
		}
		return true
	})
	return count
}

func (t *Tracker) maybeSweep(now time.Time) {
	if t.ttl <= 0 {
		return
	}
	last := time.Unix(0, atomic.LoadInt64(&t.lastSweep))
	if now.Sub(last) < t.ttl {
		return
	}
	t.active.Range(func(key, value any) bool {
		if value.(*DownloadSession).expired(t.ttl, now) {
			t.active.Delete(key)
			t.observer.Record("stream_cleanup", "ttl")
		}
		return true
	})
	atomic.StoreInt64(&t.lastSweep, now.UnixNano())
}
