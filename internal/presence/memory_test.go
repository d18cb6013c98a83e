package presence

import (
	"testing"
	"time"
)

func TestMemory_Touch_IsOnline(t *testing.T) {
	m := NewMemory(2 * time.Second)
	now := time.Now()
	if m.IsOnline("A", now) {
		t.Fatalf("expected offline initially")
	}
	m.Touch("A", now)
	if !m.IsOnline("A", now) {
		t.Fatalf("expected online after touch")
	}
	if m.IsOnline("B", now) {
		t.Fatalf("other device should be offline")
	}
}

func TestMemory_TTL(t *testing.T) {
	m := NewMemory(500 * time.Millisecond)
	ts := time.Now()
	m.Touch("X", ts)
	if !m.IsOnline("X", ts.Add(400*time.Millisecond)) {
		t.Fatalf("should still be online before ttl")
	}
	if m.IsOnline("X", ts.Add(600*time.Millisecond)) {
		t.Fatalf("should be offline after ttl")
	}
}

func TestMemory_LastSeen(t *testing.T) {
	m := NewMemory(time.Minute)
	if _, ok := m.LastSeen("A"); ok {
		t.Fatalf("expected no record initially")
	}
	ts := time.Now()
	m.Touch("A", ts)
	got, ok := m.LastSeen("A")
	if !ok || !got.Equal(ts) {
		t.Fatalf("expected last seen %v, got %v ok=%v", ts, got, ok)
	}
}

func TestMemory_OnlineCount(t *testing.T) {
	m := NewMemory(time.Minute)
	now := time.Now()
	m.Touch("A", now)
	m.Touch("B", now)
	m.Touch("C", now.Add(-2*time.Minute))
	if got := m.OnlineCount(now); got != 2 {
		t.Fatalf("expected 2 online, got %d", got)
	}
}
