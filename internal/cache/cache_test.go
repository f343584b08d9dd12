package cache

import (
	"context"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func TestCache_TTL(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewWithClock[string, int](0, clock.Now)
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "k", 42, time.Second)

	tests := []struct {
		name    string
		advance time.Duration
		wantOK  bool
	}{
		{name: "fresh", advance: 0, wantOK: true},
		{name: "just_before_expiry", advance: 999 * time.Millisecond, wantOK: true},
		{name: "at_expiry", advance: time.Millisecond, wantOK: false},
		{name: "after_expiry", advance: time.Hour, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock.Advance(tt.advance)
			v, ok := c.Get(ctx, "k")
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && v != 42 {
				t.Errorf("value = %d", v)
			}
		})
	}
}

func TestCache_DeleteExpired(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	c := NewWithClock[string, string](0, clock.Now)
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "short", "a", time.Second)
	c.Set(ctx, "long", "b", time.Minute)
	clock.Advance(2 * time.Second)
	c.DeleteExpired()

	if c.Len() != 1 {
		t.Fatalf("len = %d, want 1", c.Len())
	}
	if _, ok := c.Get(ctx, "long"); !ok {
		t.Error("long-lived entry evicted")
	}
}
