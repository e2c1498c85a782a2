package channels

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"hello world", 8, "hello..."},
		{"line\nbreak", 20, "line break"},
		{"日本語のテキスト", 7, "日本..."},
	}
	for _, tt := range tests {
		if got := Truncate(tt.in, tt.max); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}

func TestBaseChannel_Sources(t *testing.T) {
	c := NewBaseChannel("telegram")
	if c.IsSource(-1) {
		t.Error("IsSource() = true before SetSources")
	}
	c.SetSources([]int64{-1, -2})
	if !c.IsSource(-1) || !c.IsSource(-2) || c.IsSource(-3) {
		t.Error("IsSource() does not match configured sources")
	}
	c.SetRunning(true)
	if !c.IsRunning() || c.Name() != "telegram" {
		t.Errorf("running=%v name=%q", c.IsRunning(), c.Name())
	}
}

func TestDestinationLimiter_Unlimited(t *testing.T) {
	l := NewDestinationLimiter(0, 0)
	for range 100 {
		if err := l.Wait(context.Background(), -1, 10); err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
	}
	if l.Tracked() != 0 {
		t.Errorf("Tracked() = %d, want 0 with per-chat limit disabled", l.Tracked())
	}
}

func TestDestinationLimiter_PerChatBurst(t *testing.T) {
	l := NewDestinationLimiter(1000, 1)

	if err := l.Wait(context.Background(), -1, 1); err != nil {
		t.Fatalf("first Wait() error = %v", err)
	}
	// Budget for -1 is spent for a minute; another chat is unaffected.
	if err := l.Wait(context.Background(), -2, 1); err != nil {
		t.Fatalf("other chat Wait() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx, -1, 1); err == nil {
		t.Fatal("second Wait() on a spent chat succeeded")
	}
	if l.Tracked() != 2 {
		t.Errorf("Tracked() = %d, want 2", l.Tracked())
	}
}

func TestDestinationLimiter_AlbumClampedToBurst(t *testing.T) {
	l := NewDestinationLimiter(25, 20)
	// A 10-item album fits the per-chat burst and the global burst.
	if err := l.Wait(context.Background(), -1, 10); err != nil {
		t.Fatalf("Wait(10) error = %v", err)
	}
	// Larger requests are clamped instead of failing with "exceeds burst".
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.Wait(ctx, -3, 50); err != nil {
		t.Fatalf("Wait(50) error = %v", err)
	}
}

func TestDestinationLimiter_Cancelled(t *testing.T) {
	l := NewDestinationLimiter(1, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := l.Wait(ctx, -1, 1); !errors.Is(err, context.Canceled) {
		t.Errorf("Wait() error = %v, want context.Canceled", err)
	}
}

func TestDestinationLimiter_BoundedKeys(t *testing.T) {
	l := NewDestinationLimiter(0, 60)
	for i := range maxTrackedKeys + 10 {
		if err := l.Wait(context.Background(), int64(-i-1), 1); err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
	}
	if n := l.Tracked(); n > maxTrackedKeys {
		t.Errorf("Tracked() = %d, want <= %d", n, maxTrackedKeys)
	}
}
