package ratelimit

import (
	"testing"
	"time"
)

func TestTokenBucketRateBound(t *testing.T) {
	lim := New(Config{Mode: ModeTokenBucketBytes, RateMbps: 8, MaxTokens: 1500})
	// 8 Mbps == 1,000,000 bytes/sec. Offer far more than that for 200ms
	// and confirm we never exceed the bound by more than one burst.
	const frame = 1000
	deadline := time.Now().Add(200 * time.Millisecond)
	var sent uint64
	for time.Now().Before(deadline) {
		if lim.Permit(1, frame) {
			sent += frame
		}
	}
	maxExpected := uint64(1_000_000*0.2) + 1500 + frame
	if sent > maxExpected {
		t.Errorf("token bucket over budget: sent %d bytes in 200ms, want <= %d", sent, maxExpected)
	}
}

func TestWindowModeExactCount(t *testing.T) {
	lim := New(Config{
		Mode:          ModeTokenBucketWindow,
		Window:        1 * time.Millisecond,
		WindowPackets: 1,
	})
	const duration = 50 * time.Millisecond
	deadline := time.Now().Add(duration)
	var granted uint64
	for time.Now().Before(deadline) {
		if lim.Permit(42, 1000) {
			granted++
		}
	}
	// ~50 windows of 1ms each, 1 packet/window; allow slack for
	// scheduling jitter in the busy-poll loop.
	if granted < 20 || granted > 80 {
		t.Errorf("window mode granted %d packets over %v, want roughly %d", granted, duration, duration/time.Millisecond)
	}
}

func TestCountersTrackPermittedAndDeferred(t *testing.T) {
	lim := New(Config{Mode: ModeTokenBucketWindow, Window: 10 * time.Millisecond, WindowPackets: 1})
	lim.Permit(1, 1000)
	lim.Permit(1, 1000)

	c := lim.Counters()
	if got := c.Permitted.Load(); got != 1 {
		t.Errorf("Permitted = %d, want 1", got)
	}
	if got := c.Deferred.Load(); got != 1 {
		t.Errorf("Deferred = %d, want 1", got)
	}
}

func TestWindowModeDoesNotCarryOverCredit(t *testing.T) {
	lim := New(Config{Mode: ModeTokenBucketWindow, Window: 10 * time.Millisecond, WindowPackets: 1})
	if !lim.Permit(1, 1000) {
		t.Fatal("first packet in a fresh window should be permitted")
	}
	if lim.Permit(1, 1000) {
		t.Fatal("second packet in the same window should be denied")
	}
}
