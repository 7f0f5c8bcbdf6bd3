// Package ratelimit provides the two TX pacing strategies the fabric
// uses: a classic byte-denominated token bucket, and a fixed-window
// mode that grants each VL-ID exactly K packets per window. The mode
// is fixed when a Limiter is constructed; Permit dispatches on it on
// every call.
package ratelimit

import (
	"sync"
	"sync/atomic"
	"time"
)

// Mode selects which pacing algorithm a Limiter runs.
type Mode int

const (
	// ModeTokenBucketBytes refills tokens at tokensPerSec bytes/sec
	// and permits a frame only when enough tokens are available.
	ModeTokenBucketBytes Mode = iota
	// ModeTokenBucketWindow grants exactly WindowPackets packets per
	// VL-ID every Window duration, with no carry-over credit.
	ModeTokenBucketWindow
)

// Config configures a Limiter. Mbps is converted to bytes/sec
// internally; MaxTokens is the burst cap in bytes.
type Config struct {
	Mode      Mode
	RateMbps  float64
	MaxTokens uint64

	// Window-mode only.
	Window        time.Duration
	WindowPackets uint64
}

// DefaultWindow matches the firmware's nominal 1.05ms window.
const DefaultWindow = 1050 * time.Microsecond

// New builds a Limiter from cfg, applying sensible defaults for any
// zero-valued fields.
func New(cfg Config) *Limiter {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.WindowPackets == 0 {
		cfg.WindowPackets = 1
	}
	tokensPerSec := cfg.RateMbps * 1_000_000 / 8
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		// Burst cap: ~1ms worth of traffic at the configured rate.
		maxTokens = uint64(tokensPerSec/1000) + 1500
	}
	return &Limiter{
		mode:         cfg.Mode,
		tokensPerSec: tokensPerSec,
		maxTokens:    maxTokens,
		tokens:       float64(maxTokens),
		lastTick:     time.Now(),
		window:       cfg.Window,
		winPackets:   cfg.WindowPackets,
	}
}

// Limiter is a byte-rate token bucket, or — in window mode — a
// per-VL-ID fixed allowance. Not safe for concurrent use by multiple
// TX workers on the same flow; each worker owns its own Limiter.
type Limiter struct {
	mode         Mode
	tokensPerSec float64
	maxTokens    uint64
	tokens       float64
	lastTick     time.Time

	window     time.Duration
	winPackets uint64

	mu       sync.Mutex
	windows  map[uint16]windowState

	counts Counters
}

type windowState struct {
	windowStart time.Time
	granted     uint64
}

// Permit reports whether a frame of frameSize bytes (including the
// 802.1Q tag, per the chosen accounting convention) may be sent now
// for the given VL-ID, consuming the necessary credit if so.
func (l *Limiter) Permit(vlid uint16, frameSize uint32) bool {
	if l == nil {
		return true
	}
	var ok bool
	switch l.mode {
	case ModeTokenBucketWindow:
		ok = l.permitWindow(vlid)
	default:
		ok = l.permitBytes(frameSize)
	}
	if ok {
		l.counts.Permitted.Add(1)
	} else {
		l.counts.Deferred.Add(1)
	}
	return ok
}

// Counters returns the running permitted/deferred tally for this
// Limiter, for callers that want to surface how often a flow got
// throttled (e.g. as a metric or in a drain-time log line).
func (l *Limiter) Counters() *Counters {
	if l == nil {
		return &Counters{}
	}
	return &l.counts
}

func (l *Limiter) permitBytes(frameSize uint32) bool {
	now := time.Now()
	elapsed := now.Sub(l.lastTick)
	l.lastTick = now

	l.tokens += elapsed.Seconds() * l.tokensPerSec
	if l.tokens > float64(l.maxTokens) {
		l.tokens = float64(l.maxTokens)
	}
	if l.tokens >= float64(frameSize) {
		l.tokens -= float64(frameSize)
		return true
	}
	return false
}

func (l *Limiter) permitWindow(vlid uint16) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.windows == nil {
		l.windows = make(map[uint16]windowState)
	}
	now := time.Now()
	st, ok := l.windows[vlid]
	if !ok || now.Sub(st.windowStart) >= l.window {
		l.windows[vlid] = windowState{windowStart: now, granted: 1}
		return true
	}
	if st.granted < l.winPackets {
		st.granted++
		l.windows[vlid] = st
		return true
	}
	return false
}

// counters used by callers that want to observe how often the
// limiter withheld a frame, without making the Limiter itself an
// atomic-heavy shared structure.
type Counters struct {
	Permitted atomic.Uint64
	Deferred  atomic.Uint64
}
