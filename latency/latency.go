// Package latency implements the one-shot latency sub-test (spec.md
// §4.I): emits timestamped probes per (port, VLAN), waits for an echo,
// and aggregates min/avg/max before releasing the queues back to the
// steady-state generator.
package latency

import (
	"context"
	"encoding/binary"
	"sync"
	"time"

	"github.com/dtnfabric/fabricprobe/obslog"
)

var log = obslog.New("latency")

// PacketSize matches Config.h's LATENCY_TEST_PACKET_SIZE (MTU-sized
// probes, IMIX disabled during the sub-test).
const PacketSize = 1518

// VLIDBase/VLIDCount reserve a small VL-ID block outside every normal
// TX flow's range for latency probes, one slot per port ID, so probe
// echoes never get mistaken for PRBS traffic on the RX path.
const (
	VLIDBase  = 4485
	VLIDCount = 16
)

// ProbeVLID returns the reserved VL-ID a given port's probes travel
// under.
func ProbeVLID(port int) uint16 {
	return VLIDBase + uint16(port)
}

// DefaultTimeout matches Config.h's LATENCY_TEST_TIMEOUT_SEC.
const DefaultTimeout = 5 * time.Second

// pollInterval is how often Run checks whether OnEcho has delivered a
// sample for the in-flight probe.
const pollInterval = 500 * time.Microsecond

// Probe identifies one (port, VLAN) under test.
type Probe struct {
	Port int
	VLAN uint16
	VLID uint16
}

// Result is the aggregated outcome for one Probe.
type Result struct {
	Probe          Probe
	Sent, Received int
	Min, Avg, Max  time.Duration
}

// Sender transmits one probe frame for (port, vlid) with t_tx encoded
// at TimestampOffset. Implementations typically wrap a dataplane or
// rawport transport.
type Sender interface {
	SendProbe(port int, vlan, vlid uint16, txNanos int64) error
}

// TimestampOffset is where t_tx is written within the UDP payload,
// immediately after the 8-byte sequence field.
const TimestampOffset = 8
const timestampLen = 8

// EncodeProbePayload writes seq and the tx timestamp into buf.
func EncodeProbePayload(buf []byte, seq uint64, txNanos int64) {
	binary.BigEndian.PutUint64(buf[0:8], seq)
	binary.BigEndian.PutUint64(buf[TimestampOffset:TimestampOffset+timestampLen], uint64(txNanos))
}

// DecodeProbeTxNanos extracts t_tx from a received probe payload.
func DecodeProbeTxNanos(buf []byte) int64 {
	return int64(binary.BigEndian.Uint64(buf[TimestampOffset : TimestampOffset+timestampLen]))
}

// Test runs the sub-test: it sends probes through Sender and collects
// echoes reported by the RX path through OnEcho.
type Test struct {
	sender  Sender
	timeout time.Duration

	mu      sync.Mutex
	samples map[uint16][]time.Duration
}

// New builds a Test bound to sender, using DefaultTimeout unless
// overridden.
func New(sender Sender, timeout time.Duration) *Test {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Test{sender: sender, timeout: timeout, samples: make(map[uint16][]time.Duration)}
}

// OnEcho is called by the RX path when a frame matching a pending
// probe's VL-ID arrives. rxNanos is the monotonic receive timestamp.
func (t *Test) OnEcho(vlid uint16, txNanos, rxNanos int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.samples[vlid] = append(t.samples[vlid], time.Duration(rxNanos-txNanos))
}

func (t *Test) sampleCount(vlid uint16) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.samples[vlid])
}

// Run sends n probes for each entry in probes, waiting up to the
// configured timeout per probe for a matching echo via OnEcho, then
// aggregates min/avg/max per probe.
func (t *Test) Run(ctx context.Context, probes []Probe, n int) []Result {
	if n <= 0 {
		n = 1
	}

	results := make([]Result, len(probes))
	for i, p := range probes {
		sentBefore := t.sampleCount(p.VLID)
		for k := 0; k < n; k++ {
			if err := t.sender.SendProbe(p.Port, p.VLAN, p.VLID, time.Now().UnixNano()); err != nil {
				log.Sugar().Debugw("latency probe send failed", "port", p.Port, "vlid", p.VLID, "error", err)
				continue
			}
			t.awaitEcho(ctx, p.VLID, sentBefore+k+1)
		}
		results[i] = t.summarize(p, n)
	}
	return results
}

func (t *Test) awaitEcho(ctx context.Context, vlid uint16, wantCount int) {
	deadline := time.Now().Add(t.timeout)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for time.Now().Before(deadline) {
		if t.sampleCount(vlid) >= wantCount {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (t *Test) summarize(p Probe, sent int) Result {
	t.mu.Lock()
	samples := append([]time.Duration(nil), t.samples[p.VLID]...)
	t.mu.Unlock()

	r := Result{Probe: p, Sent: sent, Received: len(samples)}
	if len(samples) == 0 {
		return r
	}
	min, max, sum := samples[0], samples[0], time.Duration(0)
	for _, s := range samples {
		if s < min {
			min = s
		}
		if s > max {
			max = s
		}
		sum += s
	}
	r.Min, r.Max = min, max
	r.Avg = sum / time.Duration(len(samples))
	return r
}
