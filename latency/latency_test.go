package latency

import (
	"context"
	"testing"
	"time"
)

type fakeSender struct {
	sent []uint16
	echo func(vlid uint16, txNanos int64)
}

func (f *fakeSender) SendProbe(port int, vlan, vlid uint16, txNanos int64) error {
	f.sent = append(f.sent, vlid)
	if f.echo != nil {
		f.echo(vlid, txNanos)
	}
	return nil
}

func TestRunAggregatesMinAvgMax(t *testing.T) {
	test := New(nil, 200*time.Millisecond)
	sender := &fakeSender{}
	sender.echo = func(vlid uint16, txNanos int64) {
		go func() {
			time.Sleep(2 * time.Millisecond)
			test.OnEcho(vlid, txNanos, txNanos+int64(3*time.Millisecond))
		}()
	}
	test.sender = sender

	probes := []Probe{{Port: 0, VLAN: 105, VLID: 1027}}
	results := test.Run(context.Background(), probes, 3)

	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	r := results[0]
	if r.Sent != 3 {
		t.Errorf("Sent = %d, want 3", r.Sent)
	}
	if r.Received != 3 {
		t.Errorf("Received = %d, want 3", r.Received)
	}
	if r.Avg <= 0 {
		t.Errorf("Avg should be positive, got %v", r.Avg)
	}
}

func TestRunTimesOutWithoutEcho(t *testing.T) {
	test := New(&fakeSender{}, 20*time.Millisecond)
	probes := []Probe{{Port: 0, VLAN: 1, VLID: 50}}
	results := test.Run(context.Background(), probes, 1)
	if results[0].Received != 0 {
		t.Errorf("expected no echoes, got %d", results[0].Received)
	}
}

func TestEncodeDecodeProbeTimestamp(t *testing.T) {
	buf := make([]byte, 16)
	EncodeProbePayload(buf, 7, 123456789)
	if got := DecodeProbeTxNanos(buf); got != 123456789 {
		t.Errorf("DecodeProbeTxNanos = %d, want 123456789", got)
	}
}
