package health

import (
	"context"
	"testing"
	"time"
)

type fakeTransport struct {
	onSend func(seq uint64)
}

func (f *fakeTransport) SendQuery(vlidx uint16, seq uint64, payload []byte) error {
	if f.onSend != nil {
		f.onSend(seq)
	}
	return nil
}

func TestHealthyAfterFullResponse(t *testing.T) {
	m := New(&fakeTransport{})
	m.sendQuery()
	seq := m.seq.Load()
	for i := 0; i < ResponsePackets; i++ {
		m.OnResponse(seq)
	}
	if !m.Load().Healthy {
		t.Fatal("expected Healthy after ResponsePackets responses")
	}
}

func TestTimeoutRecordedWithoutFullResponse(t *testing.T) {
	m := New(&fakeTransport{})
	m.sendQuery()
	seq := m.seq.Load()
	m.OnResponse(seq) // only 1 of ResponsePackets

	time.Sleep(Timeout + 50*time.Millisecond)
	if m.Load().Timeouts == 0 {
		t.Fatal("expected a recorded timeout")
	}
	if m.Load().Healthy {
		t.Fatal("expected not Healthy after partial response")
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	m := New(&fakeTransport{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
