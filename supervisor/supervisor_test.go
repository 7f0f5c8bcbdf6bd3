package supervisor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dtnfabric/fabricprobe/dataplane"
	"github.com/dtnfabric/fabricprobe/runconfig"
)

type fakePort struct {
	startErr error
	started  bool
	stopped  bool
}

func (f *fakePort) Start(ctx context.Context) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.started = true
	return nil
}

func (f *fakePort) Stop() error {
	f.stopped = true
	return nil
}

func (f *fakePort) Snapshot() dataplane.PortSnapshot {
	return dataplane.PortSnapshot{}
}

func testConfig() *runconfig.Config {
	return &runconfig.Config{
		Topology:      "normal",
		NumTXCores:    2,
		NumRXCores:    4,
		WarmupSeconds: 0,
	}
}

func TestNewLoadsPortMapAndPreallocatesState(t *testing.T) {
	s, err := New(testConfig())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if s.PortMap == nil || len(s.PortMap.TXFlows) == 0 {
		t.Fatal("expected a loaded port map with TX flows")
	}
	if s.Cache == nil || s.Tracker == nil {
		t.Fatal("expected the PRBS cache and tracker table to be built")
	}
}

func TestBringupStartsAllPorts(t *testing.T) {
	s, err := New(testConfig())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	a, b := &fakePort{}, &fakePort{}
	s.AddPort(a)
	s.AddPort(b)

	if err := s.Bringup(context.Background()); err != nil {
		t.Fatalf("Bringup() error = %v", err)
	}
	if !a.started || !b.started {
		t.Fatal("expected both ports started")
	}
	s.Stop()
}

func TestBringupRollsBackOnFailure(t *testing.T) {
	s, err := New(testConfig())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	a := &fakePort{}
	b := &fakePort{startErr: errors.New("nic busy")}
	s.AddPort(a)
	s.AddPort(b)

	if err := s.Bringup(context.Background()); err == nil {
		t.Fatal("expected Bringup to fail")
	}
	if !a.stopped {
		t.Fatal("expected the already-started port to be torn down on failure")
	}
}

func TestWarmupReturnsOnContextCancel(t *testing.T) {
	s, err := New(testConfig())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	s.Config.WarmupSeconds = 60
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		s.Warmup(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Warmup did not return promptly on cancelled context")
	}
}

func TestDrainStopsEveryPortAndReturnsFirstError(t *testing.T) {
	s, err := New(testConfig())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	a, b := &fakePort{}, &fakePort{}
	s.AddPort(a)
	s.AddPort(b)

	if err := s.Drain(); err != nil {
		t.Fatalf("Drain() error = %v", err)
	}
	if !a.stopped || !b.stopped {
		t.Fatal("expected both ports stopped")
	}
}
