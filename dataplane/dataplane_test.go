package dataplane

import (
	"testing"

	"github.com/dtnfabric/fabricprobe/afxdp"
	"github.com/dtnfabric/fabricprobe/portmap"
	"github.com/dtnfabric/fabricprobe/template"
	"github.com/dtnfabric/fabricprobe/tracker"
)

type fakePTPHandler struct {
	called bool
	accept bool
}

func (f *fakePTPHandler) HandleFrame(rxPort, rxQueue int, buf []byte, rxNanos int64) bool {
	f.called = true
	return f.accept
}

func TestProcessRXFrameOffersFrameToPTPHandlerFirst(t *testing.T) {
	h := &fakePTPHandler{accept: true}
	cfg := RXWorkerConfig{Port: 5, Queue: 5, PTP: h}
	stats := &RXStats{}

	processRXFrame(afxdp.Frame{Buf: make([]byte, 27)}, cfg, stats)

	if !h.called {
		t.Fatal("expected PTP handler to be offered the frame")
	}
	if stats.GoodPkts.Load() != 0 || stats.BadPkts.Load() != 0 {
		t.Fatal("a PTP-consumed frame must not also run PRBS classification")
	}
}

func TestProcessRXFrameFallsThroughWhenPTPHandlerDeclines(t *testing.T) {
	h := &fakePTPHandler{accept: false}
	cache := template.NewPRBSCache(128)
	table := tracker.NewTable()
	cfg := RXWorkerConfig{
		Port: 5, Queue: 0, PTP: h, Cache: cache, Table: table,
		Sources: []portmap.RXSource{{Port: 5, SourcePort: 5, VLIDBase: 10, VLIDCount: 10}},
	}
	stats := &RXStats{}

	buf := make([]byte, template.HeaderLen+template.SeqLen+10)
	n := template.Stamp(buf, 0, 10, 0, cache, 5, 0, uint32(len(buf)))
	processRXFrame(afxdp.Frame{Buf: buf[:n]}, cfg, stats)

	if !h.called {
		t.Fatal("expected PTP handler to still be offered the frame")
	}
	if stats.GoodPkts.Load() != 1 {
		t.Fatalf("GoodPkts = %d, want 1 after falling through to PRBS classification", stats.GoodPkts.Load())
	}
}
