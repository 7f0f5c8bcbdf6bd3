// Package health implements the independent liveness probe (spec.md
// §9's supplemented component N, grounded on original_source's
// HEALTH_MONITOR_ENABLED design): a periodic 64-byte query/response
// exchange on a reserved VL-IDX, run on a port independent of the
// PRBS data path so it still reports when the main traffic generator
// is saturated or stalled.
package health

import (
	"context"
	"encoding/binary"
	"sync/atomic"
	"time"

	"github.com/dtnfabric/fabricprobe/obslog"
)

var log = obslog.New("health")

const (
	// QuerySize/ResponsePackets match Config.h's health monitor section:
	// 64-byte queries, 6-packet responses.
	QuerySize        = 64
	ResponsePackets   = 6
	Timeout          = 500 * time.Millisecond
	QueryInterval    = 1 * time.Second

	// VLIDX is the reserved VL-IDX the health monitor's traffic is
	// matched against, keeping it out of every PRBS flow's VL-ID
	// range (Config.h: VL_IDX=4484).
	VLIDX = 4484
)

// Transport sends one health query and is expected to feed back
// responses through Monitor.OnResponse.
type Transport interface {
	SendQuery(vlidx uint16, seq uint64, payload []byte) error
}

// Monitor runs the health check loop on a dedicated port (Config.h:
// Port 13), independent of the PRBS validator.
type Monitor struct {
	transport Transport

	seq          atomic.Uint64
	lastQueryAt  atomic.Int64 // unix nanos
	responsesIn  atomic.Uint64
	queriesOut   atomic.Uint64
	timeouts     atomic.Uint64

	awaiting     atomic.Uint64 // sequence number currently outstanding, 0 == none
	responseCnt  atomic.Uint64 // responses received for the current outstanding query
}

// New builds a Monitor bound to transport.
func New(transport Transport) *Monitor {
	return &Monitor{transport: transport}
}

// Run sends a query every QueryInterval until ctx is cancelled,
// marking a timeout if ResponsePackets responses do not arrive within
// Timeout.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(QueryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sendQuery()
		}
	}
}

func (m *Monitor) sendQuery() {
	seq := m.seq.Add(1)
	m.awaiting.Store(seq)
	m.responseCnt.Store(0)
	m.lastQueryAt.Store(time.Now().UnixNano())

	payload := make([]byte, QuerySize)
	binary.BigEndian.PutUint64(payload[:8], seq)

	if err := m.transport.SendQuery(VLIDX, seq, payload); err != nil {
		log.Sugar().Debugw("health query send failed", "error", err)
		return
	}
	m.queriesOut.Add(1)

	go m.awaitTimeout(seq)
}

func (m *Monitor) awaitTimeout(seq uint64) {
	time.Sleep(Timeout)
	if m.awaiting.Load() == seq && m.responseCnt.Load() < ResponsePackets {
		m.timeouts.Add(1)
		log.Sugar().Warnw("health check timed out", "seq", seq, "responses", m.responseCnt.Load())
	}
}

// OnResponse is called by the RX path for every response packet
// matching VLIDX.
func (m *Monitor) OnResponse(seq uint64) {
	if m.awaiting.Load() != seq {
		return
	}
	m.responsesIn.Add(1)
	m.responseCnt.Add(1)
}

// Snapshot is a point-in-time read of the monitor's counters.
type Snapshot struct {
	QueriesOut  uint64
	ResponsesIn uint64
	Timeouts    uint64
	Healthy     bool
}

// Load returns the current snapshot. Healthy reflects whether the
// most recent query completed its full ResponsePackets count.
func (m *Monitor) Load() Snapshot {
	return Snapshot{
		QueriesOut:  m.queriesOut.Load(),
		ResponsesIn: m.responsesIn.Load(),
		Timeouts:    m.timeouts.Load(),
		Healthy:     m.responseCnt.Load() >= ResponsePackets,
	}
}
