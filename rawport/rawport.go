// Package rawport implements the raw-socket fallback port (spec.md
// §4.G): a kernel AF_PACKET transport for NICs lacking poll-mode
// support, with the same per-target rate limiting, VL-ID blocks, and
// PRBS semantics as the AF_XDP data plane, kept under separate
// counters (raw_socket_rx_pkts, raw_socket_rx_bytes) so the aggregator
// can attribute them to DTN rows 32/33.
package rawport

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/dtnfabric/fabricprobe/dataplane"
	"github.com/dtnfabric/fabricprobe/health"
	"github.com/dtnfabric/fabricprobe/latency"
	"github.com/dtnfabric/fabricprobe/obslog"
	"github.com/dtnfabric/fabricprobe/portmap"
	"github.com/dtnfabric/fabricprobe/ratelimit"
	"github.com/dtnfabric/fabricprobe/template"
	"github.com/dtnfabric/fabricprobe/tracker"
	"github.com/mdlayher/packet"
)

var log = obslog.New("rawport")

const etherTypeIPv4 = 0x0800

// Stats holds the raw-socket-specific counters spec.md §4.G calls
// out separately from the poll-mode port's.
type Stats struct {
	RawSocketRxPkts  atomic.Uint64
	RawSocketRxBytes atomic.Uint64
	dataplane.RXStats
	dataplane.TXStats
}

// Port is the raw-socket implementation of dataplane.Port.
type Port struct {
	id      int
	iface   *net.Interface
	conn    *packet.Conn
	targets []portmap.RawTarget
	sources []portmap.RXSource
	cache   *template.PRBSCache
	table   *tracker.Table

	health      *health.Monitor
	latencyTest *latency.Test

	stats  Stats
	cancel context.CancelFunc
}

// SetHealthMonitor attaches a health.Monitor whose responses arrive
// on this port's RX loop. The Port itself already satisfies
// health.Transport via SendQuery, so the same port carries both
// directions of the health check.
func (p *Port) SetHealthMonitor(m *health.Monitor) {
	p.health = m
}

// SetLatencyTest attaches a latency.Test whose probe echoes arrive on
// this port's RX loop. The Port itself already satisfies
// latency.Sender via SendProbe.
func (p *Port) SetLatencyTest(t *latency.Test) {
	p.latencyTest = t
}

// SendQuery implements health.Transport: it stamps vlidx's frame
// header via the same Stamp routine every other frame uses, then
// overwrites the PRBS body with the health query payload.
func (p *Port) SendQuery(vlidx uint16, seq uint64, payload []byte) error {
	return p.sendTagged(vlidx, payload)
}

// SendProbe implements latency.Sender.
func (p *Port) SendProbe(port int, vlan, vlid uint16, txNanos int64) error {
	buf := make([]byte, latency.PacketSize-template.HeaderLen-template.SeqLen)
	latency.EncodeProbePayload(buf, 0, txNanos)
	return p.sendTagged(vlid, buf)
}

func (p *Port) sendTagged(vlid uint16, payload []byte) error {
	totalLen := uint32(template.HeaderLen) + uint32(template.SeqLen) + uint32(len(payload))
	buf := make([]byte, totalLen)
	template.Stamp(buf, 0, vlid, 0, p.cache, p.id, 0, totalLen)
	copy(buf[template.HeaderLen+template.SeqLen:], payload)

	dstAddr := &packet.Addr{HardwareAddr: net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}}
	_, err := p.conn.WriteTo(buf, dstAddr)
	return err
}

// Open binds a raw AF_PACKET socket to ifaceName.
func Open(id int, ifaceName string, targets []portmap.RawTarget, sources []portmap.RXSource, cache *template.PRBSCache, table *tracker.Table) (*Port, error) {
	ifi, err := net.InterfaceByName(ifaceName)
	if err != nil {
		return nil, fmt.Errorf("rawport: lookup %s: %w", ifaceName, err)
	}
	conn, err := packet.Listen(ifi, packet.Raw, etherTypeIPv4, nil)
	if err != nil {
		return nil, fmt.Errorf("rawport: listen on %s: %w", ifaceName, err)
	}
	return &Port{id: id, iface: ifi, conn: conn, targets: targets, sources: sources, cache: cache, table: table}, nil
}

// Start launches the TX targets and the single blocking RX loop on
// dedicated goroutines, per spec.md §4.G.
func (p *Port) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	for _, t := range p.targets {
		target := t
		lim := ratelimit.New(ratelimit.Config{Mode: ratelimit.ModeTokenBucketBytes, RateMbps: target.RateMbps})
		go p.runTXTarget(ctx, target, lim)
	}
	go p.runRXLoop(ctx)
	return nil
}

// Stop cancels the workers and closes the socket.
func (p *Port) Stop() error {
	if p.cancel != nil {
		p.cancel()
	}
	return p.conn.Close()
}

// Snapshot returns this port's accumulated counters.
func (p *Port) Snapshot() dataplane.PortSnapshot {
	return dataplane.PortSnapshot{
		SentPkts: p.stats.TXStats.SentPkts.Load(), SentBytes: p.stats.TXStats.SentBytes.Load(), Dropped: p.stats.TXStats.Dropped.Load(),
		GoodPkts: p.stats.RXStats.GoodPkts.Load(), BadPkts: p.stats.RXStats.BadPkts.Load(), ShortPkts: p.stats.RXStats.ShortPkts.Load(),
		ExternalPkts: p.stats.RXStats.ExternalPkts.Load(), BitErrors: p.stats.RXStats.BitErrors.Load(),
		TotalRxPkts: p.stats.RawSocketRxPkts.Load(), TotalRxBytes: p.stats.RawSocketRxBytes.Load(),
	}
}

func (p *Port) runTXTarget(ctx context.Context, target portmap.RawTarget, lim *ratelimit.Limiter) {
	var seqByVLID = make(map[uint16]uint64)
	vlid := target.VLIDBase
	buf := make([]byte, 1518)
	dstAddr := &packet.Addr{HardwareAddr: net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}}

	for ctx.Err() == nil {
		size := uint32(template.HeaderLen + template.SeqLen + 1400)
		if lim != nil && !lim.Permit(vlid, size) {
			continue
		}
		seq := seqByVLID[vlid]
		seqByVLID[vlid] = seq + 1

		n := template.Stamp(buf, 0, vlid, seq, p.cache, p.id, 0, size)
		if _, err := p.conn.WriteTo(buf[:n], dstAddr); err != nil {
			p.stats.TXStats.Dropped.Add(1)
			continue
		}
		p.stats.TXStats.SentPkts.Add(1)
		p.stats.TXStats.SentBytes.Add(uint64(n))

		vlid++
		if vlid >= target.VLIDBase+target.VLIDCount {
			vlid = target.VLIDBase
		}
	}
}

func (p *Port) runRXLoop(ctx context.Context) {
	buf := make([]byte, 65536)
	for ctx.Err() == nil {
		n, _, err := p.conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Sugar().Debugw("raw socket read error", "port", p.id, "error", err)
			continue
		}
		p.stats.RawSocketRxPkts.Add(1)
		p.stats.RawSocketRxBytes.Add(uint64(n))
		p.processFrame(buf[:n])
	}
}

// routeControlFrame diverts health-query responses and latency-probe
// echoes to their owning subsystem before the normal PRBS/VL-ID-source
// path runs, since both live on reserved VL-IDs outside every flow's
// configured range. It reports whether the frame was consumed.
func (p *Port) routeControlFrame(buf []byte, vlid uint16) bool {
	if p.health == nil && p.latencyTest == nil {
		return false
	}

	ipStart := template.EthHeaderLen
	if buf[12] == 0x81 && buf[13] == 0x00 {
		ipStart += template.VLANTagLen
	}
	payloadStart := ipStart + template.IPHeaderLen + template.UDPHeaderLen
	if len(buf) < payloadStart+template.SeqLen {
		return false
	}
	inner := buf[payloadStart+template.SeqLen:]

	switch {
	case p.health != nil && vlid == health.VLIDX:
		if len(inner) >= 8 {
			p.health.OnResponse(binary.BigEndian.Uint64(inner[:8]))
		}
		return true
	case p.latencyTest != nil && vlid >= latency.VLIDBase && vlid < latency.VLIDBase+latency.VLIDCount:
		if len(inner) >= 16 {
			p.latencyTest.OnEcho(vlid, latency.DecodeProbeTxNanos(inner), time.Now().UnixNano())
		}
		return true
	}
	return false
}

func (p *Port) processFrame(buf []byte) {
	if len(buf) < template.EthHeaderLen+template.IPHeaderLen+template.UDPHeaderLen {
		p.stats.RXStats.ShortPkts.Add(1)
		return
	}

	vlidFromMAC := template.DecodeVLIDFromMAC(buf[0:6])

	if routed := p.routeControlFrame(buf, vlidFromMAC); routed {
		return
	}

	var src portmap.RXSource
	found := false
	for _, s := range p.sources {
		if s.Port == p.id && portmap.Contains(s.VLIDBase, s.VLIDCount, vlidFromMAC) {
			src = s
			found = true
			break
		}
	}
	if !found {
		p.stats.RXStats.ExternalPkts.Add(1)
		return
	}

	ipStart := template.EthHeaderLen
	if buf[12] == 0x81 && buf[13] == 0x00 {
		ipStart += template.VLANTagLen
	}
	payloadStart := ipStart + template.IPHeaderLen + template.UDPHeaderLen
	if len(buf) < payloadStart+template.SeqLen {
		p.stats.RXStats.ShortPkts.Add(1)
		return
	}
	payload := buf[payloadStart:]

	// The PRBS cache key must match whichever port actually stamped
	// this frame, which per src.SourcePort is the originating DPDK
	// port for external-validation traffic, not this port's own id.
	ok, bitErrors := template.Verify(payload, p.cache, src.SourcePort, 0, vlidFromMAC)
	if ok {
		p.stats.RXStats.GoodPkts.Add(1)
	} else {
		p.stats.RXStats.BadPkts.Add(1)
		p.stats.RXStats.BitErrors.Add(uint64(bitErrors))
	}

	seq := template.ReadSeq(payload)
	p.table.Entry(p.id, vlidFromMAC).Observe(seq)
}
