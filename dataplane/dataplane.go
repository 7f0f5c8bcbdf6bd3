// Package dataplane runs the TX and RX worker loops described in
// spec.md §4.D/§4.E on top of the AF_XDP transport kept from the
// teacher repo's afxdp package. It also defines the Port capability
// set that lets the Supervisor hold a homogeneous collection of
// poll-mode and raw-socket ports (spec.md §9's "dynamic dispatch for
// two transports" note).
package dataplane

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/dtnfabric/fabricprobe/afxdp"
	"github.com/dtnfabric/fabricprobe/obslog"
	"github.com/dtnfabric/fabricprobe/portmap"
	"github.com/dtnfabric/fabricprobe/ratelimit"
	"github.com/dtnfabric/fabricprobe/template"
	"github.com/dtnfabric/fabricprobe/tracker"
)

func nowNanos() int64 { return time.Now().UnixNano() }

var log = obslog.New("dataplane")

// RXStats mirrors spec.md §3's per-DTN-port stats; all fields are
// updated with atomic fetch-adds from the hot path.
type RXStats struct {
	GoodPkts      atomic.Uint64
	BadPkts       atomic.Uint64
	ShortPkts     atomic.Uint64
	ExternalPkts  atomic.Uint64
	BitErrors     atomic.Uint64
	TotalRxPkts   atomic.Uint64
	TotalRxBytes  atomic.Uint64
}

// TXStats mirrors the TX-side in-thread counters spec.md §4.D names.
type TXStats struct {
	SentPkts  atomic.Uint64
	SentBytes atomic.Uint64
	Dropped   atomic.Uint64
}

// IMIXPattern is the fixed 10-slot frame-size cycle from spec.md §4.D.
var IMIXPattern = [10]uint32{100, 200, 400, 800, 1200, 1200, 1200, 1518, 1518, 1518}

// TXWorkerConfig parameterizes one TX worker: one goroutine per
// (port, queue), matching the teacher's LockOSThread-per-queue shape
// in afxdp/processor.go.
type TXWorkerConfig struct {
	Port, Queue int
	Flow        portmap.TXFlow
	Cache       *template.PRBSCache
	Limiter     *ratelimit.Limiter
	IMIX        bool
	BatchSize   uint32

	// External sets a second, independently rate-limited flow emitted
	// from the same worker (spec.md §4.D's "External TX sub-role").
	External     *portmap.TXFlow
	ExternalRate *ratelimit.Limiter
}

// RunTXWorker pumps frames for cfg.Flow (and, if set, cfg.External)
// onto sock until ctx is cancelled. It mirrors afxdp/processor.go's
// goroutine-per-queue, LockOSThread shape from the teacher.
func RunTXWorker(ctx context.Context, sock *afxdp.Socket, cfg TXWorkerConfig, stats *TXStats) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if cfg.BatchSize == 0 {
		cfg.BatchSize = afxdp.DefaultBatchSize
	}

	var seqByVLID = make(map[uint16]uint64)
	vlidCursor := cfg.Flow.VLIDBase
	imixIdx := 0

	nextSize := func() uint32 {
		if cfg.IMIX {
			s := IMIXPattern[imixIdx%len(IMIXPattern)]
			imixIdx++
			return s
		}
		return uint32(template.HeaderLen + template.SeqLen + 1400)
	}

	for ctx.Err() == nil {
		vlid := vlidCursor
		vlidCursor++
		if vlidCursor >= cfg.Flow.VLIDBase+cfg.Flow.VLIDCount {
			vlidCursor = cfg.Flow.VLIDBase
		}

		size := nextSize()
		if cfg.Limiter != nil && !cfg.Limiter.Permit(vlid, size) {
			continue
		}

		frame := sock.NextFrame()
		if frame.Buf == nil {
			stats.Dropped.Add(1)
			continue
		}
		seq := seqByVLID[vlid]
		seqByVLID[vlid] = seq + 1
		n := template.Stamp(frame.Buf, cfg.Flow.VLAN, vlid, seq, cfg.Cache, cfg.Port, cfg.Queue, size)
		if err := sock.Submit(frame.Addr, n); err != nil {
			stats.Dropped.Add(1)
			continue
		}
		stats.SentPkts.Add(1)
		stats.SentBytes.Add(uint64(n))

		if cfg.External != nil {
			runExternalSubRole(sock, cfg, &vlidCursor, seqByVLID)
		}

		if err := sock.FlushTx(); err != nil {
			log.Sugar().Debugw("flush tx", "error", err)
		}
		sock.PollCompletions(cfg.BatchSize)
	}
}

func runExternalSubRole(sock *afxdp.Socket, cfg TXWorkerConfig, vlidCursor *uint16, seqByVLID map[uint16]uint64) {
	ext := cfg.External
	vlid := ext.VLIDBase + (*vlidCursor-cfg.Flow.VLIDBase)%ext.VLIDCount
	size := uint32(template.HeaderLen + template.SeqLen + 1400)
	if cfg.ExternalRate != nil && !cfg.ExternalRate.Permit(vlid, size) {
		return
	}
	frame := sock.NextFrame()
	if frame.Buf == nil {
		return
	}
	seq := seqByVLID[vlid]
	seqByVLID[vlid] = seq + 1
	n := template.Stamp(frame.Buf, ext.VLAN, vlid, seq, cfg.Cache, cfg.Port, cfg.Queue, size)
	_ = sock.Submit(frame.Addr, n)
}

// PTPHandler lets an RX worker hand Layer-2 EtherType-0x88F7 frames
// off to the PTP slave engine instead of running them through PRBS
// classification. Implemented by *ptp.Engine.
type PTPHandler interface {
	HandleFrame(rxPort, rxQueue int, buf []byte, rxNanos int64) bool
}

// RXWorkerConfig parameterizes one RX worker.
type RXWorkerConfig struct {
	Port, Queue int
	Sources     []portmap.RXSource
	Cache       *template.PRBSCache
	Table       *tracker.Table
	BatchSize   uint32

	// PTP, when set, shares this queue with the PRBS data path (spec.md
	// §4.J): every frame is offered to it before PRBS classification.
	PTP PTPHandler
}

// RunRXWorker drains sock's RX ring in bursts, classifying, verifying
// PRBS, and updating the per-VL-ID tracker, per spec.md §4.E.
func RunRXWorker(ctx context.Context, sock *afxdp.Socket, cfg RXWorkerConfig, stats *RXStats) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if cfg.BatchSize == 0 {
		cfg.BatchSize = 32
	}

	for ctx.Err() == nil {
		frames, err := sock.Receive(cfg.BatchSize)
		if err != nil {
			continue
		}
		for _, f := range frames {
			processRXFrame(f, cfg, stats)
			_ = sock.Release(f)
		}
	}
}

func processRXFrame(f afxdp.Frame, cfg RXWorkerConfig, stats *RXStats) {
	stats.TotalRxPkts.Add(1)
	stats.TotalRxBytes.Add(uint64(len(f.Buf)))

	buf := f.Buf

	if cfg.PTP != nil && cfg.PTP.HandleFrame(cfg.Port, cfg.Queue, buf, nowNanos()) {
		return
	}

	if len(buf) < template.MinStampedLen {
		stats.ShortPkts.Add(1)
		return
	}

	vlanTagged := buf[12] == 0x81 && buf[13] == 0x00
	ipStart := template.EthHeaderLen
	if vlanTagged {
		ipStart += template.VLANTagLen
	}
	if len(buf) < ipStart+template.IPHeaderLen+template.UDPHeaderLen {
		stats.ShortPkts.Add(1)
		return
	}

	vlidFromMAC := template.DecodeVLIDFromMAC(buf[0:6])
	dstIP := buf[ipStart+16 : ipStart+20]
	vlidFromIP := template.DecodeVLIDFromIP(dstIP)
	if vlidFromMAC != vlidFromIP {
		stats.BadPkts.Add(1)
		return
	}
	vlid := vlidFromMAC

	if !inAnySource(cfg.Sources, cfg.Port, vlid) {
		stats.ExternalPkts.Add(1)
		return
	}

	payloadStart := ipStart + template.IPHeaderLen + template.UDPHeaderLen
	payload := buf[payloadStart:]
	if len(payload) < template.SeqLen {
		stats.ShortPkts.Add(1)
		return
	}

	ok, bitErrors := template.Verify(payload, cfg.Cache, cfg.Port, cfg.Queue, vlid)
	if ok {
		stats.GoodPkts.Add(1)
	} else {
		stats.BadPkts.Add(1)
		stats.BitErrors.Add(uint64(bitErrors))
	}

	seq := template.ReadSeq(payload)
	cfg.Table.Entry(cfg.Port, vlid).Observe(seq)
}

func inAnySource(sources []portmap.RXSource, port int, vlid uint16) bool {
	for _, s := range sources {
		if s.Port == port && portmap.Contains(s.VLIDBase, s.VLIDCount, vlid) {
			return true
		}
	}
	return false
}
