package dataplane

import (
	"context"
	"fmt"

	"github.com/dtnfabric/fabricprobe/afxdp"
	"github.com/dtnfabric/fabricprobe/portmap"
	"github.com/dtnfabric/fabricprobe/ratelimit"
	"github.com/dtnfabric/fabricprobe/template"
	"github.com/dtnfabric/fabricprobe/tracker"
)

// PortSnapshot is what Port.Snapshot returns for aggregation. It holds
// plain values, never atomics, so it is safe to copy and store.
type PortSnapshot struct {
	SentPkts, SentBytes, Dropped                                    uint64
	GoodPkts, BadPkts, ShortPkts, ExternalPkts, BitErrors            uint64
	TotalRxPkts, TotalRxBytes                                        uint64
}

// Port is the capability set shared by the poll-mode (AF_XDP) and
// raw-socket transports: start, stop and snapshot. Enqueue and receive
// are not part of it; each transport runs its own TX and RX loops from
// Start. The Supervisor holds a homogeneous slice of Port regardless of
// underlying transport.
type Port interface {
	Start(ctx context.Context) error
	Stop() error
	Snapshot() PortSnapshot
}

// PollModePort is the AF_XDP-backed Port implementation, one per
// fabric-facing interface with poll-mode support.
type PollModePort struct {
	id    int
	iface *afxdp.Interface
	flows []portmap.TXFlow
	srcs  []portmap.RXSource
	cache *template.PRBSCache
	table *tracker.Table
	imix  bool
	ptp   PTPHandler
	ext   *portmap.RawTarget

	sockets       []*afxdp.Socket
	socketByQueue map[int]*afxdp.Socket
	tx            TXStats
	rx            RXStats
	cancel        context.CancelFunc
}

// SetPTPHandler attaches the PTP slave engine to this port's RX path.
// It must be called before Start: the handler reference is captured
// once per RX worker when its queues are opened.
func (p *PollModePort) SetPTPHandler(h PTPHandler) {
	p.ptp = h
}

// SendRaw submits a fully-formed frame on queue's socket, bypassing
// the PRBS TX worker's flow/rate-limit pipeline. Used by the PTP
// engine to emit Delay_Req frames on the queue it shares with the
// data plane (spec.md §4.J).
func (p *PollModePort) SendRaw(queue int, buf []byte) error {
	sock, ok := p.socketByQueue[queue]
	if !ok {
		return fmt.Errorf("dataplane: port %d has no socket for queue %d", p.id, queue)
	}
	frame := sock.NextFrame()
	if frame.Buf == nil {
		return fmt.Errorf("dataplane: port %d queue %d: no free TX frame", p.id, queue)
	}
	n := copy(frame.Buf, buf)
	if err := sock.Submit(frame.Addr, uint32(n)); err != nil {
		return err
	}
	return sock.FlushTx()
}

// NewPollModePort attaches the XDP program to ifaceName and returns a
// Port ready to Start. ext, when non-nil, names this port as the
// source of a raw-socket port's External-TX sub-role validation
// traffic (spec.md §4.D, grounded on DpdkExternalTx.h).
func NewPollModePort(id int, ifaceName string, conf afxdp.InterfaceConfig, flows []portmap.TXFlow, srcs []portmap.RXSource, cache *template.PRBSCache, table *tracker.Table, imix bool, ext *portmap.RawTarget) (*PollModePort, error) {
	iface, err := afxdp.MakeInterface(ifaceName, conf)
	if err != nil {
		return nil, fmt.Errorf("dataplane: attach %s: %w", ifaceName, err)
	}
	return &PollModePort{id: id, iface: iface, flows: flows, srcs: srcs, cache: cache, table: table, imix: imix, ext: ext}, nil
}

// Start opens one socket per RX/TX queue and launches its workers.
func (p *PollModePort) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	queues, err := p.iface.RXQueueIDs()
	if err != nil {
		return fmt.Errorf("dataplane: listing queues on port %d: %w", p.id, err)
	}

	extAttached := false
	for _, q := range queues {
		sockConf := afxdp.SocketConfig{QueueID: q}
		if err := sockConf.ValidateAndSetDefaults(); err != nil {
			return fmt.Errorf("dataplane: socket config port %d queue %d: %w", p.id, q, err)
		}
		sock, err := p.iface.Open(sockConf)
		if err != nil {
			return fmt.Errorf("dataplane: open port %d queue %d: %w", p.id, q, err)
		}
		p.sockets = append(p.sockets, sock)

		queue := int(q)
		if p.socketByQueue == nil {
			p.socketByQueue = make(map[int]*afxdp.Socket)
		}
		p.socketByQueue[queue] = sock

		go RunRXWorker(ctx, sock, RXWorkerConfig{
			Port: p.id, Queue: queue, Sources: p.srcs, Cache: p.cache, Table: p.table, PTP: p.ptp,
		}, &p.rx)

		for _, f := range p.flows {
			if f.Queue != queue {
				continue
			}
			flow := f
			lim := ratelimit.New(ratelimit.Config{Mode: ratelimit.ModeTokenBucketBytes, RateMbps: flow.RateMbps})
			cfg := TXWorkerConfig{
				Port: p.id, Queue: queue, Flow: flow, Cache: p.cache, Limiter: lim, IMIX: p.imix,
			}
			if p.ext != nil && !extAttached {
				extAttached = true
				extFlow := portmap.TXFlow{
					Port: p.id, Queue: queue,
					VLIDBase: p.ext.VLIDBase, VLIDCount: p.ext.VLIDCount, RateMbps: p.ext.RateMbps,
				}
				cfg.External = &extFlow
				cfg.ExternalRate = ratelimit.New(ratelimit.Config{Mode: ratelimit.ModeTokenBucketBytes, RateMbps: p.ext.RateMbps})
			}
			go RunTXWorker(ctx, sock, cfg, &p.tx)
		}
	}
	return nil
}

// Stop cancels all workers on this port and closes its sockets.
func (p *PollModePort) Stop() error {
	if p.cancel != nil {
		p.cancel()
	}
	var firstErr error
	for _, s := range p.sockets {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Snapshot returns the accumulated TX/RX counters for this port.
func (p *PollModePort) Snapshot() PortSnapshot {
	return PortSnapshot{
		SentPkts: p.tx.SentPkts.Load(), SentBytes: p.tx.SentBytes.Load(), Dropped: p.tx.Dropped.Load(),
		GoodPkts: p.rx.GoodPkts.Load(), BadPkts: p.rx.BadPkts.Load(), ShortPkts: p.rx.ShortPkts.Load(),
		ExternalPkts: p.rx.ExternalPkts.Load(), BitErrors: p.rx.BitErrors.Load(),
		TotalRxPkts: p.rx.TotalRxPkts.Load(), TotalRxBytes: p.rx.TotalRxBytes.Load(),
	}
}
