// Package supervisor owns the run lifecycle spec.md §4.K names: load
// the port map, bring up pools/queues/PRBS caches, start RX then TX
// workers, run a warm-up window, run the steady-state test, stop,
// drain, and report. It is the sole owner of the Port set, VL-ID map,
// PRBS caches, and rate-limiter configuration (spec.md §3's ownership
// rule).
package supervisor

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dtnfabric/fabricprobe/dataplane"
	"github.com/dtnfabric/fabricprobe/dtnagg"
	"github.com/dtnfabric/fabricprobe/health"
	"github.com/dtnfabric/fabricprobe/obslog"
	"github.com/dtnfabric/fabricprobe/portmap"
	"github.com/dtnfabric/fabricprobe/ptp"
	"github.com/dtnfabric/fabricprobe/runconfig"
	"github.com/dtnfabric/fabricprobe/template"
	"github.com/dtnfabric/fabricprobe/tracker"
)

var log = obslog.New("supervisor")

// Supervisor orchestrates one end-to-end run. It holds a homogeneous
// slice of dataplane.Port regardless of whether a given port is
// poll-mode (AF_XDP) or raw-socket backed (spec.md §9's "dynamic
// dispatch for two transports" resolved as a plain Go interface
// rather than a tagged union).
type Supervisor struct {
	Config  *runconfig.Config
	PortMap *portmap.PortMap
	Cache   *template.PRBSCache
	Tracker *tracker.Table
	Agg     *dtnagg.Aggregator
	PTP     *ptp.Engine
	Health  *health.Monitor

	ports  []dataplane.Port
	cancel context.CancelFunc
}

// New builds a Supervisor for the given resolved configuration,
// loading the selected port map and constructing the shared PRBS
// cache and tracker table up front — nothing below this point
// mutates these structures again during the run.
func New(cfg *runconfig.Config) (*Supervisor, error) {
	topology := portmap.Normal
	if cfg.Topology == "ate" {
		topology = portmap.ATE
	}
	pm := portmap.Load(topology)
	if err := pm.Validate(); err != nil {
		return nil, fmt.Errorf("supervisor: invalid port map: %w", err)
	}

	s := &Supervisor{
		Config:  cfg,
		PortMap: pm,
		Cache:   template.NewPRBSCache(1518),
		Tracker: tracker.NewTable(),
		Agg:     dtnagg.New(pm),
	}

	for _, f := range pm.TXFlows {
		s.Cache.Warm(f.Port, f.Queue, vlidRange(f.VLIDBase, f.VLIDCount))
	}
	for _, r := range pm.RXSources {
		s.Tracker.Preallocate(r.Port, r.VLIDBase, r.VLIDCount)
	}
	if pm.Topology == portmap.Normal {
		// The Normal topology's RawTargets name the DPDK ports that
		// originate external-validation traffic for raw-socket ports
		// 12/13 (see PortMap.ExternalTXTarget); the ATE topology's
		// RawTargets instead describe its raw ports' own self-transmit
		// flows, already covered by the pm.TXFlows loop above.
		for _, targets := range pm.RawTargets {
			for _, t := range targets {
				s.Cache.Warm(t.DestPort, 0, vlidRange(t.VLIDBase, t.VLIDCount))
			}
		}
	}

	return s, nil
}

// EnablePTP builds the 32-session PTP slave engine bound to transport.
// Callers wire transport from the already-constructed poll-mode ports
// (spec.md §4.J's queue-5 sharing means the engine needs those sockets
// to exist first), then attach the resulting Engine as each relevant
// port's PTPHandler before Bringup.
func (s *Supervisor) EnablePTP(transport ptp.Transport) {
	s.PTP = ptp.NewEngine(ptp.DefaultSessionTable, transport)
}

func vlidRange(base, count uint16) []uint16 {
	out := make([]uint16, count)
	for i := range out {
		out[i] = base + uint16(i)
	}
	return out
}

// AddPort registers a started or startable Port with the Supervisor's
// homogeneous collection, regardless of its underlying transport.
func (s *Supervisor) AddPort(p dataplane.Port) {
	s.ports = append(s.ports, p)
}

// Ports returns the registered ports, for callers building per-port
// snapshots ahead of Report.
func (s *Supervisor) Ports() []dataplane.Port {
	return s.ports
}

// Bringup starts every registered port. Any single failure tears down
// the ports already started and returns the error (spec.md §7's Fatal
// error class).
func (s *Supervisor) Bringup(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	for i, p := range s.ports {
		if err := p.Start(ctx); err != nil {
			for j := 0; j < i; j++ {
				_ = s.ports[j].Stop()
			}
			cancel()
			return fmt.Errorf("supervisor: starting port %d: %w", i, err)
		}
	}

	if s.PTP != nil {
		go s.runPTPLoop(ctx)
	}
	if s.Health != nil {
		go s.Health.Run(ctx)
	}
	return nil
}

func (s *Supervisor) runPTPLoop(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.PTP.PollAll(now)
		}
	}
}

// Warmup blocks for the configured warm-up window, then resets the
// tracker table in place once (spec.md §4.K step 5): entries already
// handed out to running RX workers stay valid pointers, they just see
// zeroed counters on the next Observe.
func (s *Supervisor) Warmup(ctx context.Context) {
	d := time.Duration(s.Config.WarmupSeconds) * time.Second
	select {
	case <-time.After(d):
	case <-ctx.Done():
		return
	}
	s.Tracker.ResetAll()
	log.Sugar().Infow("warm-up complete, counters reset", "duration", d)
}

// Stop flips the shared cancellation, asking every worker to drain
// and exit. It does not itself block; callers should join workers
// with their own bounded timeout, per spec.md §5.
func (s *Supervisor) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

// Drain stops every registered port, collecting the first error
// encountered (ports keep closing even if one fails).
func (s *Supervisor) Drain() error {
	var firstErr error
	for _, p := range s.ports {
		if err := p.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Report renders the final DTN aggregation table. Callers supply the
// hardware samples, per-port dataplane snapshots, and per-port lost
// counts.
func (s *Supervisor) Report(w io.Writer, hw [portmap.DTNRowCount]*dtnagg.HardwareSample, snaps map[int]dataplane.PortSnapshot, lostByPort map[int]uint64) {
	rows := s.Agg.Tick(hw, snaps, lostByPort)
	dtnagg.Print(w, rows)
}
