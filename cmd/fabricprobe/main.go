// Command fabricprobe is the test-equipment firmware's CLI entry
// point: it resolves runconfig, brings up every fabric-facing port,
// runs the optional latency sub-test, runs the steady-state traffic
// generator until interrupted, and prints the final DTN aggregation
// report. Shape grounded on the teacher's cmd/bench/main.go main().
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dtnfabric/fabricprobe/afxdp"
	"github.com/dtnfabric/fabricprobe/dataplane"
	"github.com/dtnfabric/fabricprobe/dtnagg"
	"github.com/dtnfabric/fabricprobe/health"
	"github.com/dtnfabric/fabricprobe/ifacestat"
	"github.com/dtnfabric/fabricprobe/latency"
	"github.com/dtnfabric/fabricprobe/obslog"
	"github.com/dtnfabric/fabricprobe/portmap"
	"github.com/dtnfabric/fabricprobe/ptp"
	"github.com/dtnfabric/fabricprobe/rawport"
	"github.com/dtnfabric/fabricprobe/runconfig"
	"github.com/dtnfabric/fabricprobe/supervisor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var log = obslog.New("main")

func fatalIf(err error, msgf string, a ...any) {
	if err != nil {
		fmt.Fprintf(os.Stderr, msgf+": %v\n", append(a, err)...)
		os.Exit(1)
	}
}

func main() {
	conf, err := runconfig.Load(os.Args[1:])
	fatalIf(err, "reading config")

	sv, err := supervisor.New(conf)
	fatalIf(err, "building supervisor")

	rawPorts := make(map[int]*rawport.Port)
	pollPorts := make(map[int]*dataplane.PollModePort)
	portIDs := make([]int, 0, len(sv.PortMap.Ports))
	for _, p := range sv.PortMap.Ports {
		switch p.Transport {
		case portmap.RawSocket:
			// In the Normal topology, a raw-socket port only receives
			// and validates traffic (its RawTargets name the DPDK ports
			// that actually transmit it, wired below as an External-TX
			// sub-role). Only the ATE topology's loopback pairs (12<->14,
			// 13<->15) have the raw port self-transmit.
			var selfTX []portmap.RawTarget
			if sv.PortMap.Topology == portmap.ATE {
				selfTX = sv.PortMap.RawTargets[p.ID]
			}
			port, err := rawport.Open(p.ID, p.Iface, selfTX,
				sv.PortMap.SourcesByPort(p.ID), sv.Cache, sv.Tracker)
			fatalIf(err, "opening raw-socket port %d (%s)", p.ID, p.Iface)
			sv.AddPort(port)
			rawPorts[p.ID] = port
		default:
			var ext *portmap.RawTarget
			if t, ok := sv.PortMap.ExternalTXTarget(p.ID); ok {
				ext = &t
			}
			port, err := dataplane.NewPollModePort(p.ID, p.Iface, afxdp.InterfaceConfig{},
				sv.PortMap.FlowsByPort(p.ID), sv.PortMap.SourcesByPort(p.ID),
				sv.Cache, sv.Tracker, conf.IMIXEnabled, ext)
			fatalIf(err, "opening poll-mode port %d (%s)", p.ID, p.Iface)
			sv.AddPort(port)
			pollPorts[p.ID] = port
		}
		portIDs = append(portIDs, p.ID)
	}

	// PTP shares queue 5 with the ordinary data plane rather than
	// riding the raw-socket control plane, so it needs the poll-mode
	// sockets to already exist before the engine is built.
	if conf.PTPEnabled {
		sv.EnablePTP(ptpTransport{pollPorts})
		rxPorts := make(map[int]bool)
		for _, cfg := range ptp.DefaultSessionTable {
			rxPorts[cfg.RXPort] = true
		}
		for portID := range rxPorts {
			if port, ok := pollPorts[portID]; ok {
				port.SetPTPHandler(sv.PTP)
			}
		}
	}

	// The health monitor and the latency sub-test both ride the
	// raw-socket control plane (ports 13 and 12 respectively) rather
	// than stealing a queue from the PRBS data path.
	const healthPortID, latencyPortID = 13, 12
	if conf.HealthMonitorEnabled {
		if hp, ok := rawPorts[healthPortID]; ok {
			sv.Health = health.New(hp)
			hp.SetHealthMonitor(sv.Health)
		} else {
			log.Sugar().Warnw("health monitor enabled but no raw-socket port available, running detached")
			sv.Health = health.New(noopHealthTransport{})
		}
	}

	var latencyTest *latency.Test
	if conf.LatencyTestEnabled {
		if lp, ok := rawPorts[latencyPortID]; ok {
			latencyTest = latency.New(lp, 0)
			lp.SetLatencyTest(latencyTest)
		} else {
			log.Sugar().Warnw("latency test enabled but no raw-socket port available, skipping")
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(dtnagg.NewCollector(sv.Agg))
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	metricsSrv := &http.Server{Addr: conf.MetricsAddr, Handler: mux}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Sugar().Errorw("metrics server stopped", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := sv.Bringup(ctx); err != nil {
		fatalIf(err, "bring-up")
	}

	ifaceCounters := dtnQueueCounters(sv.PortMap)
	baseline, err := snapshotHardware(ifaceCounters)
	if err != nil {
		log.Sugar().Warnw("ethtool baseline unavailable, DTN rows will fall back to software counters", "error", err)
	}

	if latencyTest != nil {
		probes := buildLatencyProbes(sv.PortMap)
		log.Sugar().Infow("running latency sub-test", "probes", len(probes), "count", conf.LatencyProbeCount)
		for _, r := range latencyTest.Run(ctx, probes, conf.LatencyProbeCount) {
			fmt.Printf("latency port=%d vlan=%d sent=%d received=%d min=%s avg=%s max=%s\n",
				r.Probe.Port, r.Probe.VLAN, r.Sent, r.Received, r.Min, r.Avg, r.Max)
		}
	}

	log.Sugar().Infow("fabricprobe running", "topology", conf.Topology, "ports", len(sv.Ports()))
	sv.Warmup(ctx)

	<-ctx.Done()
	log.Sugar().Infow("stop signal received, draining")

	sv.Stop()
	time.Sleep(300 * time.Millisecond) // let in-flight workers observe cancellation
	fatalIf(sv.Drain(), "draining ports")

	snaps := make(map[int]dataplane.PortSnapshot)
	for i, port := range sv.Ports() {
		snaps[portIDs[i]] = port.Snapshot()
	}

	final, hwErr := snapshotHardware(ifaceCounters)
	var hwDelta ifacestat.Stats
	if hwErr == nil && baseline != nil {
		hwDelta = final.Since(baseline)
	}

	var hw [portmap.DTNRowCount]*dtnagg.HardwareSample
	for i, row := range sv.PortMap.DTNRows {
		if sample := hardwareSampleForRow(sv.PortMap, row, hwDelta); sample != nil {
			hw[i] = sample
			continue
		}
		if snap, ok := snaps[row.ServerPort]; ok {
			hw[i] = &dtnagg.HardwareSample{
				QOPackets: snap.SentPkts, QOBytes: snap.SentBytes,
				QIPackets: snap.TotalRxPkts, QIBytes: snap.TotalRxBytes,
			}
		}
	}

	if final != nil {
		ifacestat.Print(os.Stdout, final, nil, nil)
	}

	var totalSent, totalRecv uint64
	for _, s := range snaps {
		totalSent += s.SentPkts
		totalRecv += s.TotalRxPkts
	}
	p := message.NewPrinter(language.English)
	p.Printf("\nFINAL REPORT\n Sent:     %d packets\n Received: %d packets\n\n", totalSent, totalRecv)
	sv.Report(os.Stdout, hw, snaps, nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
}

// noopHealthTransport is the fallback health.Transport used when no
// dedicated health port is wired to a real socket; it keeps the
// monitor's bookkeeping exercised without requiring extra NIC queues.
type noopHealthTransport struct{}

func (noopHealthTransport) SendQuery(vlidx uint16, seq uint64, payload []byte) error {
	return nil
}

// ptpTransport implements ptp.Transport over the poll-mode ports
// already opened in main: it looks up cfg.TXPort's socket and emits
// the frame on the shared PTP queue.
type ptpTransport struct {
	ports map[int]*dataplane.PollModePort
}

func (t ptpTransport) SendPTP(cfg ptp.SessionConfig, msg ptp.MessageType, payload []byte) error {
	port, ok := t.ports[cfg.TXPort]
	if !ok {
		return fmt.Errorf("ptp: no poll-mode port for tx_port %d", cfg.TXPort)
	}
	return port.SendRaw(ptp.TXQueue, ptp.BuildFrame(cfg, msg, payload))
}

// buildLatencyProbes lists one Probe per (port, VLAN) carried by a
// poll-mode TX flow, tagged with that port's reserved probe VL-ID so
// the RX path can tell echoes apart from PRBS traffic.
func buildLatencyProbes(pm *portmap.PortMap) []latency.Probe {
	seen := make(map[int]bool)
	var probes []latency.Probe
	for _, f := range pm.TXFlows {
		if seen[f.Port] {
			continue
		}
		seen[f.Port] = true
		probes = append(probes, latency.Probe{
			Port: f.Port,
			VLAN: f.VLAN,
			VLID: latency.ProbeVLID(f.Port),
		})
	}
	return probes
}

func queueCounters(q int) []ifacestat.Counter {
	return []ifacestat.Counter{
		ifacestat.QueueCounter("tx", q, "packets"),
		ifacestat.QueueCounter("tx", q, "bytes"),
		ifacestat.QueueCounter("rx", q, "packets"),
		ifacestat.QueueCounter("rx", q, "bytes"),
	}
}

// dtnQueueCounters builds, per poll-mode interface, the ethtool
// counters needed to fill every DTN row whose server port is that
// interface. Raw-socket rows (32/33) have no hardware queue and are
// always filled from the software snapshot.
func dtnQueueCounters(pm *portmap.PortMap) map[string][]ifacestat.Counter {
	out := make(map[string][]ifacestat.Counter)
	for _, row := range pm.DTNRows {
		p, ok := pm.Ports[row.ServerPort]
		if !ok || p.Transport != portmap.PollMode {
			continue
		}
		out[p.Iface] = append(out[p.Iface], queueCounters(row.ServerTXQ)...)
		out[p.Iface] = append(out[p.Iface], queueCounters(row.ServerRXQ)...)
	}
	return out
}

func snapshotHardware(ifaceCounters map[string][]ifacestat.Counter) (ifacestat.Stats, error) {
	out := make(ifacestat.Stats, len(ifaceCounters))
	for iface, counters := range ifaceCounters {
		s, err := ifacestat.Snapshot([]string{iface}, counters...)
		if err != nil {
			return nil, err
		}
		out[iface] = s[iface]
	}
	return out, nil
}

// hardwareSampleForRow reads row's queue counters back out of delta,
// returning nil if no hardware delta is available (the row's port is
// raw-socket, or the ethtool read failed).
func hardwareSampleForRow(pm *portmap.PortMap, row portmap.DTNRow, delta ifacestat.Stats) *dtnagg.HardwareSample {
	if delta == nil {
		return nil
	}
	p, ok := pm.Ports[row.ServerPort]
	if !ok || p.Transport != portmap.PollMode {
		return nil
	}
	iface, ok := delta[p.Iface]
	if !ok {
		return nil
	}
	return &dtnagg.HardwareSample{
		QOPackets: iface[ifacestat.QueueCounter("tx", row.ServerTXQ, "packets")],
		QOBytes:   iface[ifacestat.QueueCounter("tx", row.ServerTXQ, "bytes")],
		QIPackets: iface[ifacestat.QueueCounter("rx", row.ServerRXQ, "packets")],
		QIBytes:   iface[ifacestat.QueueCounter("rx", row.ServerRXQ, "bytes")],
	}
}
