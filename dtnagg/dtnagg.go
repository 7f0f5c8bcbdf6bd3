// Package dtnagg implements the DTN Aggregator (spec.md §4.H): a
// 34-row view mapping (server-port, queue) and the two raw-socket
// ports onto DTN-port slots, merging hardware and software counters
// once per tick.
package dtnagg

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dtnfabric/fabricprobe/dataplane"
	"github.com/dtnfabric/fabricprobe/portmap"
	"github.com/dustin/go-humanize"
)

// RowStats is one DTN-port row's derived view for a single tick.
type RowStats struct {
	Row portmap.DTNRow

	TxGbps, RxGbps float64
	Good, Bad, Lost, OutOfOrder, BitErrors, ShortPkts uint64
	BER float64

	Warning bool
	Unavailable bool // degraded per spec.md §7: a single port's snapshot failure
}

// HardwareSample is what the Supervisor feeds in per tick for a DTN
// row's underlying (server-port, queue) pair: hardware per-queue
// counters grounded on original_source/dpdk/src/helpers.c's
// `helper_print_dtn_stats` (q_opackets/q_obytes/q_ipackets/q_ibytes).
type HardwareSample struct {
	QOPackets, QOBytes uint64
	QIPackets, QIBytes uint64
}

// Aggregator owns the 34-row table and the previous tick's samples
// needed to compute deltas/Gbps.
type Aggregator struct {
	mu       sync.Mutex
	rows     [portmap.DTNRowCount]portmap.DTNRow
	prevHW   [portmap.DTNRowCount]HardwareSample
	prevTime time.Time
	last     [portmap.DTNRowCount]RowStats
}

// New builds an Aggregator over pm's DTN row map.
func New(pm *portmap.PortMap) *Aggregator {
	return &Aggregator{rows: pm.DTNRows, prevTime: time.Now()}
}

// Tick computes one aggregation pass. hw supplies the hardware sample
// for each DTN row (by index); snaps supplies the per-port software
// snapshot (dataplane.PortSnapshot) for poll-mode ports and raw-socket
// equivalents for rows 32/33. A missing hw/snaps entry for a row
// degrades that row to Unavailable, per spec.md §7's reporting error
// class, without affecting the rest of the table.
func (a *Aggregator) Tick(hw [portmap.DTNRowCount]*HardwareSample, snaps map[int]dataplane.PortSnapshot, lostByPort map[int]uint64) [portmap.DTNRowCount]RowStats {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(a.prevTime).Seconds()
	if elapsed <= 0 {
		elapsed = 1
	}

	var out [portmap.DTNRowCount]RowStats
	for i, row := range a.rows {
		out[i].Row = row

		sample := hw[i]
		if sample == nil {
			out[i].Unavailable = true
			continue
		}
		prev := a.prevHW[i]
		txBytesDelta := deltaU64(sample.QOBytes, prev.QOBytes)
		rxBytesDelta := deltaU64(sample.QIBytes, prev.QIBytes)
		out[i].TxGbps = bitsPerSecToGbps(txBytesDelta, elapsed)
		out[i].RxGbps = bitsPerSecToGbps(rxBytesDelta, elapsed)
		a.prevHW[i] = *sample

		snap, ok := snaps[row.ServerPort]
		if !ok {
			out[i].Unavailable = true
			continue
		}
		out[i].Good = snap.GoodPkts
		out[i].Bad = snap.BadPkts
		out[i].ShortPkts = snap.ShortPkts
		out[i].BitErrors = snap.BitErrors
		if snap.TotalRxBytes > 0 {
			out[i].BER = float64(snap.BitErrors) / float64(snap.TotalRxBytes*8)
		}
		out[i].Lost = lostByPort[row.ServerPort]

		out[i].Warning = out[i].Bad > 0 || out[i].BitErrors > 0 || out[i].Lost > 0
	}
	a.prevTime = now
	a.last = out
	return out
}

func deltaU64(now, prev uint64) uint64 {
	if now < prev {
		return 0
	}
	return now - prev
}

func bitsPerSecToGbps(bytesDelta uint64, elapsedSec float64) float64 {
	return float64(bytesDelta) * 8 / elapsedSec / 1e9
}

// Print renders the 34-row table to w, matching the teacher's
// ifacestat.Print terminal-report style (ASCII, English-only — the
// Turkish-character-filter Open Question is resolved out of scope for
// this module, see SPEC_FULL.md §9).
func Print(w io.Writer, rows [portmap.DTNRowCount]RowStats) {
	fmt.Fprintf(w, "%-4s %-6s %8s %8s %10s %10s %10s %6s\n",
		"DTN", "Port", "TxGbps", "RxGbps", "Good", "Bad", "Lost", "BER")
	var warnings []string
	for _, r := range rows {
		if r.Unavailable {
			fmt.Fprintf(w, "%-4d %-6d %8s %8s %10s %10s %10s %6s\n",
				r.Row.DTNPort, r.Row.ServerPort, "N/A", "N/A", "N/A", "N/A", "N/A", "N/A")
			continue
		}
		fmt.Fprintf(w, "%-4d %-6d %8.3f %8.3f %10s %10s %10s %6.2e\n",
			r.Row.DTNPort, r.Row.ServerPort,
			r.TxGbps, r.RxGbps,
			humanize.Comma(int64(r.Good)), humanize.Comma(int64(r.Bad)), humanize.Comma(int64(r.Lost)), r.BER)
		if r.Warning {
			warnings = append(warnings, fmt.Sprintf("DTN port %d: bad=%d bit_errors=%d lost=%d", r.Row.DTNPort, r.Bad, r.BitErrors, r.Lost))
		}
	}
	if len(warnings) > 0 {
		fmt.Fprintln(w, "\nWARNINGS")
		for _, wmsg := range warnings {
			fmt.Fprintln(w, " ", wmsg)
		}
	}
}
