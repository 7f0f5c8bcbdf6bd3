// Package ifacestat reads per-queue hardware counters via ethtool -S
// and prints a per-interface TX/RX byte-total table.
package ifacestat

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os/exec"
	"slices"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

// Counter is a raw ethtool statistic key, e.g. "rx_queue_0_packets".
// Unlike the teacher's fixed four-value enum, this is an open string
// set: the DTN Aggregator needs one counter per (direction, queue)
// pair, and queue counts vary per port.
type Counter string

// QueueCounter builds the conventional ethtool -S key for a per-queue
// packet/byte counter, matching the naming several common NIC drivers
// (mlx5, i40e, ice) use.
func QueueCounter(dir string, queue int, field string) Counter {
	return Counter(fmt.Sprintf("%s_queue_%d_%s", dir, queue, field))
}

// Per-interface values.
type IfaceStats map[Counter]uint64

// Multi-interface stats.
type Stats map[string]IfaceStats

// Snapshot runs ethtool -S on all interfaces and returns the requested
// counters.
func Snapshot(ifaces []string, counters ...Counter) (Stats, error) {
	s := make(Stats)
	for _, iface := range ifaces {
		vals, err := readIface(iface, counters)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", iface, err)
		}
		s[iface] = vals
	}
	return s, nil
}

// Since computes s(now) - old, clamping negative deltas (counter
// reset or wrap) to zero rather than underflowing.
func (s Stats) Since(old Stats) Stats {
	out := make(Stats)
	for ifc, now := range s {
		prev := old[ifc]
		diff := make(IfaceStats, len(now))
		for ctr, v := range now {
			if v < prev[ctr] {
				diff[ctr] = 0
				continue
			}
			diff[ctr] = v - prev[ctr]
		}
		out[ifc] = diff
	}
	return out
}

func readIface(name string, counters []Counter) (IfaceStats, error) {
	out, err := exec.Command("ethtool", "-S", name).Output()
	if err != nil {
		return nil, err
	}

	want := make(map[string]Counter, len(counters))
	for _, c := range counters {
		want[string(c)] = c
	}

	found := make(IfaceStats, len(counters))

	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		parts := strings.Fields(line)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSuffix(parts[0], ":")
		ctr, ok := want[key]
		if !ok {
			continue
		}

		v, err := strconv.ParseUint(parts[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", key, err)
		}
		found[ctr] = v
	}

	for _, ctr := range counters {
		if _, ok := found[ctr]; !ok {
			found[ctr] = 0
		}
	}

	return found, nil
}

// Print renders per-interface TX/RX totals. aliases maps an interface
// name to a friendlier label, matching the teacher's terminal report
// style.
func Print(w io.Writer, s Stats, totals map[string][2]uint64, aliases map[string]string) error {
	ifaces := make([]string, 0, len(s))
	for iface := range s {
		ifaces = append(ifaces, iface)
	}
	slices.Sort(ifaces)

	for _, iface := range ifaces {
		txBytes, rxBytes := totals[iface][0], totals[iface][1]

		if alias, ok := aliases[iface]; ok {
			fmt.Fprintf(w, "%s (%s):\n", iface, alias)
		} else {
			fmt.Fprintf(w, "%s :\n", iface)
		}

		fmt.Fprintf(w, "  TX   ≈ %-8s (%s)\n", humanize.Bytes(txBytes), humanize.Comma(int64(txBytes)))
		fmt.Fprintf(w, "  RX   ≈ %-8s (%s)\n", humanize.Bytes(rxBytes), humanize.Comma(int64(rxBytes)))
	}

	return nil
}
