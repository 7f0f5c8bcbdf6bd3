package dtnagg

import (
	"bytes"
	"testing"

	"github.com/dtnfabric/fabricprobe/dataplane"
	"github.com/dtnfabric/fabricprobe/portmap"
)

func TestTickComputesGbpsAndBER(t *testing.T) {
	pm := portmap.Load(portmap.Normal)
	agg := New(pm)

	var hw [portmap.DTNRowCount]*HardwareSample
	hw[0] = &HardwareSample{QOBytes: 1_000_000_000, QIBytes: 500_000_000}

	snaps := map[int]dataplane.PortSnapshot{
		pm.DTNRows[0].ServerPort: {GoodPkts: 990, BadPkts: 10, BitErrors: 80, TotalRxBytes: 1_000_000},
	}

	rows := agg.Tick(hw, snaps, nil)
	row0 := rows[0]
	if row0.Good != 990 || row0.Bad != 10 {
		t.Errorf("row 0 good/bad = %d/%d, want 990/10", row0.Good, row0.Bad)
	}
	if row0.Good+row0.Bad > 1000 {
		t.Errorf("counter conservation violated: good+bad = %d > total offered 1000", row0.Good+row0.Bad)
	}
	if !row0.Warning {
		t.Error("row with bad>0 should be flagged as a warning")
	}
	expectedBER := float64(80) / float64(1_000_000*8)
	if row0.BER != expectedBER {
		t.Errorf("BER = %v, want %v", row0.BER, expectedBER)
	}
}

func TestTickDegradesMissingRowToUnavailable(t *testing.T) {
	pm := portmap.Load(portmap.Normal)
	agg := New(pm)
	var hw [portmap.DTNRowCount]*HardwareSample
	rows := agg.Tick(hw, nil, nil)
	for i, r := range rows {
		if !r.Unavailable {
			t.Fatalf("row %d should be unavailable when no hardware sample is supplied", i)
		}
	}
}

func TestPrintDoesNotPanicOnMixedRows(t *testing.T) {
	pm := portmap.Load(portmap.Normal)
	agg := New(pm)
	var hw [portmap.DTNRowCount]*HardwareSample
	hw[0] = &HardwareSample{QOBytes: 100, QIBytes: 100}
	rows := agg.Tick(hw, nil, nil)

	var buf bytes.Buffer
	Print(&buf, rows)
	if buf.Len() == 0 {
		t.Fatal("expected non-empty report output")
	}
}
