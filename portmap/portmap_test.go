package portmap

import "testing"

func TestNormalTopologyVLIDDisjoint(t *testing.T) {
	pm := Load(Normal)
	if err := pm.Validate(); err != nil {
		t.Fatalf("normal topology VL-ID overlap: %v", err)
	}
	if len(pm.TXFlows) == 0 {
		t.Fatal("expected at least one TX-Flow")
	}
}

func TestATETopologyLoadsWithoutOverlap(t *testing.T) {
	pm := Load(ATE)
	if err := pm.Validate(); err != nil {
		t.Fatalf("ATE topology should bypass the global disjointness check: %v", err)
	}
	if _, ok := pm.Ports[14]; !ok {
		t.Fatal("expected port 14 to exist in ATE topology")
	}
}

func TestContains(t *testing.T) {
	cases := []struct {
		base, count, vlid uint16
		want               bool
	}{
		{100, 10, 100, true},
		{100, 10, 109, true},
		{100, 10, 110, false},
		{100, 10, 99, false},
	}
	for _, c := range cases {
		if got := Contains(c.base, c.count, c.vlid); got != c.want {
			t.Errorf("Contains(%d,%d,%d) = %v, want %v", c.base, c.count, c.vlid, got, c.want)
		}
	}
}

func TestDTNRowCount(t *testing.T) {
	pm := Load(Normal)
	if len(pm.DTNRows) != DTNRowCount {
		t.Fatalf("expected %d DTN rows, got %d", DTNRowCount, len(pm.DTNRows))
	}
	if pm.DTNRows[DTNRawPort12].ServerPort != 12 {
		t.Errorf("row 32 should map to raw port 12")
	}
	if pm.DTNRows[DTNRawPort13].ServerPort != 13 {
		t.Errorf("row 33 should map to raw port 13")
	}
}

func TestNormalTopologyRawPortsReceiveRatherThanTransmit(t *testing.T) {
	pm := Load(Normal)
	for _, f := range pm.TXFlows {
		if f.Port == 12 || f.Port == 13 {
			t.Errorf("raw-socket port %d should not own a self-transmit TX-Flow in the Normal topology", f.Port)
		}
	}
	sources12 := pm.SourcesByPort(12)
	if len(sources12) == 0 {
		t.Fatal("expected port 12 to accept validation traffic via RXSources")
	}
	for _, s := range sources12 {
		if s.SourcePort == 12 {
			t.Error("port 12's RXSource should name a DPDK source port, not itself")
		}
	}
}

func TestExternalTXTargetFindsDPDKSourcePort(t *testing.T) {
	pm := Load(Normal)
	target, ok := pm.ExternalTXTarget(2)
	if !ok {
		t.Fatal("expected port 2 to be named as an External-TX source")
	}
	if target.DestPort != 2 {
		t.Errorf("target.DestPort = %d, want 2", target.DestPort)
	}
	if _, ok := pm.ExternalTXTarget(11); ok {
		t.Error("port 11 is not named by any RawTarget, expected ok=false")
	}
}

func TestFlowsByPortAndSourcesByPort(t *testing.T) {
	pm := Load(Normal)
	flows := pm.FlowsByPort(0)
	if len(flows) == 0 {
		t.Fatal("expected port 0 to own TX-Flows")
	}
	for _, f := range flows {
		if f.Port != 0 {
			t.Errorf("FlowsByPort(0) returned flow for port %d", f.Port)
		}
	}
	sources := pm.SourcesByPort(0)
	if len(sources) == 0 {
		t.Fatal("expected port 0 to have RX sources")
	}
}
