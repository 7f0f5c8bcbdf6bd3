package portmap

import "strconv"

// Static tables grounded on original_source/dpdk/include/Config.h.
// Only the VL-ID ranges and port roles the spec actually exercises are
// reproduced; queue counts and link speeds follow spec.md §3's defaults
// (2 TX queues, 4 RX queues) except for the raw-socket ports, which are
// single-queue kernel interfaces.

func basePorts() map[int]Port {
	ports := map[int]Port{}
	for id := 0; id <= 11; id++ {
		ports[id] = Port{ID: id, Iface: ifaceName(id), Transport: PollMode, LinkGbps: 10, TXQueues: 2, RXQueues: 4, PoolFrames: 4096}
	}
	ports[12] = Port{ID: 12, Iface: "eno12399", Transport: RawSocket, LinkGbps: 1, TXQueues: 1, RXQueues: 1, PoolFrames: 2048}
	ports[13] = Port{ID: 13, Iface: "eno12409", Transport: RawSocket, LinkGbps: 0.1, TXQueues: 1, RXQueues: 1, PoolFrames: 2048}
	return ports
}

func ifaceName(id int) string {
	return "eth" + strconv.Itoa(id)
}

// normalTopology mirrors Config.h's non-ATE configuration: ports 0-11
// are poll-mode DPDK-style fabric ports; ports 12/13 are raw-socket
// fallback ports carrying external TX/RX traffic.
func normalTopology() *PortMap {
	pm := &PortMap{
		Topology: Normal,
		Ports:    basePorts(),
	}

	// Poll-mode ports: one contiguous 128-VL-ID block per queue,
	// base offsets chosen to keep all poll-mode blocks below the
	// raw-socket range that starts at 4131.
	vlidBase := uint16(MinVLID)
	for port := 0; port <= 11; port++ {
		for q := 0; q < 2; q++ {
			pm.TXFlows = append(pm.TXFlows, TXFlow{
				Port: port, Queue: q,
				VLAN:      uint16(100 + port*4 + q),
				VLIDBase:  vlidBase,
				VLIDCount: DefaultBlockSize,
				RateMbps:  1000,
			})
			pm.RXSources = append(pm.RXSources, RXSource{
				Port: port, SourcePort: port,
				VLIDBase: vlidBase, VLIDCount: DefaultBlockSize,
			})
			vlidBase += DefaultBlockSize
		}
	}

	// Raw-socket Port 12 TX targets, grounded on PORT_12_TX_TARGETS_INIT
	// (non-token-bucket variant): 4 targets x 32 VL-IDs, 230 Mbps each.
	pm.RawTargets = map[int][]RawTarget{
		12: {
			{TargetID: 0, DestPort: 2, RateMbps: 230, VLIDBase: 4259, VLIDCount: 32},
			{TargetID: 1, DestPort: 3, RateMbps: 230, VLIDBase: 4227, VLIDCount: 32},
			{TargetID: 2, DestPort: 4, RateMbps: 230, VLIDBase: 4195, VLIDCount: 32},
			{TargetID: 3, DestPort: 5, RateMbps: 230, VLIDBase: 4163, VLIDCount: 32},
		},
		// Raw-socket Port 13 TX targets, grounded on PORT_13_TX_TARGETS_INIT.
		13: {
			{TargetID: 0, DestPort: 0, RateMbps: 45, VLIDBase: 4131, VLIDCount: 16},
			{TargetID: 1, DestPort: 6, RateMbps: 45, VLIDBase: 4147, VLIDCount: 16},
		},
	}
	// Per DpdkExternalTx.h, these targets name the DPDK ports that
	// originate the validation traffic, not ports 12/13 transmitting it
	// themselves — 12/13 only receive and verify it. RXSources records
	// that; the sending side is wired as an External-TX sub-role on
	// each named DestPort's own poll-mode TX worker, see
	// PortMap.ExternalTXTarget.
	for _, t := range pm.RawTargets[12] {
		pm.RXSources = append(pm.RXSources, RXSource{Port: 12, SourcePort: t.DestPort, VLIDBase: t.VLIDBase, VLIDCount: t.VLIDCount})
	}
	for _, t := range pm.RawTargets[13] {
		pm.RXSources = append(pm.RXSources, RXSource{Port: 13, SourcePort: t.DestPort, VLIDBase: t.VLIDBase, VLIDCount: t.VLIDCount})
	}

	pm.DTNRows = buildDTNRows()
	return pm
}

// ateTopology mirrors Config.h's ATE_PORT_* tables: ports 12<->14 and
// 13<->15 loop back through the switch at full duplex over the same
// VL-ID ranges. All four ports (12, 13, 14, 15) are modelled as
// raw-socket ports, each transmitting to and receiving from its pair.
func ateTopology() *PortMap {
	pm := &PortMap{
		Topology: ATE,
		Ports:    basePorts(),
	}
	pm.Ports[14] = Port{ID: 14, Iface: "eno12419", Transport: RawSocket, LinkGbps: 1, TXQueues: 1, RXQueues: 1, PoolFrames: 2048}
	pm.Ports[15] = Port{ID: 15, Iface: "eno12429", Transport: RawSocket, LinkGbps: 0.1, TXQueues: 1, RXQueues: 1, PoolFrames: 2048}

	pm.RawTargets = map[int][]RawTarget{
		12: {{TargetID: 0, DestPort: 14, RateMbps: 960, VLIDBase: 4163, VLIDCount: 128}},
		14: {{TargetID: 0, DestPort: 12, RateMbps: 960, VLIDBase: 4163, VLIDCount: 128}},
		13: {{TargetID: 0, DestPort: 15, RateMbps: 92, VLIDBase: 4131, VLIDCount: 32}},
		15: {{TargetID: 0, DestPort: 13, RateMbps: 92, VLIDBase: 4131, VLIDCount: 32}},
	}
	pm.TXFlows = []TXFlow{
		{Port: 12, Queue: 0, VLIDBase: 4163, VLIDCount: 128, RateMbps: 960},
		{Port: 14, Queue: 0, VLIDBase: 4163, VLIDCount: 128, RateMbps: 960},
		{Port: 13, Queue: 0, VLIDBase: 4131, VLIDCount: 32, RateMbps: 92},
		{Port: 15, Queue: 0, VLIDBase: 4131, VLIDCount: 32, RateMbps: 92},
	}
	pm.RXSources = []RXSource{
		{Port: 12, SourcePort: 14, VLIDBase: 4163, VLIDCount: 128},
		{Port: 14, SourcePort: 12, VLIDBase: 4163, VLIDCount: 128},
		{Port: 13, SourcePort: 15, VLIDBase: 4131, VLIDCount: 32},
		{Port: 15, SourcePort: 13, VLIDBase: 4131, VLIDCount: 32},
	}
	pm.DTNRows = buildDTNRows()
	return pm
}

// buildDTNRows fills the 34-row aggregation table: 32 poll-mode rows,
// four per server port (rows 0-3 on port 0 through rows 28-31 on port
// 7), each using queue i%2 for both its TX and RX side, plus the two
// raw-socket synthetic rows.
func buildDTNRows() [DTNRowCount]DTNRow {
	var rows [DTNRowCount]DTNRow
	for i := 0; i < 32; i++ {
		port := i / 4 % 12
		q := i % 2
		rows[i] = DTNRow{
			DTNPort:    i,
			ServerPort: port,
			ServerTXQ:  q,
			ServerRXQ:  q,
			VLANBase:   uint16(100 + port*4 + q),
		}
	}
	rows[DTNRawPort12] = DTNRow{DTNPort: DTNRawPort12, ServerPort: 12}
	rows[DTNRawPort13] = DTNRow{DTNPort: DTNRawPort13, ServerPort: 13}
	return rows
}
