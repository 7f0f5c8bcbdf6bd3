package rawport

import (
	"testing"

	"github.com/dtnfabric/fabricprobe/portmap"
	"github.com/dtnfabric/fabricprobe/template"
	"github.com/dtnfabric/fabricprobe/tracker"
)

func TestProcessFrameClassifiesExternal(t *testing.T) {
	cache := template.NewPRBSCache(1518)
	p := &Port{
		id:      12,
		sources: []portmap.RXSource{{Port: 12, SourcePort: 13, VLIDBase: 100, VLIDCount: 10}},
		cache:   cache,
		table:   tracker.NewTable(),
	}

	buf := make([]byte, 256)
	template.Stamp(buf, 0, 999, 0, cache, 12, 0, 256) // VL-ID 999 outside the configured source block

	p.processFrame(buf)
	if p.stats.RXStats.ExternalPkts.Load() != 1 {
		t.Fatalf("expected external classification, got external=%d good=%d", p.stats.RXStats.ExternalPkts.Load(), p.stats.RXStats.GoodPkts.Load())
	}
}

func TestProcessFrameVerifiesGoodFlow(t *testing.T) {
	cache := template.NewPRBSCache(1518)
	p := &Port{
		id:      12,
		sources: []portmap.RXSource{{Port: 12, SourcePort: 13, VLIDBase: 100, VLIDCount: 10}},
		cache:   cache,
		table:   tracker.NewTable(),
	}

	buf := make([]byte, 256)
	// The PRBS cache key must be keyed by the originating port (13,
	// this RXSource's SourcePort), not by the receiving port (12).
	template.Stamp(buf, 0, 105, 0, cache, 13, 0, 256)

	p.processFrame(buf)
	if p.stats.RXStats.GoodPkts.Load() != 1 {
		t.Fatalf("expected good=1, got good=%d bad=%d", p.stats.RXStats.GoodPkts.Load(), p.stats.RXStats.BadPkts.Load())
	}
}

func TestProcessFrameShortPacket(t *testing.T) {
	p := &Port{id: 12, cache: template.NewPRBSCache(1518), table: tracker.NewTable()}
	p.processFrame(make([]byte, 4))
	if p.stats.RXStats.ShortPkts.Load() != 1 {
		t.Fatalf("expected short_pkts=1, got %d", p.stats.RXStats.ShortPkts.Load())
	}
}
