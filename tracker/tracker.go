// Package tracker implements the lock-free per-VL-ID watermark
// algorithm: a receiver tolerant of RSS/hash-induced reordering that
// never marks a packet lost until a strictly later sequence number has
// been observed.
package tracker

import "sync/atomic"

// dupWindow is the size of the recent-sequence bitmap used for
// duplicate detection. Open Question in spec.md §9 resolved here: a
// bounded 64-entry window, indexed by seq%64, is enough to catch
// duplicates arriving within one RSS reorder window without needing an
// unbounded seen-set.
const dupWindow = 64

// Entry is one VL-ID's watermark state. All fields are updated with
// atomic operations; there is no per-entry lock. Entry must not be
// copied after first use.
type Entry struct {
	initialized atomic.Bool
	minSeq      atomic.Uint64
	maxSeq      atomic.Uint64
	expectedSeq atomic.Uint64
	pktCount    atomic.Uint64
	lostPkts    atomic.Uint64
	outOfOrder  atomic.Uint64
	duplicates  atomic.Uint64

	// seen[s%dupWindow] holds s+1 (0 means "empty slot") for the
	// most recently observed sequence that hashed to that slot. A CAS
	// race between two updaters recording distinct sequences in the
	// same slot is acceptable: the counter is explicitly advisory per
	// spec.md §4.F.
	seen [dupWindow]atomic.Uint64
}

// Classification is what Observe reports for one incoming sequence
// number.
type Classification int

const (
	InOrder Classification = iota
	Reordered
	LostThenRecovered
	Duplicate
)

// Observe applies spec.md §4.F's watermark algorithm to sequence s.
func (e *Entry) Observe(s uint64) Classification {
	if e.initialized.CompareAndSwap(false, true) {
		e.minSeq.Store(s)
		e.maxSeq.Store(s)
		e.expectedSeq.Store(s + 1)
		e.pktCount.Store(1)
		e.markSeen(s)
		return InOrder
	}

	e.pktCount.Add(1)

	expected := e.expectedSeq.Load()
	switch {
	case s == expected:
		e.expectedSeq.CompareAndSwap(expected, expected+1)
		e.bumpMax(s)
		e.markSeen(s)
		return InOrder

	case s > expected:
		gap := s - expected
		e.lostPkts.Add(gap)
		e.expectedSeq.Store(s + 1)
		e.bumpMax(s)
		e.markSeen(s)
		return Reordered

	default: // s < expected: late arrival, duplicate, or recovered loss
		if e.wasSeen(s) {
			e.duplicates.Add(1)
			return Duplicate
		}
		e.markSeen(s)
		min := e.minSeq.Load()
		if s >= min {
			// This sequence had previously been counted as lost
			// (expected_seq passed it without having seen it); now it
			// has arrived late, so net loss for it is zero.
			e.lostPkts.Add(^uint64(0)) // decrement by 1 (wraps cleanly, spec.md §8)
			e.outOfOrder.Add(1)
			return LostThenRecovered
		}
		e.outOfOrder.Add(1)
		return Reordered
	}
}

func (e *Entry) bumpMax(s uint64) {
	for {
		cur := e.maxSeq.Load()
		if s <= cur {
			return
		}
		if e.maxSeq.CompareAndSwap(cur, s) {
			return
		}
	}
}

func (e *Entry) markSeen(s uint64) {
	e.seen[s%dupWindow].Store(s + 1)
}

func (e *Entry) wasSeen(s uint64) bool {
	return e.seen[s%dupWindow].Load() == s+1
}

// Snapshot is a point-in-time read of an Entry's counters.
type Snapshot struct {
	MinSeq      uint64
	MaxSeq      uint64
	ExpectedSeq uint64
	PktCount    uint64
	LostPkts    uint64
	OutOfOrder  uint64
	Duplicates  uint64
	Initialized bool
}

// Load returns a consistent-enough snapshot of e for reporting. Reads
// are not a single atomic transaction across fields, matching
// spec.md §5's "aggregator reads them with a monotonic snapshot"
// looseness — counters only ever move forward within a tick.
func (e *Entry) Load() Snapshot {
	return Snapshot{
		MinSeq:      e.minSeq.Load(),
		MaxSeq:      e.maxSeq.Load(),
		ExpectedSeq: e.expectedSeq.Load(),
		PktCount:    e.pktCount.Load(),
		LostPkts:    e.lostPkts.Load(),
		OutOfOrder:  e.outOfOrder.Load(),
		Duplicates:  e.duplicates.Load(),
		Initialized: e.initialized.Load(),
	}
}

// Reset clears e's counters in place so the Entry pointer already held
// by a running RX worker sees a clean slate on the next Observe, with
// no pointer swap required.
func (e *Entry) Reset() {
	e.initialized.Store(false)
	e.minSeq.Store(0)
	e.maxSeq.Store(0)
	e.expectedSeq.Store(0)
	e.pktCount.Store(0)
	e.lostPkts.Store(0)
	e.outOfOrder.Store(0)
	e.duplicates.Store(0)
	for i := range e.seen {
		e.seen[i].Store(0)
	}
}

// Table holds the per-(port, VL-ID) entries in a two-level map keyed by
// port, then VL-ID; each Entry is allocated separately and handed out by
// pointer. It is not a flat array indexed by (port, VL-ID).
type Table struct {
	byPort map[int]map[uint16]*Entry
}

// NewTable returns an empty tracker table.
func NewTable() *Table {
	return &Table{byPort: make(map[int]map[uint16]*Entry)}
}

// Entry returns the tracker entry for (port, vlid), creating it (and
// its port bucket) on first access. Entry creation itself happens at
// bring-up in practice, from the PortMap's VL-ID blocks, so the map is
// effectively read-only on the hot path.
func (t *Table) Entry(port int, vlid uint16) *Entry {
	byVLID, ok := t.byPort[port]
	if !ok {
		byVLID = make(map[uint16]*Entry)
		t.byPort[port] = byVLID
	}
	e, ok := byVLID[vlid]
	if !ok {
		e = &Entry{}
		byVLID[vlid] = e
	}
	return e
}

// Preallocate creates entries for every VL-ID in [base, base+count) on
// the given port, so the hot path in Entry never takes the map-miss
// branch concurrently with RX workers.
func (t *Table) Preallocate(port int, base, count uint16) {
	for v := base; v < base+count; v++ {
		t.Entry(port, v)
	}
}

// ResetAll zeroes every entry currently in the table, in place. Used
// once at the end of a warm-up window: counters accumulated while
// queues were still ramping up should not count against the steady
// state measurement.
func (t *Table) ResetAll() {
	for _, byVLID := range t.byPort {
		for _, e := range byVLID {
			e.Reset()
		}
	}
}
