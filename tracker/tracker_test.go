package tracker

import "testing"

func TestWatermarkMonotonicity(t *testing.T) {
	e := &Entry{}
	e.Observe(0)
	e.Observe(1)
	e.Observe(2)
	before := e.Load().ExpectedSeq
	e.Observe(2) // duplicate, should not move expected_seq backward
	after := e.Load().ExpectedSeq
	if after < before {
		t.Fatalf("expected_seq decreased: before=%d after=%d", before, after)
	}
}

func TestInducedReorderNetLossZero(t *testing.T) {
	e := &Entry{}
	e.Observe(0)
	c := e.Observe(2) // gap: lost_pkts += 1, expected becomes 3
	if c != Reordered {
		t.Errorf("Observe(2) classification = %v, want Reordered", c)
	}
	snap := e.Load()
	if snap.LostPkts != 1 {
		t.Fatalf("after observing {0,2}: lost_pkts = %d, want 1", snap.LostPkts)
	}
	c = e.Observe(1) // late arrival recovers the gap
	if c != LostThenRecovered {
		t.Errorf("Observe(1) classification = %v, want LostThenRecovered", c)
	}
	snap = e.Load()
	if snap.LostPkts != 0 {
		t.Errorf("after recovering seq 1: lost_pkts = %d, want 0", snap.LostPkts)
	}
	if snap.OutOfOrder != 1 {
		t.Errorf("after recovering seq 1: out_of_order = %d, want 1", snap.OutOfOrder)
	}
}

func TestDuplicateDetection(t *testing.T) {
	e := &Entry{}
	e.Observe(5)
	e.Observe(6)
	c := e.Observe(5)
	if c != Duplicate {
		t.Errorf("re-observing seq 5 classification = %v, want Duplicate", c)
	}
	if e.Load().Duplicates != 1 {
		t.Errorf("duplicates = %d, want 1", e.Load().Duplicates)
	}
}

func TestFirstObservationInitializes(t *testing.T) {
	e := &Entry{}
	e.Observe(42)
	snap := e.Load()
	if !snap.Initialized {
		t.Fatal("expected Initialized after first Observe")
	}
	if snap.MinSeq != 42 || snap.MaxSeq != 42 || snap.ExpectedSeq != 43 || snap.PktCount != 1 {
		t.Errorf("unexpected initial snapshot: %+v", snap)
	}
}

func TestTablePreallocateAndEntry(t *testing.T) {
	tab := NewTable()
	tab.Preallocate(0, 100, 10)
	e := tab.Entry(0, 105)
	if e == nil {
		t.Fatal("expected preallocated entry to exist")
	}
	e2 := tab.Entry(0, 105)
	if e != e2 {
		t.Fatal("Entry should return the same pointer on repeated calls")
	}
}

func TestSequenceWrapCleanly(t *testing.T) {
	e := &Entry{}
	e.Observe(^uint64(0)) // max uint64
	c := e.Observe(0)
	if c != InOrder {
		t.Errorf("wrap-around observation classification = %v, want InOrder", c)
	}
}

func TestEntryResetClearsCountersInPlace(t *testing.T) {
	e := &Entry{}
	e.Observe(0)
	e.Observe(2) // gap, counts a loss
	e.Reset()

	snap := e.Load()
	if snap.Initialized || snap.PktCount != 0 || snap.LostPkts != 0 {
		t.Fatalf("expected a clean slate after Reset, got %+v", snap)
	}

	c := e.Observe(5)
	if c != InOrder {
		t.Errorf("first Observe after Reset classification = %v, want InOrder", c)
	}
}

func TestTableResetAllPreservesEntryPointers(t *testing.T) {
	tab := NewTable()
	tab.Preallocate(0, 100, 4)
	e := tab.Entry(0, 101)
	e.Observe(9)

	tab.ResetAll()

	if e != tab.Entry(0, 101) {
		t.Fatal("ResetAll must not replace entry pointers")
	}
	if e.Load().Initialized {
		t.Fatal("expected entry to be cleared after ResetAll")
	}
}
