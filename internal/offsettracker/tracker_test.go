package offsettracker

import (
	"context"
	"testing"

	"ledgersync/internal/graphdb"
)

type fakeExecutor struct {
	graphdb.Executor
	offset int64
	found  bool
	err    error
}

func (f *fakeExecutor) LastCommittedOffset(context.Context) (int64, bool, error) {
	return f.offset, f.found, f.err
}

func TestResumePointUsesConfiguredBeginOffsetWhenStoreEmpty(t *testing.T) {
	exec := &fakeExecutor{found: false}
	offset, err := ResumePoint(context.Background(), exec, false, 42, nil)
	if err != nil {
		t.Fatalf("ResumePoint: %v", err)
	}
	if offset != 42 {
		t.Errorf("expected begin_offset 42 when store is empty, got %d", offset)
	}
}

func TestResumePointUsesLastCommittedOffset(t *testing.T) {
	exec := &fakeExecutor{found: true, offset: 11}
	offset, err := ResumePoint(context.Background(), exec, false, 0, nil)
	if err != nil {
		t.Fatalf("ResumePoint: %v", err)
	}
	if offset != 11 {
		t.Errorf("expected resume at last committed offset 11, got %d", offset)
	}
}

func TestResumePointFreshUsesLedgerEnd(t *testing.T) {
	exec := &fakeExecutor{found: true, offset: 11}
	ledgerEnd := func(context.Context) (int64, error) { return 999, nil }
	offset, err := ResumePoint(context.Background(), exec, true, 0, ledgerEnd)
	if err != nil {
		t.Fatalf("ResumePoint: %v", err)
	}
	if offset != 999 {
		t.Errorf("expected --fresh to resume at the ledger end 999, got %d", offset)
	}
}

// TestAdvanceIsMonotonic is scenario S4 in miniature: after a crash and
// restart, re-delivering an already-committed offset must not regress the
// tracked value.
func TestAdvanceIsMonotonic(t *testing.T) {
	tr := New(10)
	tr.Advance(11)
	tr.Advance(10) // replay of an already-seen offset
	if got := tr.Current(); got != 11 {
		t.Errorf("expected Advance to be monotonic, got %d", got)
	}
	tr.Advance(12)
	if got := tr.Current(); got != 12 {
		t.Errorf("expected Current to reflect the new high-water mark, got %d", got)
	}
}
