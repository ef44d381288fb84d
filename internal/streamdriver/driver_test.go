package streamdriver

import (
	"context"
	"io"
	"testing"
	"time"

	"ledgersync/internal/auth"
	"ledgersync/internal/batch"
	"ledgersync/internal/graphdb"
	"ledgersync/internal/ledger"
	"ledgersync/internal/ledgerapi"
	"ledgersync/internal/offsettracker"
)

type fakeUpdateStream struct {
	messages []*ledgerapi.UpdateMessage
	idx      int
}

func (f *fakeUpdateStream) Recv() (*ledgerapi.UpdateMessage, error) {
	if f.idx >= len(f.messages) {
		return nil, io.EOF
	}
	msg := f.messages[f.idx]
	f.idx++
	return msg, nil
}

func (f *fakeUpdateStream) CloseSend() error { return nil }

type fakeConn struct {
	updates *fakeUpdateStream
}

func (f *fakeConn) GetUpdates(context.Context, string, *ledgerapi.GetUpdatesRequest) (ledgerapi.UpdateStream, error) {
	return f.updates, nil
}
func (f *fakeConn) GetActiveContracts(context.Context, string, *ledgerapi.GetActiveContractsRequest) (ledgerapi.ActiveContractStream, error) {
	return &fakeACSStream{}, nil
}
func (f *fakeConn) GetLedgerEnd(context.Context, string) (*ledgerapi.GetLedgerEndResponse, error) {
	return &ledgerapi.GetLedgerEndResponse{Offset: 5}, nil
}
func (f *fakeConn) GetLatestPrunedOffsets(context.Context, string) (*ledgerapi.GetLatestPrunedOffsetsResponse, error) {
	return &ledgerapi.GetLatestPrunedOffsetsResponse{}, nil
}
func (f *fakeConn) Close() error { return nil }

type fakeACSStream struct{}

func (f *fakeACSStream) Recv() (*ledgerapi.ActiveContractMessage, error) { return nil, io.EOF }

type fakeExecutor struct{ graphdb.Executor }

func (f *fakeExecutor) RunWrite(context.Context, graphdb.Batch) error { return nil }

func newTestDriver(t *testing.T, conn ledgerapi.Conn, endInclusive *int64) (*Driver, *offsettracker.Tracker) {
	t.Helper()
	client := ledger.NewClient(conn)
	tokens := auth.NewManager(auth.NewStaticSource("tok"), nil)
	if err := tokens.Start(context.Background()); err != nil {
		t.Fatalf("token manager start: %v", err)
	}
	tracker := offsettracker.New(0)
	writer := batch.New(&fakeExecutor{}, nil, tracker.Advance)
	writer.SetThresholds(0, 10*time.Millisecond)

	go writer.Run(context.Background())

	return New(client, tokens, writer, tracker, []string{"alice"}, endInclusive, false, nil), tracker
}

func TestDriverRunsToDoneWithEndInclusive(t *testing.T) {
	end := int64(10)
	conn := &fakeConn{updates: &fakeUpdateStream{messages: []*ledgerapi.UpdateMessage{
		{Transaction: &ledgerapi.TransactionMessage{Offset: 10, UpdateID: "u1", Events: []ledgerapi.EventMessage{
			{NodeID: 0, Created: &ledgerapi.CreatedMessage{ContractID: "c1", TemplateName: "Foo"}},
		}}},
	}}}
	driver, tracker := newTestDriver(t, conn, &end)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := driver.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	deadline := time.After(time.Second)
	for tracker.Current() != 10 {
		select {
		case <-deadline:
			t.Fatalf("expected the tracker to observe offset 10 eventually, got %d", tracker.Current())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestDriverLoadsACSBeforeStreaming(t *testing.T) {
	conn := &fakeConn{updates: &fakeUpdateStream{}}
	client := ledger.NewClient(conn)
	tokens := auth.NewManager(auth.NewStaticSource("tok"), nil)
	if err := tokens.Start(context.Background()); err != nil {
		t.Fatalf("token manager start: %v", err)
	}
	tracker := offsettracker.New(0)
	writer := batch.New(&fakeExecutor{}, nil, tracker.Advance)
	writer.SetThresholds(0, 10*time.Millisecond)
	go writer.Run(context.Background())

	end := int64(0)
	driver := New(client, tokens, writer, tracker, []string{"alice"}, &end, true, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := driver.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if tracker.Current() != 5 {
		t.Errorf("expected the tracker to be seeded at the ACS's ledger end (5), got %d", tracker.Current())
	}
}

func TestStateString(t *testing.T) {
	for _, s := range []State{StateStarting, StateConnecting, StateStreaming, StateRefreshingAuth, StateBackoff, StateDone, StateFailed} {
		if s.String() == "Unknown" {
			t.Errorf("expected a named String() for state %d", s)
		}
	}
}
