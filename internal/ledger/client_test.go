package ledger

import (
	"context"
	"io"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"ledgersync/internal/ledgerapi"
	"ledgersync/internal/syncerr"
)

type fakeUpdateStream struct {
	messages []*ledgerapi.UpdateMessage
	err      error
	idx      int
}

func (f *fakeUpdateStream) Recv() (*ledgerapi.UpdateMessage, error) {
	if f.idx >= len(f.messages) {
		if f.err != nil {
			return nil, f.err
		}
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

func (f *fakeConn) GetUpdates(ctx context.Context, token string, req *ledgerapi.GetUpdatesRequest) (ledgerapi.UpdateStream, error) {
	return f.updates, nil
}
func (f *fakeConn) GetActiveContracts(ctx context.Context, token string, req *ledgerapi.GetActiveContractsRequest) (ledgerapi.ActiveContractStream, error) {
	return nil, nil
}
func (f *fakeConn) GetLedgerEnd(ctx context.Context, token string) (*ledgerapi.GetLedgerEndResponse, error) {
	return &ledgerapi.GetLedgerEndResponse{Offset: 42}, nil
}
func (f *fakeConn) GetLatestPrunedOffsets(ctx context.Context, token string) (*ledgerapi.GetLatestPrunedOffsetsResponse, error) {
	return nil, status.Error(codes.Unauthenticated, "token expired")
}
func (f *fakeConn) Close() error { return nil }

func TestStreamRecvDecodesTransaction(t *testing.T) {
	conn := &fakeConn{updates: &fakeUpdateStream{messages: []*ledgerapi.UpdateMessage{
		{
			Transaction: &ledgerapi.TransactionMessage{
				Offset:            10,
				UpdateID:          "u1",
				RequestingParties: []string{"alice"},
				Events: []ledgerapi.EventMessage{
					{NodeID: 0, Created: &ledgerapi.CreatedMessage{ContractID: "c1", TemplateName: "Foo.Bar"}},
					{NodeID: 1, Exercised: &ledgerapi.ExercisedMessage{TargetContractID: "c1", ChoiceName: "Archive", LastDescendantNodeID: 1}},
				},
			},
		},
	}}}
	client := NewClient(conn)

	stream, err := client.Subscribe(context.Background(), "tok", []string{"alice"}, 9, nil)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	update, err := stream.Recv()
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	tx, ok := update.(*TransactionUpdate)
	if !ok {
		t.Fatalf("expected *TransactionUpdate, got %T", update)
	}
	if tx.OffsetVal != 10 || len(tx.Events) != 2 {
		t.Fatalf("unexpected transaction: %+v", tx)
	}

	if _, err := stream.Recv(); err != io.EOF {
		t.Fatalf("expected io.EOF at end of stream, got %v", err)
	}
}

func TestLedgerEnd(t *testing.T) {
	client := NewClient(&fakeConn{})
	end, err := client.LedgerEnd(context.Background(), "tok")
	if err != nil {
		t.Fatalf("ledger end: %v", err)
	}
	if end != 42 {
		t.Fatalf("end = %d, want 42", end)
	}
}

func TestPruningOffsetClassifiesAuthExpired(t *testing.T) {
	client := NewClient(&fakeConn{})
	_, err := client.PruningOffset(context.Background(), "tok")
	if !syncerr.Is(err, syncerr.KindAuthExpired) {
		t.Fatalf("expected Auth.Expired, got %v", err)
	}
}

func TestParsePrunedOffset(t *testing.T) {
	offset, ok := parsePrunedOffset("request rejected: pruned up to offset 500, raise begin_offset")
	if !ok || offset != 500 {
		t.Fatalf("parsePrunedOffset = (%d, %v), want (500, true)", offset, ok)
	}

	if _, ok := parsePrunedOffset("no marker here"); ok {
		t.Fatalf("expected no match")
	}
}
