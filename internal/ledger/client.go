package ledger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"ledgersync/internal/ledgerapi"
	"ledgersync/internal/syncerr"
)

// Client is the domain-level view of the ledger, built on top of the
// ledgerapi wire transport. It never returns wire types: callers only see
// Update, Event, and the classified errors from internal/syncerr.
type Client struct {
	conn ledgerapi.Conn
}

// NewClient wraps an already-dialed transport connection.
func NewClient(conn ledgerapi.Conn) *Client {
	return &Client{conn: conn}
}

// Close releases the underlying transport connection.
func (c *Client) Close() error { return c.conn.Close() }

// Stream is the domain-level subscription handle returned by Subscribe.
type Stream struct {
	wire ledgerapi.UpdateStream
}

// Recv returns the next decoded Update, or a classified error. io.EOF from
// the wire becomes a plain io.EOF so callers can distinguish a graceful
// end-of-stream (end_inclusive reached) from a reconnect-worthy failure.
func (s *Stream) Recv() (Update, error) {
	msg, err := s.wire.Recv()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, classifyError(err)
	}
	update, err := fromWireUpdate(msg)
	if err != nil {
		return nil, syncerr.New(syncerr.KindProtocolMalformed, err)
	}
	return update, nil
}

// Subscribe opens a server-streaming subscription for parties, resuming
// strictly after beginExclusive. endInclusive is optional.
func (c *Client) Subscribe(ctx context.Context, token string, parties []string, beginExclusive int64, endInclusive *int64) (*Stream, error) {
	wire, err := c.conn.GetUpdates(ctx, token, &ledgerapi.GetUpdatesRequest{
		Parties:        parties,
		BeginExclusive: beginExclusive,
		EndInclusive:   endInclusive,
	})
	if err != nil {
		return nil, classifyError(err)
	}
	return &Stream{wire: wire}, nil
}

// ACSStream is the domain-level handle for an Active Contract Set snapshot.
type ACSStream struct {
	wire ledgerapi.ActiveContractStream
}

// Recv returns the next synthesised Created event from the ACS snapshot.
func (s *ACSStream) Recv() (*CreatedEvent, error) {
	msg, err := s.wire.Recv()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, classifyError(err)
	}
	ev := fromWireCreated(&msg.Created)
	ev.FromACS = true
	return ev, nil
}

// ActiveContractSet streams the contracts visible to parties as of offset.
func (c *Client) ActiveContractSet(ctx context.Context, token string, parties []string, offset int64) (*ACSStream, error) {
	wire, err := c.conn.GetActiveContracts(ctx, token, &ledgerapi.GetActiveContractsRequest{
		Parties:        parties,
		ActiveAtOffset: offset,
	})
	if err != nil {
		return nil, classifyError(err)
	}
	return &ACSStream{wire: wire}, nil
}

// LedgerEnd returns the current ledger end offset.
func (c *Client) LedgerEnd(ctx context.Context, token string) (int64, error) {
	resp, err := c.conn.GetLedgerEnd(ctx, token)
	if err != nil {
		return 0, classifyError(err)
	}
	return resp.Offset, nil
}

// PruningOffset returns the inclusive offset up to which the ledger has
// pruned history, or 0 if nothing has been pruned.
func (c *Client) PruningOffset(ctx context.Context, token string) (int64, error) {
	resp, err := c.conn.GetLatestPrunedOffsets(ctx, token)
	if err != nil {
		return 0, classifyError(err)
	}
	return resp.ParticipantPrunedUpToInclusive, nil
}

// classifyError maps a transport error onto the shared taxonomy.
func classifyError(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return syncerr.New(syncerr.KindTransientNetwork, err)
	}
	switch st.Code() {
	case codes.Unauthenticated:
		return syncerr.New(syncerr.KindAuthExpired, err)
	case codes.PermissionDenied:
		return syncerr.New(syncerr.KindAuthDenied, err)
	case codes.FailedPrecondition:
		if offset, ok := parsePrunedOffset(st.Message()); ok {
			return syncerr.AtOffset(syncerr.KindDataPruned, offset, err)
		}
		return syncerr.New(syncerr.KindProtocolMalformed, err)
	case codes.Unavailable, codes.DeadlineExceeded, codes.Canceled:
		return syncerr.New(syncerr.KindTransientNetwork, err)
	default:
		return syncerr.New(syncerr.KindTransientNetwork, err)
	}
}

// parsePrunedOffset extracts the pruned-up-to offset the participant
// reports in a FailedPrecondition status message, of the form
// "... pruned up to offset <N>". Real participants carry this as a typed
// error detail; the textual fallback keeps this module independent of the
// out-of-scope generated error-detail types.
func parsePrunedOffset(msg string) (int64, bool) {
	const marker = "pruned up to offset "
	idx := strings.Index(msg, marker)
	if idx < 0 {
		return 0, false
	}
	rest := msg[idx+len(marker):]
	var offset int64
	var read int
	for read < len(rest) && rest[read] >= '0' && rest[read] <= '9' {
		read++
	}
	if read == 0 {
		return 0, false
	}
	if _, err := fmt.Sscanf(rest[:read], "%d", &offset); err != nil {
		return 0, false
	}
	return offset, true
}

func fromWireCreated(m *ledgerapi.CreatedMessage) *CreatedEvent {
	return &CreatedEvent{
		ContractID:   m.ContractID,
		TemplateName: m.TemplateName,
		Signatories:  m.Signatories,
		Observers:    m.Observers,
		Payload:      m.Payload,
		CreatedAt:    time.Unix(m.CreatedAtUTC, 0).UTC(),
	}
}

func fromWireEvent(m *ledgerapi.EventMessage) (Event, error) {
	switch {
	case m.Created != nil:
		ev := fromWireCreated(m.Created)
		ev.NodeIDVal = m.NodeID
		return ev, nil
	case m.Exercised != nil:
		return &ExercisedEvent{
			NodeIDVal:               m.NodeID,
			TargetContractID:        m.Exercised.TargetContractID,
			ChoiceName:              m.Exercised.ChoiceName,
			ActingParties:           m.Exercised.ActingParties,
			Consuming:               m.Exercised.Consuming,
			LastDescendantNodeIDVal: m.Exercised.LastDescendantNodeID,
			ChoiceArgument:          m.Exercised.ChoiceArgument,
			ExerciseResult:          m.Exercised.ExerciseResult,
		}, nil
	default:
		return nil, fmt.Errorf("event node %d has neither created nor exercised payload", m.NodeID)
	}
}

func fromWireUpdate(msg *ledgerapi.UpdateMessage) (Update, error) {
	switch {
	case msg.Transaction != nil:
		tx := msg.Transaction
		events := make([]Event, 0, len(tx.Events))
		for i := range tx.Events {
			ev, err := fromWireEvent(&tx.Events[i])
			if err != nil {
				return nil, fmt.Errorf("transaction %d: %w", tx.Offset, err)
			}
			events = append(events, ev)
		}
		return &TransactionUpdate{
			OffsetVal:         tx.Offset,
			UpdateID:          tx.UpdateID,
			CommandID:         tx.CommandID,
			EffectiveAt:       time.Unix(tx.EffectiveAtUTC, 0).UTC(),
			RecordTime:        time.Unix(tx.RecordTimeUTC, 0).UTC(),
			RequestingParties: tx.RequestingParties,
			Events:            events,
		}, nil
	case msg.Reassignment != nil:
		r := msg.Reassignment
		ev, err := fromWireEvent(&r.Event)
		if err != nil {
			return nil, fmt.Errorf("reassignment %d: %w", r.Offset, err)
		}
		return &ReassignmentUpdate{
			OffsetVal:         r.Offset,
			UpdateID:          r.UpdateID,
			RecordTime:        time.Unix(r.RecordTimeUTC, 0).UTC(),
			RequestingParties: r.RequestingParties,
			Event:             ev,
		}, nil
	case msg.Checkpoint != nil:
		return &OffsetCheckpoint{OffsetVal: msg.Checkpoint.Offset}, nil
	default:
		return nil, fmt.Errorf("update message carries no payload")
	}
}
