package ledgerapi

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

const (
	updateServicePath  = "/ledgersync.ledgerapi.v2.UpdateService/GetUpdates"
	stateServicePath   = "/ledgersync.ledgerapi.v2.StateService/GetActiveContracts"
	ledgerEndPath      = "/ledgersync.ledgerapi.v2.StateService/GetLedgerEnd"
	prunedOffsetsPath  = "/ledgersync.ledgerapi.v2.StateService/GetLatestPrunedOffsets"
)

// UpdateStream yields decoded update messages in offset order until the
// ledger ends the stream or an error occurs.
type UpdateStream interface {
	Recv() (*UpdateMessage, error)
	CloseSend() error
}

// ActiveContractStream yields ACS entries until exhausted.
type ActiveContractStream interface {
	Recv() (*ActiveContractMessage, error)
}

// Conn is the connection-level boundary the rest of the engine depends on.
// The only concrete implementation wired in is grpcConn; tests substitute
// fakes.
type Conn interface {
	GetUpdates(ctx context.Context, token string, req *GetUpdatesRequest) (UpdateStream, error)
	GetActiveContracts(ctx context.Context, token string, req *GetActiveContractsRequest) (ActiveContractStream, error)
	GetLedgerEnd(ctx context.Context, token string) (*GetLedgerEndResponse, error)
	GetLatestPrunedOffsets(ctx context.Context, token string) (*GetLatestPrunedOffsetsResponse, error)
	Close() error
}

// grpcConn is the real transport: a single gRPC channel to the ledger
// participant, reused across subscriptions and unary calls alike. The
// "exactly one open update-stream RPC at a time" rule governs how many
// streams the driver opens on it, not the channel itself.
type grpcConn struct {
	cc *grpc.ClientConn
}

// Dial opens a gRPC channel to the ledger participant. TLS is expected to
// be terminated by the caller's dial options in production; insecure
// credentials are used only when the caller explicitly requests it (local
// sandbox runs against plaintext participants).
func Dial(ctx context.Context, target string, insecureTransport bool, extraOpts ...grpc.DialOption) (Conn, error) {
	opts := append([]grpc.DialOption{}, extraOpts...)
	if insecureTransport {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	opts = append(opts, grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)))

	cc, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial ledger endpoint %s: %w", target, err)
	}
	return &grpcConn{cc: cc}, nil
}

func withBearer(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token)
}

func (c *grpcConn) GetUpdates(ctx context.Context, token string, req *GetUpdatesRequest) (UpdateStream, error) {
	ctx = withBearer(ctx, token)
	stream, err := c.cc.NewStream(ctx, &grpc.StreamDesc{StreamName: "GetUpdates", ServerStreams: true}, updateServicePath)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(req); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &updateStream{stream: stream}, nil
}

type updateStream struct {
	stream grpc.ClientStream
}

func (s *updateStream) Recv() (*UpdateMessage, error) {
	msg := new(UpdateMessage)
	if err := s.stream.RecvMsg(msg); err != nil {
		return nil, err
	}
	return msg, nil
}

func (s *updateStream) CloseSend() error { return s.stream.CloseSend() }

func (c *grpcConn) GetActiveContracts(ctx context.Context, token string, req *GetActiveContractsRequest) (ActiveContractStream, error) {
	ctx = withBearer(ctx, token)
	stream, err := c.cc.NewStream(ctx, &grpc.StreamDesc{StreamName: "GetActiveContracts", ServerStreams: true}, stateServicePath)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(req); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &activeContractStream{stream: stream}, nil
}

type activeContractStream struct {
	stream grpc.ClientStream
}

func (s *activeContractStream) Recv() (*ActiveContractMessage, error) {
	msg := new(ActiveContractMessage)
	if err := s.stream.RecvMsg(msg); err != nil {
		return nil, err
	}
	return msg, nil
}

func (c *grpcConn) GetLedgerEnd(ctx context.Context, token string) (*GetLedgerEndResponse, error) {
	ctx = withBearer(ctx, token)
	resp := new(GetLedgerEndResponse)
	if err := c.cc.Invoke(ctx, ledgerEndPath, &struct{}{}, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *grpcConn) GetLatestPrunedOffsets(ctx context.Context, token string) (*GetLatestPrunedOffsetsResponse, error) {
	ctx = withBearer(ctx, token)
	resp := new(GetLatestPrunedOffsetsResponse)
	if err := c.cc.Invoke(ctx, prunedOffsetsPath, &struct{}{}, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *grpcConn) Close() error { return c.cc.Close() }
