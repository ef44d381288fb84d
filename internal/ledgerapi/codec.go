package ledgerapi

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// codecName is registered with grpc's encoding package so the ledger
// connection can frame messages without full protobuf code generation
// (those generated stubs are the out-of-scope collaborator this package
// stands in for). grpc's own length-prefixed framing still applies; only
// the per-message payload encoding is swapped to JSON.
const codecName = "ledgerjson"

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

func (jsonCodec) Name() string { return codecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
