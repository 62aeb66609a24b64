package peer

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"google.golang.org/grpc/encoding"
)

const codecName = "cbor"

// encMode uses Core Deterministic Encoding: the same game always encodes to the
// same bytes.
var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("peer: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("peer: CBOR decoder initialization failed: " + err.Error())
	}

	encoding.RegisterCodec(codec{})
}

// envelope is the single message type on the wire, in both directions.
type envelope struct {
	Endpoint string          `cbor:"endpoint"`
	Payload  cbor.RawMessage `cbor:"payload,omitempty"`
}

// codec plugs CBOR into gRPC under the "cbor" content subtype.
type codec struct{}

func (codec) Name() string { return codecName }

func (codec) Marshal(v any) ([]byte, error) {
	data, err := encMode.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %T: %w", v, err)
	}

	return data, nil
}

func (codec) Unmarshal(data []byte, v any) error {
	if err := decMode.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %T: %w", v, err)
	}

	return nil
}

func marshal(v any) (cbor.RawMessage, error) {
	return codec{}.Marshal(v)
}

func unmarshal(data cbor.RawMessage, v any) error {
	return codec{}.Unmarshal(data, v)
}
