package codec

import (
	"encoding/json"
)

// JSONCodec renders messages as JSON. Types and statuses are written by name
// ("t", "OK") through their text marshalers. Used by the client for
// machine-readable output; never sent on the wire.
type JSONCodec struct{}

func (c *JSONCodec) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (c *JSONCodec) Decode(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (c *JSONCodec) Type() CodecType {
	return CodecTypeJSON
}
