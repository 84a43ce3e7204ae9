// Package bridge relays commands from a host application to the scan
// lifecycle and relays lifecycle events back.
//
// A MethodChannel maps method names to handlers that answer with a result or
// a ChannelError. An EventChannel fans events out, in emission order, to
// every subscriber. Transports (see wsbridge) move the JSON envelopes.
package bridge

import (
	"encoding/json"
)

// MessageCodec encodes and decodes channel payloads.
type MessageCodec interface {
	Encode(value any) ([]byte, error)
	Decode(data []byte) (any, error)
}

// JSONCodec implements MessageCodec with encoding/json.
type JSONCodec struct{}

// Encode serializes value.
func (JSONCodec) Encode(value any) ([]byte, error) {
	return json.Marshal(value)
}

// Decode deserializes data. Empty input decodes to nil.
func (JSONCodec) Decode(data []byte) (any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DefaultCodec is used by channels created without an explicit codec.
var DefaultCodec MessageCodec = JSONCodec{}

// Call is the wire form of a method invocation.
type Call struct {
	ID     string          `json:"id,omitempty"`
	Method string          `json:"method"`
	Args   json.RawMessage `json:"args,omitempty"`
}

// Reply is the wire form of a method answer. Exactly one of Result or Error
// is meaningful.
type Reply struct {
	ID     string        `json:"id,omitempty"`
	Result any           `json:"result"`
	Error  *ChannelError `json:"error,omitempty"`
}

// Event is one notification sent to the host.
type Event struct {
	Seq     uint64 `json:"seq"`
	Name    string `json:"event"`
	Payload any    `json:"payload,omitempty"`
}
