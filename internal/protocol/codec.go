package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrDecode is returned for any inbound payload that is not a valid Message.
var ErrDecode = errors.New("protocol: decode message")

// Codec turns messages into wire payloads and back.
type Codec interface {
	Encode(msg Message) ([]byte, error)
	Decode(data []byte) (Message, error)
}

// JSONCodec encodes one message per JSON document.
type JSONCodec struct{}

// Encode marshals msg as JSON.
func (JSONCodec) Encode(msg Message) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode %s message: %w", msg.Kind, err)
	}
	return data, nil
}

// Decode unmarshals data and validates the kind. Every failure wraps ErrDecode.
func (JSONCodec) Decode(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if !msg.Kind.Valid() {
		return Message{}, fmt.Errorf("%w: unknown kind %q", ErrDecode, msg.Kind)
	}
	return msg, nil
}
