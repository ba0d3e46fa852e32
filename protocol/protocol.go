package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

const (
	MsgHello    = "hello"
	MsgSnapshot = "snapshot"
	MsgOver     = "over"

	// client -> server
	MsgIntent  = "intent"
	MsgPointer = "pointer"
)

// Codec selects the wire encoding of an envelope.
type Codec string

const (
	JSON    Codec = "json"
	MsgPack Codec = "msgpack"
)

// ParseCodec maps the ?codec= query value, defaulting to JSON.
func ParseCodec(s string) (Codec, error) {
	switch s {
	case "", "json":
		return JSON, nil
	case "msgpack":
		return MsgPack, nil
	}
	return "", fmt.Errorf("unknown codec %q", s)
}

// Envelope wraps every message sent to clients.
type Envelope struct {
	T string          `json:"t" msgpack:"t"`
	P json.RawMessage `json:"p" msgpack:"p"` // payload encoded with the same codec
}

// Hello is the first message on a stream.
type Hello struct {
	V        int    `json:"v" msgpack:"v"`
	GridSize int    `json:"grid_size" msgpack:"grid_size"`
	CellSize int    `json:"cell_size" msgpack:"cell_size"`
	TickMs   int    `json:"tick_ms" msgpack:"tick_ms"`
	Codec    string `json:"codec" msgpack:"codec"`
}

// Intent carries a named direction from a client.
type Intent struct {
	Direction string `json:"direction" msgpack:"direction"`
}

// Pointer is a pointer position in board pixels.
type Pointer struct {
	X float64 `json:"x" msgpack:"x"`
	Y float64 `json:"y" msgpack:"y"`
}

func (c Codec) marshal(v any) ([]byte, error) {
	if c == MsgPack {
		return msgpack.Marshal(v)
	}
	return json.Marshal(v)
}

func (c Codec) unmarshal(b []byte, v any) error {
	if c == MsgPack {
		return msgpack.Unmarshal(b, v)
	}
	return json.Unmarshal(b, v)
}

func Encode(c Codec, t string, payload any) ([]byte, error) {
	if t == "" {
		return nil, fmt.Errorf("trying to encode envelope with empty type")
	}
	if payload == nil {
		return nil, fmt.Errorf("trying to encode nil payload")
	}
	pb, err := c.marshal(payload)
	if err != nil {
		return nil, err
	}
	return c.marshal(Envelope{T: t, P: pb})
}

func DecodeEnvelope(c Codec, b []byte) (Envelope, error) {
	if len(b) == 0 {
		return Envelope{}, fmt.Errorf("decode envelope: empty message")
	}
	var e Envelope
	if err := c.unmarshal(b, &e); err != nil {
		return Envelope{}, err
	}
	return e, nil
}

func DecodePayload[T any](c Codec, env Envelope) (T, error) {
	var out T
	if len(env.P) == 0 {
		return out, fmt.Errorf("empty payload for type %q", env.T)
	}
	err := c.unmarshal(env.P, &out)
	return out, err
}
