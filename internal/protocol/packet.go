// Package protocol implements the wire format spoken between the server and
// the game client mod: newline-delimited JSON frames carrying an envelope of
// a kind tag plus a list of serialized domain records.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Packet is the message envelope. Each element of Contents is itself a
// serialized record (nested encoding), matching what the client mod expects.
type Packet struct {
	Kind     string   `json:"kind"`
	Contents []string `json:"contents,omitempty"`
}

var errEmptyKind = errors.New("packet has no kind tag")

// Decode parses a single frame (without its trailing newline).
func Decode(frame []byte) (Packet, error) {
	var p Packet
	if err := json.Unmarshal(frame, &p); err != nil {
		return Packet{}, fmt.Errorf("malformed packet frame: %w", err)
	}
	if p.Kind == "" {
		return Packet{}, errEmptyKind
	}
	return p, nil
}

// Encode serializes the packet as one newline-terminated frame.
func (p Packet) Encode() ([]byte, error) {
	frame, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encoding %s packet: %w", p.Kind, err)
	}
	return append(frame, '\n'), nil
}

// New returns a bare packet carrying only a kind tag.
func New(kind string) Packet {
	return Packet{Kind: kind}
}

// Make wraps a single payload record into a packet of the given kind. The
// payload types in this package contain nothing json.Marshal can reject, so
// the marshal error is unreachable.
func Make(kind string, payload any) Packet {
	body, _ := json.Marshal(payload)
	return Packet{Kind: kind, Contents: []string{string(body)}}
}

// Payload unmarshals the first content element into v.
func (p Packet) Payload(v any) error {
	if len(p.Contents) == 0 {
		return fmt.Errorf("%s packet has no payload", p.Kind)
	}
	if err := json.Unmarshal([]byte(p.Contents[0]), v); err != nil {
		return fmt.Errorf("malformed %s payload: %w", p.Kind, err)
	}
	return nil
}
