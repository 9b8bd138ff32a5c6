package engineio

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
)

// PacketType is the Engine.IO packet type.
type PacketType int

const (
	Open PacketType = iota
	Close
	Ping
	Pong
	Message
	Upgrade
	Noop
)

// MaxPacketLen caps a single decoded packet (matches the default maxPayload).
const MaxPacketLen = 1_000_000

var (
	ErrEmptyPacket   = errors.New("engineio: empty packet")
	ErrUnknownType   = errors.New("engineio: unknown packet type")
	ErrInvalidBase64 = errors.New("engineio: invalid base64 data")
	ErrLimitExceeded = errors.New("engineio: limit exceeded")
)

var typeNames = [...]string{"open", "close", "ping", "pong", "message", "upgrade", "noop"}

// String returns the protocol name of the packet type.
func (t PacketType) String() string {
	if t < Open || t > Noop {
		return fmt.Sprintf("unknown(%d)", int(t))
	}
	return typeNames[t]
}

// Valid reports whether t is a known packet type.
func (t PacketType) Valid() bool {
	return t >= Open && t <= Noop
}

// Packet is a single Engine.IO packet.
type Packet struct {
	Type PacketType
	Data string
	// Binary marks Data as raw bytes rather than UTF-8 text.
	Binary bool
}

// Encode renders the packet in its text form.
// Binary packets are base64 encoded with the `b` prefix.
func Encode(p Packet) string {
	if p.Binary {
		return "b" + base64.StdEncoding.EncodeToString([]byte(p.Data))
	}
	return strconv.Itoa(int(p.Type)) + p.Data
}

// Decode parses the text form of a packet.
func Decode(s string) (Packet, error) {
	if len(s) == 0 {
		return Packet{}, ErrEmptyPacket
	}
	if len(s) > MaxPacketLen {
		return Packet{}, fmt.Errorf("%w: packet length %d exceeds %d", ErrLimitExceeded, len(s), MaxPacketLen)
	}

	if s[0] == 'b' {
		raw, err := base64.StdEncoding.DecodeString(s[1:])
		if err != nil {
			return Packet{}, fmt.Errorf("%w: %v", ErrInvalidBase64, err)
		}
		return Packet{Type: Message, Data: string(raw), Binary: true}, nil
	}

	if s[0] < '0' || s[0] > '9' {
		return Packet{}, fmt.Errorf("%w: %q", ErrUnknownType, s[0])
	}
	t := PacketType(s[0] - '0')
	if !t.Valid() {
		return Packet{}, fmt.Errorf("%w: %d", ErrUnknownType, t)
	}
	return Packet{Type: t, Data: s[1:]}, nil
}

// DecodeBinary wraps a raw binary WebSocket frame as a message packet.
func DecodeBinary(b []byte) (Packet, error) {
	if len(b) > MaxPacketLen {
		return Packet{}, fmt.Errorf("%w: packet length %d exceeds %d", ErrLimitExceeded, len(b), MaxPacketLen)
	}
	return Packet{Type: Message, Data: string(b), Binary: true}, nil
}
