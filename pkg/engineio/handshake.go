package engineio

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Supported protocol revisions.
const (
	ProtocolV3 = 3
	ProtocolV4 = 4
)

// Transport names accepted in the `transport` query parameter.
const (
	TransportWebSocket = "websocket"
	TransportPolling   = "polling"
)

// Error codes returned in the JSON body of a rejected handshake.
const (
	ErrCodeTransportUnknown    = 0
	ErrCodeUnknownSID          = 1
	ErrCodeBadHandshakeMethod  = 2
	ErrCodeBadRequest          = 3
	ErrCodeForbidden           = 4
	ErrCodeUnsupportedProtocol = 5
)

// ErrUnsupportedProtocol is returned for an EIO revision other than 3 or 4.
var ErrUnsupportedProtocol = errors.New("engineio: unsupported protocol version")

// OpenResponse is the payload of the open packet sent by the server.
// Intervals are expressed in milliseconds on the wire.
type OpenResponse struct {
	SID          string   `json:"sid"`
	Upgrades     []string `json:"upgrades"`
	PingInterval int      `json:"pingInterval"`
	PingTimeout  int      `json:"pingTimeout"`
	MaxPayload   int      `json:"maxPayload,omitempty"`
}

// NewOpenResponse builds the handshake document for a new session.
func NewOpenResponse(sid string, pingInterval, pingTimeout time.Duration, maxPayload int) OpenResponse {
	return OpenResponse{
		SID:          sid,
		Upgrades:     []string{},
		PingInterval: int(pingInterval / time.Millisecond),
		PingTimeout:  int(pingTimeout / time.Millisecond),
		MaxPayload:   maxPayload,
	}
}

// OpenPacket encodes r as an open packet.
func OpenPacket(r OpenResponse) (Packet, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return Packet{}, err
	}
	return Packet{Type: Open, Data: string(data)}, nil
}

// ParseOpen decodes the data of an open packet.
func ParseOpen(p Packet) (OpenResponse, error) {
	var r OpenResponse
	if p.Type != Open {
		return r, fmt.Errorf("engineio: expected open packet, got %s", p.Type)
	}
	if err := json.Unmarshal([]byte(p.Data), &r); err != nil {
		return r, fmt.Errorf("engineio: decode open payload: %w", err)
	}
	return r, nil
}

// ParseProtocol parses the EIO query value. An empty value means revision 3,
// which is what pre-4 clients omit.
func ParseProtocol(v string) (int, error) {
	if v == "" {
		return ProtocolV3, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedProtocol, v)
	}
	if n != ProtocolV3 && n != ProtocolV4 {
		return 0, fmt.Errorf("%w: %d", ErrUnsupportedProtocol, n)
	}
	return n, nil
}

// HandshakeError is the JSON body returned when a handshake is rejected.
type HandshakeError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

var handshakeMessages = map[int]string{
	ErrCodeTransportUnknown:    "Transport unknown",
	ErrCodeUnknownSID:          "Session ID unknown",
	ErrCodeBadHandshakeMethod:  "Bad handshake method",
	ErrCodeBadRequest:          "Bad request",
	ErrCodeForbidden:           "Forbidden",
	ErrCodeUnsupportedProtocol: "Unsupported protocol version",
}

// NewHandshakeError returns the canonical error body for code.
func NewHandshakeError(code int) HandshakeError {
	return HandshakeError{Code: code, Message: handshakeMessages[code]}
}
