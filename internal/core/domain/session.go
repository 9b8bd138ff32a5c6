// Package domain defines the core domain models for SockMesh.
package domain

import (
	"crypto/rand"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// SessionIDPrefix is the prefix for session IDs.
const SessionIDPrefix = "smss-"

// sessionIDLength is the prefix plus a 26 character ULID.
const sessionIDLength = len(SessionIDPrefix) + 26

// State is the lifecycle state of a session.
type State int

const (
	// StateConnecting is a session whose transport is open but whose
	// Socket.IO CONNECT has not completed.
	StateConnecting State = iota
	// StateConnected is a session that can exchange events.
	StateConnected
	// StateDisconnecting is a session running its disconnecting hooks.
	StateDisconnecting
	// StateDisconnected is terminal.
	StateDisconnected
)

var stateNames = [...]string{"connecting", "connected", "disconnecting", "disconnected"}

// String returns the lowercase state name.
func (s State) String() string {
	if s < StateConnecting || s > StateDisconnected {
		return "unknown"
	}
	return stateNames[s]
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(b []byte) error {
	for i, name := range stateNames {
		if name == string(b) {
			*s = State(i)
			return nil
		}
	}
	return ErrInvalidArgument.WithDetails("unknown session state " + string(b))
}

// CanTransition reports whether a session may move from s to next.
//
// Moves only go forward. A connecting session may skip straight to
// disconnecting when its transport is lost before CONNECT completes.
func (s State) CanTransition(next State) bool {
	switch s {
	case StateConnecting:
		return next == StateConnected || next == StateDisconnecting
	case StateConnected:
		return next == StateDisconnecting
	case StateDisconnecting:
		return next == StateDisconnected
	default:
		return false
	}
}

// Reason describes why a session was disconnected.
type Reason string

// Disconnect reasons, named after the Socket.IO reference implementation.
const (
	ReasonTransportClose   Reason = "transport close"
	ReasonTransportError   Reason = "transport error"
	ReasonPingTimeout      Reason = "ping timeout"
	ReasonParseError       Reason = "parse error"
	ReasonClientDisconnect Reason = "client namespace disconnect"
	ReasonServerDisconnect Reason = "server namespace disconnect"
	ReasonServerShutdown   Reason = "server shutting down"
)

// Session represents a connected client.
//
// A Session is a plain value; the owner is responsible for synchronising
// access to it.
type Session struct {
	// ID is the unique identifier for the session.
	// Format: smss-{ulid_lowercase}, 31 characters total.
	ID string `json:"id"`

	// RemoteAddr is the client address as seen by the HTTP server.
	RemoteAddr string `json:"remote_addr"`

	// UserAgent is the client user agent at handshake.
	UserAgent string `json:"user_agent,omitempty"`

	// Protocol is the Engine.IO protocol revision (3 or 4).
	Protocol int `json:"protocol"`

	// State is the lifecycle state.
	State State `json:"state"`

	// ConnectedAt is the transport accept timestamp (Unix milliseconds).
	ConnectedAt int64 `json:"connected_at"`

	// LastActive is the timestamp of the last inbound packet (Unix milliseconds).
	LastActive int64 `json:"last_active"`

	// Reason is set once the session starts disconnecting.
	Reason Reason `json:"reason,omitempty"`
}

// NewSession creates a connecting Session with a generated ID.
func NewSession(remoteAddr, userAgent string, protocol int) (*Session, error) {
	id, err := GenerateSessionID()
	if err != nil {
		return nil, err
	}

	now := time.Now().UnixMilli()
	return &Session{
		ID:          id,
		RemoteAddr:  remoteAddr,
		UserAgent:   userAgent,
		Protocol:    protocol,
		State:       StateConnecting,
		ConnectedAt: now,
		LastActive:  now,
	}, nil
}

// GenerateSessionID generates a new session ID using ULID.
func GenerateSessionID() (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return "", ErrInternalServer.WithCause(err)
	}
	return SessionIDPrefix + strings.ToLower(id.String()), nil
}

// IsValidSessionID checks if a string is a valid session ID.
func IsValidSessionID(id string) bool {
	id = strings.ToLower(id)
	if !strings.HasPrefix(id, SessionIDPrefix) || len(id) != sessionIDLength {
		return false
	}
	_, err := ulid.Parse(strings.ToUpper(id[len(SessionIDPrefix):]))
	return err == nil
}

// Transition moves the session to next, or returns ErrInvalidTransition.
func (s *Session) Transition(next State) error {
	if !s.State.CanTransition(next) {
		return ErrInvalidTransition.WithDetails(s.State.String() + " -> " + next.String())
	}
	s.State = next
	return nil
}

// Touch updates the LastActive timestamp.
func (s *Session) Touch() {
	s.LastActive = time.Now().UnixMilli()
}

// IsActive reports whether the session can still exchange events.
func (s *Session) IsActive() bool {
	return s.State == StateConnected
}

// Clone returns a copy of the session.
func (s *Session) Clone() *Session {
	clone := *s
	return &clone
}

// ConnectedAtTime returns ConnectedAt as time.Time.
func (s *Session) ConnectedAtTime() time.Time {
	return time.UnixMilli(s.ConnectedAt)
}

// LastActiveTime returns LastActive as time.Time.
func (s *Session) LastActiveTime() time.Time {
	return time.UnixMilli(s.LastActive)
}
