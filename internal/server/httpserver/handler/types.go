package handler

import (
	"encoding/json"
	"time"

	"github.com/yndnr/sockmesh-go/internal/core/domain"
)

// Response is the standard API response envelope.
type Response struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data,omitempty"`
	Details   any    `json:"details,omitempty"`
}

// NewResponse creates a success response.
func NewResponse(requestID string, data any) *Response {
	return &Response{
		Code:      "OK",
		Message:   "Success",
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
		Data:      data,
	}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(requestID, code, message string, details any) *Response {
	return &Response{
		Code:      code,
		Message:   message,
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
		Details:   details,
	}
}

// SessionResponse represents a session in API responses.
type SessionResponse struct {
	ID          string    `json:"id" yaml:"id"`
	RemoteAddr  string    `json:"remote_addr" yaml:"remote_addr"`
	UserAgent   string    `json:"user_agent,omitempty" yaml:"user_agent,omitempty"`
	Protocol    int       `json:"protocol" yaml:"protocol"`
	State       string    `json:"state" yaml:"state"`
	ConnectedAt time.Time `json:"connected_at" yaml:"connected_at"`
	LastActive  time.Time `json:"last_active" yaml:"last_active"`
	Reason      string    `json:"reason,omitempty" yaml:"reason,omitempty"`
	PendingAcks int       `json:"pending_acks,omitempty" yaml:"pending_acks,omitempty"`
}

// ListSessionsResponse is the response body for GET /admin/v1/sessions.
type ListSessionsResponse struct {
	Items []SessionResponse `json:"items" yaml:"items"`
	Total int               `json:"total" yaml:"total"`
}

// EmitRequest is the request body for POST /admin/v1/sessions/{id}/emit.
type EmitRequest struct {
	Event string            `json:"event"`
	Args  []json.RawMessage `json:"args,omitempty"`

	// Ack waits for the client's acknowledgement and returns its arguments.
	Ack bool `json:"ack,omitempty"`
	// TimeoutMS bounds the wait for Ack. Zero uses the default.
	TimeoutMS int64 `json:"timeout_ms,omitempty"`
}

// EmitResponse is the response body for POST /admin/v1/sessions/{id}/emit.
type EmitResponse struct {
	Event   string      `json:"event" yaml:"event"`
	Emitted bool        `json:"emitted" yaml:"emitted"`
	AckArgs domain.Args `json:"ack_args,omitempty" yaml:"ack_args,omitempty"`
}

// DisconnectResponse is the response body for
// POST /admin/v1/sessions/{id}/disconnect.
type DisconnectResponse struct {
	ID     string `json:"id" yaml:"id"`
	Reason string `json:"reason" yaml:"reason"`
}

// StatusResponse is the response body for GET /admin/v1/status/summary.
type StatusResponse struct {
	Status   string `json:"status" yaml:"status"`
	Version  string `json:"version" yaml:"version"`
	Commit   string `json:"commit" yaml:"commit"`
	Uptime   string `json:"uptime" yaml:"uptime"`
	Sessions int    `json:"sessions" yaml:"sessions"`
	Presence string `json:"presence" yaml:"presence"`
}

func sessionToResponse(s *domain.Session, pendingAcks int) SessionResponse {
	return SessionResponse{
		ID:          s.ID,
		RemoteAddr:  s.RemoteAddr,
		UserAgent:   s.UserAgent,
		Protocol:    s.Protocol,
		State:       s.State.String(),
		ConnectedAt: s.ConnectedAtTime(),
		LastActive:  s.LastActiveTime(),
		Reason:      string(s.Reason),
		PendingAcks: pendingAcks,
	}
}
