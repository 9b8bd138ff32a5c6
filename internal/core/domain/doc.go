// Package domain defines the core domain models for SockMesh.
//
// Domain models are pure value objects without any IO dependencies or
// framework coupling. This package contains:
//
//   - Session: a connected client with lifecycle state
//   - Reason: why a session was disconnected
//   - Args: the ordered JSON payload of an event or acknowledgement
//   - Errors: domain-specific error definitions
package domain
