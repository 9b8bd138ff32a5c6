// Package handler implements the SockMesh HTTP API: health probes and the
// admin endpoints for inspecting, messaging and disconnecting sessions.
//
// Responses use a common JSON envelope carrying a code, a message and the
// request id; errors carry the SM-* domain error code.
package handler
