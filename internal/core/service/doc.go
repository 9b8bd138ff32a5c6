// Package service provides the connection registry and event router for SockMesh.
//
// The Registry tracks live sessions. A transport attaches each accepted
// connection and feeds it decoded Socket.IO packets; the Registry turns
// them into Sockets with their own dispatch queue.
//
// This package contains:
//
//   - Registry: session identity, connect callbacks, server-side disconnects
//   - Socket: per-session event handlers, emission and acknowledgements
//
// Within one session every callback (connection handlers, event handlers,
// acknowledgement handlers and lifecycle hooks) runs on a single goroutine
// in receipt order. Different sessions run concurrently.
package service
