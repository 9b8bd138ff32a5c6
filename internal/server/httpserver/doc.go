// Package httpserver provides the HTTP/HTTPS server for SockMesh.
//
// One listener carries both surfaces:
//
//   - Engine.IO WebSocket endpoint: /socket.io/ (configurable)
//   - Admin endpoints: /admin/v1/*
//   - Health endpoints: /health, /ready, /metrics
//
// Features:
//
//   - TLS with certificate reload on file change
//   - Middleware chain: Recover, RequestID, AccessLog, CORS
//   - Graceful shutdown with configurable timeout
package httpserver
