// Package main provides the entry point for sockmesh-server.
//
// The server accepts Socket.IO clients over WebSocket and runs the example
// event application on them. One HTTP listener serves:
//
//   - the Engine.IO endpoint (server.http.path, default /socket.io/)
//   - health probes at /health and /ready
//   - Prometheus metrics at /metrics
//   - the admin API under /admin/v1/
//
// The admin API is also served on a local Unix socket when
// server.local.path is set.
//
// Usage:
//
//	sockmesh-server [flags]
//	sockmesh-server --config /etc/sockmesh/server.yaml
//
// Every setting can be overridden from the environment with the SOCKMESH_
// prefix, e.g. SOCKMESH_SERVER_HTTP_ADDR=:8080. Changing log.level in the
// config file takes effect without a restart.
package main
