// Package logger provides structured logging for SockMesh.
//
// This package wraps log/slog:
//
//   - logger.go: logger construction, dynamic level and the process default
//   - context.go: context propagation of loggers, request IDs and session IDs
//   - redact.go: sensitive data masking
//
// Components that only need to write logs take a *slog.Logger; the server
// binary builds one from Config and installs it as the slog default.
package logger
