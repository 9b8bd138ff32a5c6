// Package main provides the entry point for sockmesh-cli.
//
// The CLI talks to a SockMesh server in two ways: as a Socket.IO client
// (emit, listen, shell) and through the admin API (session, system).
//
// Usage:
//
//	sockmesh-cli [global flags] command [flags] [args]
//	sockmesh-cli emit --ack aaa Y
//	sockmesh-cli listen --ack-with '"ddd"'
//	sockmesh-cli -o json session list
//	sockmesh-cli -s unix:///run/sockmesh/admin.sock system health
//
// Server aliases, the default output format and a CA bundle can be kept in
// ~/.sockmesh/cli.yaml.
package main
