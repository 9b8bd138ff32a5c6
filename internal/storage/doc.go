// Package storage provides the presence store for SockMesh.
//
// A presence store mirrors the sessions connected to this server so that
// other processes can see them. It is never the source of truth: the
// connection registry owns live sessions, and store failures are logged
// rather than propagated to clients.
//
// Backends:
//
//   - memory: sharded in-process map, useful for the admin API and tests
//   - redis: JSON documents plus a sorted-set index, shared across processes
package storage
