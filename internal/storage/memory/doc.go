// Package memory provides an in-memory presence store for SockMesh.
//
// Sessions are kept in a sharded concurrent map. With a TTL configured,
// entries older than the TTL are hidden from reads and removed lazily.
package memory
