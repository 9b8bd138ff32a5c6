// Package engineio implements the Engine.IO packet layer used by SockMesh.
//
// Engine.IO is the low-level transport protocol that carries Socket.IO
// packets. This package covers:
//
//   - packet.go: packet types and the string encoding (`<type><data>`),
//     including the `b`-prefixed base64 form for binary data
//   - handshake.go: the open handshake document and protocol revision parsing
//
// Payload batching for HTTP long-polling is intentionally absent; SockMesh
// only serves the WebSocket transport, where each frame holds one packet.
package engineio
