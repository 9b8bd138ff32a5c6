// Package socketio implements the Socket.IO packet codec.
//
// A Socket.IO packet travels inside an Engine.IO message packet and has the
// text form:
//
//	<type>[<namespace>,][<ack id>][<json payload>]
//
// For example `2["ccc"]` is an event without acknowledgement, `21["aaa","x"]`
// an event expecting ack 1, and `31["bbb"]` the acknowledgement for it.
//
// Binary attachments (types 5 and 6) are rejected.
package socketio
