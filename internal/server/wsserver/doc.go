// Package wsserver serves Engine.IO over WebSocket and feeds decoded
// Socket.IO packets to the connection registry.
//
// Each upgraded connection gets one reader (the HTTP handler goroutine) and
// one writer goroutine draining a bounded send queue. Engine.IO revision 4
// clients are pinged by the server; revision 3 clients ping and the server
// answers. Long-polling is rejected during the handshake.
package wsserver
