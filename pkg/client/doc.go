// Package client is a Socket.IO client over the Engine.IO WebSocket
// transport.
//
// A Client joins the main namespace on Dial. Inbound events are delivered
// to handlers registered with On, in arrival order, on a single goroutine;
// a handler may call Emit or EmitWithAck.
//
//	c, err := client.Dial(ctx, client.Config{URL: "http://localhost:3000"})
//	if err != nil {
//		return err
//	}
//	defer c.Close()
//
//	c.On("ccc", func(args []json.RawMessage, ack client.AckFunc) {
//		if ack != nil {
//			ack("ddd")
//		}
//	})
//	reply, err := c.EmitWithAck(ctx, "aaa", "hello")
//
// Both Engine.IO protocol revisions are supported: with revision 4 the
// server sends pings and the client answers; with revision 3 the client
// pings on the interval advertised in the handshake.
package client
