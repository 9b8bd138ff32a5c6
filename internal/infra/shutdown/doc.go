// Package shutdown coordinates graceful process termination.
//
// Components register named hooks with OnShutdown. When SIGINT or SIGTERM
// arrives, or the context given to Wait is cancelled, the hooks run in
// reverse registration order under a shared timeout.
//
//	h := shutdown.NewHandler(15 * time.Second)
//	h.OnShutdown("http", srv.Shutdown)
//	err := h.Wait(ctx)
package shutdown
