// Package tlsroots manages the TLS material of the server and the CLI.
//
// Pool builds client configurations that trust the system roots plus any
// extra CA bundles, used by sockmesh-cli for wss:// and https:// endpoints
// served with private certificates. Reloader serves the server certificate
// and swaps it in place when the PEM files change on disk.
package tlsroots
