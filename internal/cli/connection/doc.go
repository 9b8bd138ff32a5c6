// Package connection provides the sockmesh-cli transport to a server.
//
// Server addresses take three forms:
//
//   - host:port or http://host:port: plain HTTP
//   - https://host:port: HTTPS, verified against the system roots or --ca-file
//   - unix:///path/to/admin.sock: the local admin socket
//
// Admin requests return the server's JSON envelope; ParseResponse unwraps
// its data field and converts error envelopes into *APIError.
package connection
