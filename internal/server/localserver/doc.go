// Package localserver serves the admin API on a Unix domain socket.
//
// Access is controlled by file system permissions: the socket is created
// with mode 0600, so only the server's user can connect. The CLI reaches it
// with "unix://" server addresses.
package localserver
