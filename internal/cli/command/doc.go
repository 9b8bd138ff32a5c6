// Package command provides CLI command definitions for sockmesh-cli.
//
// Commands are built on urfave/cli/v2:
//
//   - root.go: application, global flags, server and output resolution
//   - emit.go: emit and listen over a live Socket.IO connection
//   - shell.go: interactive shell over a live connection
//   - session.go: session administration through the admin API
//   - system.go: health and version
//
// Admin commands accept http(s) servers as well as unix:// paths to the
// local admin socket. Socket.IO commands need an http(s) server.
package command
