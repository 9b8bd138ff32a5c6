// Package repl provides the line-oriented shell used by "sockmesh-cli shell".
//
// Commands are registered by the caller; the REPL itself only supplies
// help, history and exit. Arguments are split on whitespace, except inside
// quotes or balanced JSON brackets, so `emit news {"a": 1}` yields three
// arguments.
package repl
