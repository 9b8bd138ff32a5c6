// Package config loads the sockmesh-cli configuration file.
//
// The file (default ~/.sockmesh/cli.yaml) supplies defaults for the global
// flags and named server aliases:
//
//	default_server: local
//	default_output: table
//	ca_file: /etc/sockmesh/ca.pem
//	servers:
//	  local: unix:///run/sockmesh/admin.sock
//	  prod: https://rt.example.com
//
// Flags and SOCKMESH_* environment variables take precedence.
package config
