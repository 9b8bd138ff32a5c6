// Package config defines the sockmesh-server configuration.
//
// ServerConfig mirrors the YAML file layout through koanf tags; Default
// supplies the baseline, Verify checks values that would otherwise fail at
// runtime, and Sanitize masks secrets before the configuration is logged.
// Loading is done by internal/infra/confloader.
package config
