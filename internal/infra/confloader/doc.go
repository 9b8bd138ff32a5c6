// Package confloader loads configuration with koanf.
//
// Sources are applied in order, later ones overriding earlier ones:
//
//  1. Values already present in the target struct (defaults)
//  2. A YAML configuration file
//  3. Environment variables with the SOCKMESH_ prefix
//
// Environment names map onto dotted keys by replacing "_" with "." unless the
// name matches a key registered through the target's koanf tags or WithKeys,
// which lets multi-word keys such as engine.ping_interval be set from
// SOCKMESH_ENGINE_PING_INTERVAL.
//
// Watcher reports changes to the configuration file so that settings such as
// the log level can be reloaded without a restart.
package confloader
