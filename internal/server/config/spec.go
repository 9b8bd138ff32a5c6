package config

import "time"

// ServerConfig is the root configuration for sockmesh-server.
type ServerConfig struct {
	Server   ServerSection   `koanf:"server"`
	Engine   EngineSection   `koanf:"engine"`
	Events   EventsSection   `koanf:"events"`
	Presence PresenceSection `koanf:"presence"`
	Log      LogSection      `koanf:"log"`
}

// ServerSection configures server endpoints.
type ServerSection struct {
	HTTP  HTTPConfig  `koanf:"http"`
	Local LocalConfig `koanf:"local"`

	// ShutdownTimeout bounds the graceful shutdown of all components.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// HTTPConfig configures the HTTP listener serving WebSocket upgrades,
// health probes, metrics and the admin API.
type HTTPConfig struct {
	Addr        string `koanf:"addr"`
	Path        string `koanf:"path"`
	TLSCertFile string `koanf:"tls_cert_file"`
	TLSKeyFile  string `koanf:"tls_key_file"`

	// CORSAllowedOrigins lists origins allowed to open a WebSocket.
	// Empty allows any origin; "*" does the same explicitly.
	CORSAllowedOrigins []string `koanf:"cors_allowed_origins"`
}

// LocalConfig configures the local management socket. An empty path
// disables it.
type LocalConfig struct {
	Path string `koanf:"path"`
}

// EngineSection configures the Engine.IO transport.
type EngineSection struct {
	PingInterval time.Duration `koanf:"ping_interval"`
	PingTimeout  time.Duration `koanf:"ping_timeout"`
	MaxPayload   int64         `koanf:"max_payload"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
	SendQueue    int           `koanf:"send_queue"`
}

// EventsSection configures event dispatch.
type EventsSection struct {
	AckTimeout  time.Duration `koanf:"ack_timeout"`
	QueueSize   int           `koanf:"queue_size"`
	RateLimit   float64       `koanf:"rate_limit"`
	RateBurst   int           `koanf:"rate_burst"`
	MaxSessions int           `koanf:"max_sessions"`
}

// PresenceSection configures the session presence store.
type PresenceSection struct {
	Backend string        `koanf:"backend"`
	TTL     time.Duration `koanf:"ttl"`
	Redis   RedisConfig   `koanf:"redis"`
}

// RedisConfig configures the Redis presence backend.
type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
	Prefix   string `koanf:"prefix"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}
