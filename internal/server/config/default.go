package config

import "time"

// Default configuration values.
const (
	DefaultHTTPAddr        = ":3000"
	DefaultHTTPPath        = "/socket.io/"
	DefaultShutdownTimeout = 15 * time.Second

	DefaultPingInterval = 25 * time.Second
	DefaultPingTimeout  = 20 * time.Second
	DefaultMaxPayload   = 1_000_000
	DefaultWriteTimeout = 10 * time.Second
	DefaultSendQueue    = 256

	DefaultQueueSize = 128

	DefaultPresenceBackend = "none"
	DefaultPresenceTTL     = 90 * time.Second
	MinPresenceTTL         = time.Second
	DefaultRedisAddr       = "127.0.0.1:6379"
	DefaultRedisPrefix     = "sockmesh:presence:"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// Default returns the default server configuration.
func Default() *ServerConfig {
	return &ServerConfig{
		Server: ServerSection{
			HTTP: HTTPConfig{
				Addr: DefaultHTTPAddr,
				Path: DefaultHTTPPath,
			},
			ShutdownTimeout: DefaultShutdownTimeout,
		},
		Engine: EngineSection{
			PingInterval: DefaultPingInterval,
			PingTimeout:  DefaultPingTimeout,
			MaxPayload:   DefaultMaxPayload,
			WriteTimeout: DefaultWriteTimeout,
			SendQueue:    DefaultSendQueue,
		},
		Events: EventsSection{
			QueueSize: DefaultQueueSize,
		},
		Presence: PresenceSection{
			Backend: DefaultPresenceBackend,
			TTL:     DefaultPresenceTTL,
			Redis: RedisConfig{
				Addr:   DefaultRedisAddr,
				Prefix: DefaultRedisPrefix,
			},
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
