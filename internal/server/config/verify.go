package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/yndnr/sockmesh-go/internal/telemetry/logger"
)

// Verify validates the configuration and reports every problem found.
func Verify(cfg *ServerConfig) error {
	return errors.Join(
		verifyServer(&cfg.Server),
		verifyEngine(&cfg.Engine),
		verifyEvents(&cfg.Events),
		verifyPresence(&cfg.Presence),
		verifyLog(&cfg.Log),
	)
}

func verifyServer(cfg *ServerSection) error {
	var errs []error

	if cfg.HTTP.Addr == "" {
		errs = append(errs, errors.New("server.http.addr is required"))
	} else if _, _, err := net.SplitHostPort(cfg.HTTP.Addr); err != nil {
		errs = append(errs, fmt.Errorf("server.http.addr %q: %w", cfg.HTTP.Addr, err))
	}

	if !strings.HasPrefix(cfg.HTTP.Path, "/") || !strings.HasSuffix(cfg.HTTP.Path, "/") {
		errs = append(errs, fmt.Errorf("server.http.path %q must start and end with /", cfg.HTTP.Path))
	}

	if (cfg.HTTP.TLSCertFile == "") != (cfg.HTTP.TLSKeyFile == "") {
		errs = append(errs, errors.New("server.http.tls_cert_file and server.http.tls_key_file must be set together"))
	}
	for _, f := range []string{cfg.HTTP.TLSCertFile, cfg.HTTP.TLSKeyFile} {
		if f == "" {
			continue
		}
		if _, err := os.Stat(f); err != nil {
			errs = append(errs, fmt.Errorf("tls file: %w", err))
		}
	}

	if cfg.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("server.shutdown_timeout must be positive"))
	}

	return errors.Join(errs...)
}

func verifyEngine(cfg *EngineSection) error {
	var errs []error
	if cfg.PingInterval <= 0 {
		errs = append(errs, errors.New("engine.ping_interval must be positive"))
	}
	if cfg.PingTimeout <= 0 {
		errs = append(errs, errors.New("engine.ping_timeout must be positive"))
	}
	if cfg.MaxPayload <= 0 {
		errs = append(errs, errors.New("engine.max_payload must be positive"))
	}
	if cfg.WriteTimeout <= 0 {
		errs = append(errs, errors.New("engine.write_timeout must be positive"))
	}
	if cfg.SendQueue < 1 {
		errs = append(errs, errors.New("engine.send_queue must be at least 1"))
	}
	return errors.Join(errs...)
}

func verifyEvents(cfg *EventsSection) error {
	var errs []error
	if cfg.AckTimeout < 0 {
		errs = append(errs, errors.New("events.ack_timeout must not be negative"))
	}
	if cfg.QueueSize < 1 {
		errs = append(errs, errors.New("events.queue_size must be at least 1"))
	}
	if cfg.RateLimit < 0 {
		errs = append(errs, errors.New("events.rate_limit must not be negative"))
	}
	if cfg.RateBurst < 0 {
		errs = append(errs, errors.New("events.rate_burst must not be negative"))
	}
	if cfg.MaxSessions < 0 {
		errs = append(errs, errors.New("events.max_sessions must not be negative"))
	}
	return errors.Join(errs...)
}

func verifyPresence(cfg *PresenceSection) error {
	switch cfg.Backend {
	case "", "none":
		return nil
	case "memory":
	case "redis":
		if cfg.Redis.Addr == "" {
			return errors.New("presence.redis.addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("presence.backend %q must be one of none, memory, redis", cfg.Backend)
	}
	if cfg.TTL < MinPresenceTTL {
		return fmt.Errorf("presence.ttl %s must be at least %s", cfg.TTL, MinPresenceTTL)
	}
	return nil
}

func verifyLog(cfg *LogSection) error {
	var errs []error
	if !logger.ValidLevel(cfg.Level) {
		errs = append(errs, fmt.Errorf("log.level %q must be one of debug, info, warn, error", cfg.Level))
	}
	if cfg.Format != "json" && cfg.Format != "text" {
		errs = append(errs, fmt.Errorf("log.format %q must be json or text", cfg.Format))
	}
	return errors.Join(errs...)
}
