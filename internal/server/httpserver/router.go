package httpserver

import (
	"log/slog"
	"net/http"
	"strings"
)

// DefaultPath is the Engine.IO endpoint path.
const DefaultPath = "/socket.io/"

// RouterConfig holds configuration for the HTTP router.
type RouterConfig struct {
	// Handler serves the health and admin endpoints.
	Handler http.Handler

	// WebSocket serves Engine.IO handshakes at Path.
	WebSocket http.Handler

	// Path is the Engine.IO endpoint. Defaults to DefaultPath.
	Path string

	// Metrics serves /metrics when non-nil.
	Metrics http.Handler

	// Observer records completed admin requests.
	Observer RequestObserver

	// Logger for request logging.
	Logger *slog.Logger

	// CORSAllowedOrigins is the list of allowed CORS origins for the admin
	// API (empty = allow all).
	CORSAllowedOrigins []string
}

// NewRouter creates the top-level handler with all routes and middleware.
//
// The WebSocket endpoint is not wrapped by AccessLog: the upgraded
// connection must reach the handler unwrapped.
func NewRouter(cfg *RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	path := cfg.Path
	if path == "" {
		path = DefaultPath
	}
	if !strings.HasSuffix(path, "/") {
		path += "/"
	}

	mux := http.NewServeMux()

	if cfg.WebSocket != nil {
		mux.Handle(path, Chain(cfg.WebSocket, Recover(log)))
	}

	if cfg.Handler != nil {
		probes := Chain(cfg.Handler, Recover(log), RequestID())
		mux.Handle("GET /health", probes)
		mux.Handle("GET /ready", probes)

		admin := Chain(cfg.Handler,
			Recover(log),
			RequestID(),
			AccessLog(log, cfg.Observer),
			CORS(cfg.CORSAllowedOrigins),
		)
		mux.Handle("/admin/", admin)
	}

	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", Chain(cfg.Metrics, Recover(log)))
	}

	return mux
}
