package tlsroots

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/yndnr/sockmesh-go/internal/infra/confloader"
)

// Reloader holds the server key pair and reloads it when either file changes.
type Reloader struct {
	certFile string
	keyFile  string
	logger   *slog.Logger

	mu   sync.RWMutex
	cert *tls.Certificate

	watcher *confloader.Watcher
}

// ReloaderOption configures a Reloader.
type ReloaderOption func(*Reloader)

// WithLogger sets the logger for the reloader.
func WithLogger(logger *slog.Logger) ReloaderOption {
	return func(r *Reloader) {
		r.logger = logger
	}
}

// NewReloader loads the key pair once and fails if it is unusable.
func NewReloader(certFile, keyFile string, opts ...ReloaderOption) (*Reloader, error) {
	r := &Reloader{
		certFile: certFile,
		keyFile:  keyFile,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}

	if err := r.Reload(); err != nil {
		return nil, fmt.Errorf("tlsroots: initial load: %w", err)
	}
	return r, nil
}

// Start begins watching both files. A failed reload keeps the previous
// certificate in service.
func (r *Reloader) Start() error {
	w, err := confloader.NewWatcher(confloader.WithWatcherLogger(r.logger))
	if err != nil {
		return fmt.Errorf("tlsroots: create watcher: %w", err)
	}
	for _, path := range []string{r.certFile, r.keyFile} {
		if err := w.Watch(path); err != nil {
			w.Stop()
			return fmt.Errorf("tlsroots: watch %s: %w", path, err)
		}
	}

	w.OnChange(func(path string) {
		if err := r.Reload(); err != nil {
			r.logger.Error("certificate reload failed",
				"file", filepath.Base(path),
				"error", err,
			)
		}
	})
	w.StartAsync()

	r.mu.Lock()
	r.watcher = w
	r.mu.Unlock()

	r.logger.Info("certificate watcher started",
		"cert_file", r.certFile,
		"key_file", r.keyFile,
	)
	return nil
}

// Stop stops watching. The last loaded certificate stays available.
func (r *Reloader) Stop() error {
	r.mu.Lock()
	w := r.watcher
	r.watcher = nil
	r.mu.Unlock()

	if w == nil {
		return nil
	}
	return w.Stop()
}

// Reload reads the key pair from disk.
func (r *Reloader) Reload() error {
	cert, err := tls.LoadX509KeyPair(r.certFile, r.keyFile)
	if err != nil {
		return fmt.Errorf("load key pair: %w", err)
	}

	r.mu.Lock()
	r.cert = &cert
	r.mu.Unlock()

	r.logger.Info("certificate loaded", "cert_file", r.certFile)
	return nil
}

// GetCertificate implements tls.Config.GetCertificate.
func (r *Reloader) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cert, nil
}

// ServerConfig returns a server TLS configuration backed by the reloader.
func (r *Reloader) ServerConfig() *tls.Config {
	return &tls.Config{
		GetCertificate: r.GetCertificate,
		MinVersion:     tls.VersionTLS12,
	}
}
