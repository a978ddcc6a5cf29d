package api

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/crypto/acme/autocert"
)

// TLSConfig holds ACME certificate configuration.
type TLSConfig struct {
	Domains  []string // Hostnames to request certificates for. Empty disables TLS.
	CacheDir string   // Certificate cache directory (default: /var/cache/keplerd/certs).
}

// Enabled reports whether TLS should be served.
func (c TLSConfig) Enabled() bool {
	return len(c.Domains) > 0
}

// NewCertManager creates an autocert manager restricted to the configured
// domains.
func NewCertManager(cfg TLSConfig, logger *slog.Logger) (*autocert.Manager, error) {
	dir := cfg.CacheDir
	if dir == "" {
		dir = "/var/cache/keplerd/certs"
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating certificate cache %s: %w", dir, err)
	}

	allowed := make(map[string]bool, len(cfg.Domains))
	for _, d := range cfg.Domains {
		allowed[strings.ToLower(d)] = true
	}

	return &autocert.Manager{
		Cache:  autocert.DirCache(dir),
		Prompt: autocert.AcceptTOS,
		HostPolicy: func(ctx context.Context, host string) error {
			if allowed[strings.ToLower(host)] {
				logger.Info("accepting certificate request", "host", host)
				return nil
			}
			logger.Warn("rejecting certificate request", "host", host)
			return fmt.Errorf("host %q not configured", host)
		},
	}, nil
}

// ListenAndServeTLS serves HTTPS with certificates from m.
func (s *Server) ListenAndServeTLS(m *autocert.Manager) error {
	tlsCfg := m.TLSConfig()
	tlsCfg.MinVersion = tls.VersionTLS12
	tlsCfg.CurvePreferences = []tls.CurveID{tls.X25519, tls.CurveP256}
	s.httpServer.TLSConfig = tlsCfg
	return s.httpServer.ListenAndServeTLS("", "")
}
