package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/viper"

	"github.com/ROOK-KNIGHT/keplers-quest/internal/api"
	"github.com/ROOK-KNIGHT/keplers-quest/internal/metrics"
	"github.com/ROOK-KNIGHT/keplers-quest/internal/propagation"
	"github.com/ROOK-KNIGHT/keplers-quest/internal/scene"
	"github.com/ROOK-KNIGHT/keplers-quest/internal/sim"
	"github.com/ROOK-KNIGHT/keplers-quest/internal/stream"
	"github.com/ROOK-KNIGHT/keplers-quest/internal/tle"
	"github.com/ROOK-KNIGHT/keplers-quest/web"
)

func main() {
	v, err := newConfig()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: loadLogLevel(v),
	}))

	addr := v.GetString("http.addr")
	if addr == "" {
		addr = ":8080"
	}

	authCfg, err := loadAuthConfig(v, logger)
	if err != nil {
		logger.Error("invalid auth configuration", "error", err)
		os.Exit(1)
	}

	trustProxy := false
	if s := v.GetString("trust_proxy"); s != "" {
		b, err := strconv.ParseBool(s)
		if err != nil {
			logger.Warn("invalid KEPLER_TRUST_PROXY value, defaulting to false", "value", s)
		} else {
			trustProxy = b
		}
	}

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sc, err := loadScene(ctx, v, logger)
	if err != nil {
		logger.Error("failed to load scene", "error", err)
		os.Exit(1)
	}
	metrics.SetBodies(len(sc.Bodies))
	logger.Info("scene loaded", "scene", sc.Name, "bodies", len(sc.Bodies), "time_unit", sc.TimeUnit.String())

	simCfg := loadSimConfig(v, logger)
	runner := sim.NewRunner(sim.NewEngine(sc, simCfg.TrailCapacity, logger), simCfg.Runner, logger)

	streamCfg := loadStreamConfig(v, logger)
	streamCfg.TrustProxy = trustProxy

	deps := api.Deps{
		Sim:        runner,
		Scene:      sc,
		Ephemeris:  propagation.NewPropagator(sc, loadEphemerisConfig(v, logger), logger),
		Stream:     stream.NewHandler(runner, streamCfg, logger),
		Static:     web.Content,
		Control:    loadControlConfig(v, logger),
		TrustProxy: trustProxy,
	}
	srv := api.NewServer(addr, logger, authCfg, deps)

	go func() {
		if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("simulation stopped", "error", err)
		}
	}()

	tlsCfg := loadTLSConfig(v, logger)
	var challenge *http.Server
	if tlsCfg.Enabled() {
		m, err := api.NewCertManager(tlsCfg, logger)
		if err != nil {
			logger.Error("invalid TLS configuration", "error", err)
			os.Exit(1)
		}
		// HTTP-01 challenges and redirects to HTTPS.
		challenge = &http.Server{
			Addr:              ":80",
			Handler:           m.HTTPHandler(nil),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := challenge.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("ACME challenge listener error", "error", err)
			}
		}()
		go func() {
			logger.Info("starting TLS server", "addr", addr, "domains", tlsCfg.Domains, "auth_enabled", authCfg.Enabled)
			if err := srv.ListenAndServeTLS(m); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("server listen error", "error", err)
				os.Exit(1)
			}
		}()
	} else {
		go func() {
			logger.Info("starting server", "addr", addr, "auth_enabled", authCfg.Enabled)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("server listen error", "error", err)
				os.Exit(1)
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if challenge != nil {
		challenge.Shutdown(shutdownCtx)
	}
	if err := srv.HTTPServer().Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// loadScene picks the scene to animate: a scene file, a TLE source, or the
// built-in inner solar system, in that order.
func loadScene(ctx context.Context, v *viper.Viper, logger *slog.Logger) (*scene.Scene, error) {
	if path := v.GetString("scene.file"); path != "" {
		return scene.Load(path)
	}

	if url := v.GetString("scene.tle_url"); url != "" {
		var extra []string
		for _, u := range strings.Split(v.GetString("scene.tle_extra_urls"), ",") {
			if u = strings.TrimSpace(u); u != "" {
				extra = append(extra, u)
			}
		}

		fetchCtx, cancel := context.WithTimeout(ctx, time.Minute)
		defer cancel()
		data, err := tle.NewFetcher(url, logger, extra...).Fetch(fetchCtx)
		if err != nil {
			return nil, fmt.Errorf("fetching TLE scene: %w", err)
		}
		entries, err := tle.Parse(bytes.NewReader(data), logger)
		if err != nil {
			return nil, fmt.Errorf("parsing TLE scene: %w", err)
		}

		opts := scene.TLEOptions{MaxBodies: 12}
		if n, ok := positiveInt(v, logger, "scene.tle_max_bodies", opts.MaxBodies); ok {
			opts.MaxBodies = n
		}
		return scene.FromTLE(entries, opts, logger)
	}

	return scene.Default(), nil
}
