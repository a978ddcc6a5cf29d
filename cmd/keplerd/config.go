package main

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ROOK-KNIGHT/keplers-quest/internal/api"
	"github.com/ROOK-KNIGHT/keplers-quest/internal/auth"
	"github.com/ROOK-KNIGHT/keplers-quest/internal/orbit"
	"github.com/ROOK-KNIGHT/keplers-quest/internal/propagation"
	"github.com/ROOK-KNIGHT/keplers-quest/internal/sim"
	"github.com/ROOK-KNIGHT/keplers-quest/internal/stream"
)

// newConfig returns a viper instance reading KEPLER_* environment variables
// and, when KEPLER_CONFIG names one, a config file. Nested keys map to
// environment names by replacing "." with "_", so sim.fps is KEPLER_SIM_FPS.
func newConfig() (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix("KEPLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}
	return v, nil
}

func loadLogLevel(v *viper.Viper) slog.Level {
	var level slog.Level
	if s := v.GetString("log.level"); s != "" {
		if err := level.UnmarshalText([]byte(s)); err == nil {
			return level
		}
	}
	return slog.LevelInfo
}

func loadAuthConfig(v *viper.Viper, logger *slog.Logger) (auth.Config, error) {
	cfg := auth.Config{}

	if s := v.GetString("auth.enabled"); s != "" {
		enabled, err := strconv.ParseBool(strings.TrimSpace(s))
		if err != nil {
			return cfg, errors.New("KEPLER_AUTH_ENABLED must be a boolean value (true/false/1/0)")
		}
		cfg.Enabled = enabled
	}

	if cfg.Enabled {
		cfg.Token = v.GetString("auth.token")
		if cfg.Token == "" {
			return cfg, errors.New("KEPLER_AUTH_TOKEN is required when auth is enabled")
		}
		logger.Info("auth enabled")
	}

	return cfg, nil
}

// simConfig bundles the runner settings with the engine's trail capacity.
type simConfig struct {
	Runner        sim.RunnerConfig
	TrailCapacity int
}

func loadSimConfig(v *viper.Viper, logger *slog.Logger) simConfig {
	cfg := simConfig{
		Runner:        sim.RunnerConfig{FPS: 60, TimeScale: 1},
		TrailCapacity: orbit.TrailCapacity,
	}

	if n, ok := positiveInt(v, logger, "sim.fps", cfg.Runner.FPS); ok {
		if n > 240 {
			logger.Warn("KEPLER_SIM_FPS too high, using default", "value", n, "default", cfg.Runner.FPS)
		} else {
			cfg.Runner.FPS = n
		}
	}
	if f, ok := positiveFloat(v, logger, "sim.time_scale", cfg.Runner.TimeScale); ok {
		cfg.Runner.TimeScale = f
	}
	if n, ok := positiveInt(v, logger, "sim.trail_capacity", cfg.TrailCapacity); ok {
		cfg.TrailCapacity = n
	}

	logger.Info("sim config",
		"fps", cfg.Runner.FPS,
		"time_scale", cfg.Runner.TimeScale,
		"trail_capacity", cfg.TrailCapacity,
	)
	return cfg
}

func loadStreamConfig(v *viper.Viper, logger *slog.Logger) stream.Config {
	cfg := stream.Config{
		MaxConcurrentPerIP: 10,
		MaxConcurrent:      1000,
		KeepaliveInterval:  15 * time.Second,
		DefaultFPS:         30,
	}

	if n, ok := positiveInt(v, logger, "stream.max_concurrent", cfg.MaxConcurrentPerIP); ok {
		cfg.MaxConcurrentPerIP = n
	}
	if n, ok := positiveInt(v, logger, "stream.max_total", cfg.MaxConcurrent); ok {
		cfg.MaxConcurrent = n
	}
	if d, ok := positiveDuration(v, logger, "stream.keepalive_interval", cfg.KeepaliveInterval); ok {
		cfg.KeepaliveInterval = d
	}
	if n, ok := positiveInt(v, logger, "stream.default_fps", cfg.DefaultFPS); ok {
		if n > 60 {
			logger.Warn("KEPLER_STREAM_DEFAULT_FPS above 60, using default", "value", n, "default", cfg.DefaultFPS)
		} else {
			cfg.DefaultFPS = n
		}
	}

	logger.Info("stream config",
		"max_concurrent_per_ip", cfg.MaxConcurrentPerIP,
		"max_concurrent", cfg.MaxConcurrent,
		"keepalive_interval_seconds", cfg.KeepaliveInterval.Seconds(),
		"default_fps", cfg.DefaultFPS,
	)
	return cfg
}

func loadControlConfig(v *viper.Viper, logger *slog.Logger) api.ControlConfig {
	cfg := api.ControlConfig{Rate: 5, Burst: 10}

	if f, ok := positiveFloat(v, logger, "control.rate", cfg.Rate); ok {
		cfg.Rate = f
	}
	if n, ok := positiveInt(v, logger, "control.burst", cfg.Burst); ok {
		cfg.Burst = n
	}

	logger.Info("control config", "rate", cfg.Rate, "burst", cfg.Burst)
	return cfg
}

func loadEphemerisConfig(v *viper.Viper, logger *slog.Logger) propagation.Config {
	cfg := propagation.Config{
		Workers:    runtime.NumCPU(),
		MaxSamples: propagation.DefaultMaxSamples,
	}

	if n, ok := positiveInt(v, logger, "ephemeris.workers", cfg.Workers); ok {
		cfg.Workers = n
	}
	if n, ok := positiveInt(v, logger, "ephemeris.max_samples", cfg.MaxSamples); ok {
		cfg.MaxSamples = n
	}

	logger.Info("ephemeris config", "workers", cfg.Workers, "max_samples", cfg.MaxSamples)
	return cfg
}

func loadTLSConfig(v *viper.Viper, logger *slog.Logger) api.TLSConfig {
	cfg := api.TLSConfig{
		CacheDir: v.GetString("tls.cache_dir"),
	}
	for _, d := range strings.Split(v.GetString("tls.domains"), ",") {
		if d = strings.TrimSpace(d); d != "" {
			cfg.Domains = append(cfg.Domains, d)
		}
	}

	if cfg.Enabled() {
		logger.Info("TLS config", "domains", cfg.Domains, "cache_dir", cfg.CacheDir)
	}
	return cfg
}

// envName returns the environment variable backing key.
func envName(key string) string {
	return "KEPLER_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// positiveInt reads key as an integer >= 1. It reports false when the key is
// unset or invalid; invalid values are logged.
func positiveInt(v *viper.Viper, logger *slog.Logger, key string, def int) (int, bool) {
	if !v.IsSet(key) {
		return 0, false
	}
	raw := v.GetString(key)
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 1 {
		logger.Warn("invalid "+envName(key)+" value, using default", "value", raw, "default", def)
		return 0, false
	}
	return n, true
}

func positiveFloat(v *viper.Viper, logger *slog.Logger, key string, def float64) (float64, bool) {
	if !v.IsSet(key) {
		return 0, false
	}
	raw := v.GetString(key)
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || !(f > 0) || f > 1e9 {
		logger.Warn("invalid "+envName(key)+" value, using default", "value", raw, "default", def)
		return 0, false
	}
	return f, true
}

// positiveDuration accepts Go durations ("20s") or a bare number of seconds.
func positiveDuration(v *viper.Viper, logger *slog.Logger, key string, def time.Duration) (time.Duration, bool) {
	if !v.IsSet(key) {
		return 0, false
	}
	raw := strings.TrimSpace(v.GetString(key))
	d, err := time.ParseDuration(raw)
	if err != nil {
		if n, aerr := strconv.Atoi(raw); aerr == nil {
			d, err = time.Duration(n)*time.Second, nil
		}
	}
	if err != nil || d <= 0 {
		logger.Warn("invalid "+envName(key)+" value, using default", "value", raw, "default_seconds", def.Seconds())
		return 0, false
	}
	return d, true
}
