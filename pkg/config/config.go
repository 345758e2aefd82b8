// Package config loads FieldVision client settings from the environment.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fieldvision-ai/fieldvision-go/pkg/session"
)

type Config struct {
	ServerURL string
	Token     string

	SystemInstruction string
	ManualContext     string

	DialTimeout time.Duration

	// Reconnect policy.
	ReconnectMaxAttempts int
	ReconnectBaseDelay   time.Duration
	ReconnectGrowth      float64
	ReconnectMaxDelay    time.Duration
	ResetDelay           time.Duration
	ResetWatchdog        time.Duration

	// Audio capture.
	AudioWindowSamples int

	// Video capture.
	VideoInterval  time.Duration
	VideoMaxWidth  int
	VideoMaxHeight int
	VideoQuality   int
	VideoMaxBytes  int


	LogLevel slog.Level
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		ServerURL:            envOr("FIELDVISION_SERVER_URL", "ws://localhost:8765/session"),
		Token:                envOr("FIELDVISION_TOKEN", ""),
		SystemInstruction:    envOr("FIELDVISION_SYSTEM_INSTRUCTION", ""),
		ManualContext:        envOr("FIELDVISION_MANUAL_CONTEXT", ""),
		DialTimeout:          envDurationOr("FIELDVISION_DIAL_TIMEOUT", 15*time.Second),
		ReconnectMaxAttempts: envIntOr("FIELDVISION_RECONNECT_MAX_ATTEMPTS", 5),
		ReconnectBaseDelay:   envDurationOr("FIELDVISION_RECONNECT_BASE_DELAY", time.Second),
		ReconnectGrowth:      envFloat64Or("FIELDVISION_RECONNECT_GROWTH", 1.5),
		ReconnectMaxDelay:    envDurationOr("FIELDVISION_RECONNECT_MAX_DELAY", 5*time.Second),
		ResetDelay:           envDurationOr("FIELDVISION_RESET_DELAY", 100*time.Millisecond),
		ResetWatchdog:        envDurationOr("FIELDVISION_RESET_WATCHDOG", 5*time.Second),
		AudioWindowSamples:   envIntOr("FIELDVISION_AUDIO_WINDOW_SAMPLES", 4096),
		VideoInterval:        envDurationOr("FIELDVISION_VIDEO_INTERVAL", time.Second),
		VideoMaxWidth:        envIntOr("FIELDVISION_VIDEO_MAX_WIDTH", 640),
		VideoMaxHeight:       envIntOr("FIELDVISION_VIDEO_MAX_HEIGHT", 480),
		VideoQuality:         envIntOr("FIELDVISION_VIDEO_QUALITY", 60),
		VideoMaxBytes:        envIntOr("FIELDVISION_VIDEO_MAX_BYTES", 512<<10),
	}

	switch strings.ToLower(envOr("FIELDVISION_LOG_LEVEL", "info")) {
	case "debug":
		cfg.LogLevel = slog.LevelDebug
	case "info":
		cfg.LogLevel = slog.LevelInfo
	case "warn", "warning":
		cfg.LogLevel = slog.LevelWarn
	case "error":
		cfg.LogLevel = slog.LevelError
	default:
		return Config{}, fmt.Errorf("FIELDVISION_LOG_LEVEL must be one of debug|info|warn|error")
	}

	if strings.TrimSpace(cfg.ServerURL) == "" {
		return Config{}, fmt.Errorf("FIELDVISION_SERVER_URL must not be empty")
	}
	if cfg.DialTimeout <= 0 {
		return Config{}, fmt.Errorf("FIELDVISION_DIAL_TIMEOUT must be > 0")
	}
	if cfg.ReconnectMaxAttempts <= 0 {
		return Config{}, fmt.Errorf("FIELDVISION_RECONNECT_MAX_ATTEMPTS must be > 0")
	}
	if cfg.ReconnectBaseDelay <= 0 {
		return Config{}, fmt.Errorf("FIELDVISION_RECONNECT_BASE_DELAY must be > 0")
	}
	if cfg.ReconnectGrowth <= 1 {
		return Config{}, fmt.Errorf("FIELDVISION_RECONNECT_GROWTH must be > 1")
	}
	if cfg.ReconnectMaxDelay < cfg.ReconnectBaseDelay {
		return Config{}, fmt.Errorf("FIELDVISION_RECONNECT_MAX_DELAY must be >= FIELDVISION_RECONNECT_BASE_DELAY")
	}
	if cfg.ResetDelay <= 0 {
		return Config{}, fmt.Errorf("FIELDVISION_RESET_DELAY must be > 0")
	}
	if cfg.ResetWatchdog <= 0 {
		return Config{}, fmt.Errorf("FIELDVISION_RESET_WATCHDOG must be > 0")
	}
	if cfg.AudioWindowSamples <= 0 {
		return Config{}, fmt.Errorf("FIELDVISION_AUDIO_WINDOW_SAMPLES must be > 0")
	}
	if cfg.VideoInterval <= 0 {
		return Config{}, fmt.Errorf("FIELDVISION_VIDEO_INTERVAL must be > 0")
	}
	if cfg.VideoMaxWidth <= 0 || cfg.VideoMaxHeight <= 0 {
		return Config{}, fmt.Errorf("FIELDVISION_VIDEO_MAX_WIDTH and FIELDVISION_VIDEO_MAX_HEIGHT must be > 0")
	}
	if cfg.VideoQuality < 1 || cfg.VideoQuality > 100 {
		return Config{}, fmt.Errorf("FIELDVISION_VIDEO_QUALITY must be in [1, 100]")
	}
	if cfg.VideoMaxBytes <= 0 {
		return Config{}, fmt.Errorf("FIELDVISION_VIDEO_MAX_BYTES must be > 0")
	}

	return cfg, nil
}

// ReconnectPolicy converts the flat env fields to the session policy.
func (c Config) ReconnectPolicy() session.ReconnectPolicy {
	return session.ReconnectPolicy{
		MaxAttempts: c.ReconnectMaxAttempts,
		BaseDelay:   c.ReconnectBaseDelay,
		Growth:      c.ReconnectGrowth,
		MaxDelay:    c.ReconnectMaxDelay,
		ResetDelay:  c.ResetDelay,
	}
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envFloat64Or(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return n
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}
