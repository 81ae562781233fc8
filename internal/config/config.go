// Package config handles bridge configuration
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	apperrors "github.com/openbadge/bridge/internal/errors"
)

// MaxButtonPressDelay bounds the AVRCP press/release gap.
const MaxButtonPressDelay = time.Second

type Config struct {
	DeviceName       string        `yaml:"device_name"`
	Adapter          string        `yaml:"adapter"`
	HTTPAddr         string        `yaml:"http_addr"`
	ControlAddr      string        `yaml:"control_addr"`
	PollInterval     time.Duration `yaml:"poll_interval"`
	ButtonPressDelay time.Duration `yaml:"button_press_delay"`
	LogBufferSize    int           `yaml:"log_buffer_size"`
	LogLevel         string        `yaml:"log_level"`
	PairingPIN       string        `yaml:"pairing_pin"`
	AudioBuffer      time.Duration `yaml:"audio_buffer"`
	AudioQueueDepth  int           `yaml:"audio_queue_depth"`
	AudioDevice      string        `yaml:"audio_device"`
	Simulate         bool          `yaml:"simulate"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		DeviceName:       "OpenBadge",
		Adapter:          "hci0",
		HTTPAddr:         ":8000",
		ControlAddr:      "localhost:50061",
		PollInterval:     10 * time.Millisecond,
		ButtonPressDelay: 100 * time.Millisecond,
		LogBufferSize:    50,
		LogLevel:         "info",
		PairingPIN:       "0000",
		AudioBuffer:      20 * time.Millisecond,
		AudioQueueDepth:  32,
	}
}

// Load builds the configuration from defaults, the YAML file named by
// CONFIG_FILE (if any) and the environment, in that order of precedence.
// An unreadable file is logged and skipped.
func Load() *Config {
	cfg := Defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.overlayFile(path); err != nil {
			slog.Warn("config file ignored", "path", path, "error", err)
		}
	}

	cfg.DeviceName = getEnv("DEVICE_NAME", cfg.DeviceName)
	cfg.Adapter = getEnv("ADAPTER", cfg.Adapter)
	cfg.HTTPAddr = getEnv("HTTP_ADDR", cfg.HTTPAddr)
	cfg.ControlAddr = getEnv("CONTROL_ADDR", cfg.ControlAddr)
	cfg.PollInterval = getEnvDuration("POLL_INTERVAL", cfg.PollInterval)
	cfg.ButtonPressDelay = getEnvDuration("BUTTON_PRESS_DELAY", cfg.ButtonPressDelay)
	cfg.LogBufferSize = getEnvInt("LOG_BUFFER_SIZE", cfg.LogBufferSize)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.PairingPIN = getEnv("PAIRING_PIN", cfg.PairingPIN)
	cfg.AudioBuffer = getEnvDuration("AUDIO_BUFFER", cfg.AudioBuffer)
	cfg.AudioQueueDepth = getEnvInt("AUDIO_QUEUE_DEPTH", cfg.AudioQueueDepth)
	cfg.AudioDevice = getEnv("AUDIO_DEVICE", cfg.AudioDevice)
	cfg.Simulate = getEnvBool("SIMULATE", cfg.Simulate)
	return cfg
}

func (c *Config) overlayFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// Validate reports the first setting that the bridge cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.ButtonPressDelay <= 0 || c.ButtonPressDelay > MaxButtonPressDelay:
		return apperrors.Newf(apperrors.CodeConfigInvalid, "button press delay %v outside (0, %v]", c.ButtonPressDelay, MaxButtonPressDelay)
	case c.PollInterval <= 0:
		return apperrors.Newf(apperrors.CodeConfigInvalid, "poll interval %v must be positive", c.PollInterval)
	case c.LogBufferSize <= 0:
		return apperrors.Newf(apperrors.CodeConfigInvalid, "log buffer size %d must be positive", c.LogBufferSize)
	case c.AudioBuffer <= 0:
		return apperrors.Newf(apperrors.CodeConfigInvalid, "audio buffer %v must be positive", c.AudioBuffer)
	case c.AudioQueueDepth <= 0:
		return apperrors.Newf(apperrors.CodeConfigInvalid, "audio queue depth %d must be positive", c.AudioQueueDepth)
	case c.DeviceName == "":
		return apperrors.New(apperrors.CodeConfigMissing, "device name is required")
	case !c.Simulate && c.Adapter == "":
		return apperrors.New(apperrors.CodeConfigMissing, "adapter is required")
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// SlogLevel returns the configured log level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	lvl, err := ParseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// ParseLevel maps debug|info|warn|error to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, apperrors.Newf(apperrors.CodeConfigInvalid, "unknown log level %q", s)
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

// getEnvDuration accepts Go durations ("10ms") or bare milliseconds ("10").
func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "true" || v == "1"
	}
	return def
}
