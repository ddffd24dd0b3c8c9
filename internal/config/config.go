// Package config provides configuration loading for minuted.
//
// Configuration is loaded from a YAML file with environment overrides and
// sensible defaults. This package covers the server, logging, telemetry,
// speech-to-text, extraction, backend, capture, and approval settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the complete minuted configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Logging    LoggingConfig    `koanf:"logging"`
	Telemetry  TelemetryConfig  `koanf:"telemetry"`
	STT        STTConfig        `koanf:"stt"`
	Extraction ExtractionConfig `koanf:"extraction"`
	Backend    BackendConfig    `koanf:"backend"`
	Capture    CaptureConfig    `koanf:"capture"`
	Approval   ApprovalConfig   `koanf:"approval"`
}

// ServerConfig holds HTTP control-surface configuration.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"http_port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig holds structured-logging configuration.
type LoggingConfig struct {
	Level     string `koanf:"level"`
	Format    string `koanf:"format"`
	Redaction bool   `koanf:"redaction"`
}

// TelemetryConfig holds OpenTelemetry export configuration.
type TelemetryConfig struct {
	Enabled     bool    `koanf:"enabled"`
	Endpoint    string  `koanf:"endpoint"`
	Protocol    string  `koanf:"protocol"`
	ServiceName string  `koanf:"service_name"`
	Insecure    bool    `koanf:"insecure"`
	SampleRate  float64 `koanf:"sample_rate"`
}

// STTConfig holds the streaming speech-to-text connection settings.
type STTConfig struct {
	URL               string        `koanf:"url"`
	APIKey            Secret        `koanf:"api_key"`
	Model             string        `koanf:"model"`
	Language          string        `koanf:"language"`
	SampleRate        int           `koanf:"sample_rate"`
	Channels          int           `koanf:"channels"`
	Encoding          string        `koanf:"encoding"`
	InterimResults    bool          `koanf:"interim_results"`
	KeepAliveInterval time.Duration `koanf:"keepalive_interval"`
}

// ExtractionConfig holds the task-extraction provider and pacing settings.
type ExtractionConfig struct {
	// Provider selects the implementation: "anthropic", "openai", or
	// "disabled".
	Provider    string        `koanf:"provider"`
	Model       string        `koanf:"model"`
	APIKey      Secret        `koanf:"api_key"`
	BaseURL     string        `koanf:"base_url"`
	MaxTokens   int           `koanf:"max_tokens"`
	Timeout     time.Duration `koanf:"timeout"`
	MinInterval time.Duration `koanf:"min_interval"`
}

// BackendConfig holds the meeting-backend REST and push settings.
type BackendConfig struct {
	BaseURL string `koanf:"base_url"`
	// BotKey authenticates capture-bot calls (X-Bot-Key header).
	BotKey Secret `koanf:"bot_key"`
	// AuthToken authenticates moderator calls (Bearer). Leave empty to
	// run capture-only.
	AuthToken Secret        `koanf:"auth_token"`
	OrgID     string        `koanf:"org_id"`
	TeamID    string        `koanf:"team_id"`
	Timeout   time.Duration `koanf:"timeout"`
	// PushURL is the websocket push endpoint. Empty disables the push
	// channel; the approval queue then relies on periodic resync alone.
	PushURL string `koanf:"push_url"`
}

// CaptureConfig holds the audio-capture session settings.
type CaptureConfig struct {
	// AudioPath is a file or named pipe carrying raw PCM audio.
	AudioPath       string        `koanf:"audio_path"`
	FrameBytes      int           `koanf:"frame_bytes"`
	CompleteOnStop  bool          `koanf:"complete_on_stop"`
	GenerateSummary bool          `koanf:"generate_summary"`
	DrainTimeout    time.Duration `koanf:"drain_timeout"`
}

// ApprovalConfig holds the moderated approval-queue settings.
type ApprovalConfig struct {
	SnoozeWindow time.Duration `koanf:"snooze_window"`
	SyncInterval time.Duration `koanf:"sync_interval"`
}

// Load loads configuration from environment variables with defaults.
//
// Environment variables (MINUTED_ prefix, section first):
//   - MINUTED_SERVER_HTTP_PORT: control-surface port (default: 9090)
//   - MINUTED_SERVER_SHUTDOWN_TIMEOUT: graceful shutdown timeout (default: 10s)
//   - MINUTED_LOGGING_LEVEL: log level (default: info)
//   - MINUTED_TELEMETRY_ENABLED: enable OpenTelemetry (default: false)
//   - MINUTED_STT_API_KEY: speech-to-text API key
//   - MINUTED_EXTRACTION_PROVIDER: anthropic | openai | disabled
//   - MINUTED_BACKEND_BASE_URL: meeting backend base URL
//   - MINUTED_CAPTURE_AUDIO_PATH: raw PCM source path
//
// Example:
//
//	cfg := config.Load()
//	fmt.Println("Server port:", cfg.Server.Port)
func Load() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnvString("MINUTED_SERVER_HOST", "localhost"),
			Port:            getEnvInt("MINUTED_SERVER_HTTP_PORT", 9090),
			ShutdownTimeout: getEnvDuration("MINUTED_SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Logging: LoggingConfig{
			Level:     getEnvString("MINUTED_LOGGING_LEVEL", "info"),
			Format:    getEnvString("MINUTED_LOGGING_FORMAT", "json"),
			Redaction: getEnvBool("MINUTED_LOGGING_REDACTION", true),
		},
		Telemetry: TelemetryConfig{
			Enabled:     getEnvBool("MINUTED_TELEMETRY_ENABLED", false),
			Endpoint:    getEnvString("MINUTED_TELEMETRY_ENDPOINT", "localhost:4317"),
			Protocol:    getEnvString("MINUTED_TELEMETRY_PROTOCOL", "grpc"),
			ServiceName: getEnvString("MINUTED_TELEMETRY_SERVICE_NAME", "minuted"),
			Insecure:    getEnvBool("MINUTED_TELEMETRY_INSECURE", true),
			SampleRate:  1.0,
		},
		STT: STTConfig{
			URL:               getEnvString("MINUTED_STT_URL", "wss://api.deepgram.com/v1/listen"),
			APIKey:            Secret(os.Getenv("MINUTED_STT_API_KEY")),
			Model:             getEnvString("MINUTED_STT_MODEL", "nova-2"),
			Language:          getEnvString("MINUTED_STT_LANGUAGE", "en-US"),
			SampleRate:        getEnvInt("MINUTED_STT_SAMPLE_RATE", 16000),
			Channels:          getEnvInt("MINUTED_STT_CHANNELS", 1),
			Encoding:          getEnvString("MINUTED_STT_ENCODING", "linear16"),
			InterimResults:    getEnvBool("MINUTED_STT_INTERIM_RESULTS", true),
			KeepAliveInterval: getEnvDuration("MINUTED_STT_KEEPALIVE_INTERVAL", 5*time.Second),
		},
		Extraction: ExtractionConfig{
			Provider:    getEnvString("MINUTED_EXTRACTION_PROVIDER", "disabled"),
			Model:       getEnvString("MINUTED_EXTRACTION_MODEL", ""),
			APIKey:      Secret(os.Getenv("MINUTED_EXTRACTION_API_KEY")),
			BaseURL:     getEnvString("MINUTED_EXTRACTION_BASE_URL", ""),
			MaxTokens:   getEnvInt("MINUTED_EXTRACTION_MAX_TOKENS", 1500),
			Timeout:     getEnvDuration("MINUTED_EXTRACTION_TIMEOUT", 30*time.Second),
			MinInterval: getEnvDuration("MINUTED_EXTRACTION_MIN_INTERVAL", 30*time.Second),
		},
		Backend: BackendConfig{
			BaseURL:   getEnvString("MINUTED_BACKEND_BASE_URL", ""),
			BotKey:    Secret(os.Getenv("MINUTED_BACKEND_BOT_KEY")),
			AuthToken: Secret(os.Getenv("MINUTED_BACKEND_AUTH_TOKEN")),
			OrgID:     getEnvString("MINUTED_BACKEND_ORG_ID", ""),
			TeamID:    getEnvString("MINUTED_BACKEND_TEAM_ID", ""),
			Timeout:   getEnvDuration("MINUTED_BACKEND_TIMEOUT", 15*time.Second),
			PushURL:   getEnvString("MINUTED_BACKEND_PUSH_URL", ""),
		},
		Capture: CaptureConfig{
			AudioPath:       getEnvString("MINUTED_CAPTURE_AUDIO_PATH", ""),
			FrameBytes:      getEnvInt("MINUTED_CAPTURE_FRAME_BYTES", 640),
			CompleteOnStop:  getEnvBool("MINUTED_CAPTURE_COMPLETE_ON_STOP", true),
			GenerateSummary: getEnvBool("MINUTED_CAPTURE_GENERATE_SUMMARY", true),
			DrainTimeout:    getEnvDuration("MINUTED_CAPTURE_DRAIN_TIMEOUT", 5*time.Second),
		},
		Approval: ApprovalConfig{
			SnoozeWindow: getEnvDuration("MINUTED_APPROVAL_SNOOZE_WINDOW", 30*time.Second),
			SyncInterval: getEnvDuration("MINUTED_APPROVAL_SYNC_INTERVAL", 30*time.Second),
		},
	}

	return cfg
}

// Validate validates the configuration.
//
// Returns an error if:
//   - Server port is not between 1 and 65535
//   - Shutdown timeout is not positive
//   - Logging format is not json or console
//   - Telemetry is enabled without an endpoint or service name
//   - Extraction provider is unknown
//   - Backend base URL is missing
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}

	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("logging format must be 'json' or 'console', got %q", c.Logging.Format)
	}

	if c.Telemetry.Enabled {
		if c.Telemetry.Endpoint == "" {
			return errors.New("telemetry endpoint required when telemetry is enabled")
		}
		if c.Telemetry.ServiceName == "" {
			return errors.New("service name required when telemetry is enabled")
		}
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		return fmt.Errorf("telemetry sample_rate must be between 0 and 1, got %f", c.Telemetry.SampleRate)
	}

	if c.STT.SampleRate <= 0 {
		return fmt.Errorf("stt sample_rate must be positive, got %d", c.STT.SampleRate)
	}
	if c.STT.Channels <= 0 {
		return fmt.Errorf("stt channels must be positive, got %d", c.STT.Channels)
	}

	switch c.Extraction.Provider {
	case "", "disabled", "anthropic", "openai":
	default:
		return fmt.Errorf("unknown extraction provider: %q (use anthropic, openai, or disabled)", c.Extraction.Provider)
	}
	if c.Extraction.MinInterval < 0 {
		return errors.New("extraction min_interval cannot be negative")
	}

	if c.Backend.BaseURL == "" {
		return errors.New("backend base_url is required (set MINUTED_BACKEND_BASE_URL or backend.base_url)")
	}

	if c.Capture.FrameBytes <= 0 {
		return fmt.Errorf("capture frame_bytes must be positive, got %d", c.Capture.FrameBytes)
	}

	if c.Approval.SnoozeWindow <= 0 {
		return errors.New("approval snooze_window must be positive")
	}
	if c.Approval.SyncInterval <= 0 {
		return errors.New("approval sync_interval must be positive")
	}

	return nil
}

// Helper functions for environment variable parsing

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}
