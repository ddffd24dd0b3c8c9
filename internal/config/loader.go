// Package config provides configuration loading for minuted.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB

	envPrefix = "MINUTED_"
)

// LoadWithFile loads configuration from a YAML file, then overrides with
// environment variables.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (MINUTED_STT_API_KEY, MINUTED_SERVER_HTTP_PORT, ...)
//  2. YAML config file (~/.config/minuted/config.yaml)
//  3. Hardcoded defaults
//
// The configPath parameter specifies the YAML file to load. If empty, uses
// the default path ~/.config/minuted/config.yaml.
//
// # Security Considerations
//
// File Permissions: the configuration file MUST have 0600 permissions
// (owner read/write only). It carries API keys and the bot key; files with
// weaker permissions (e.g. 0644 world-readable) are rejected.
//
// Path Validation: only configuration files in allowed directories load:
//   - ~/.config/minuted/ (user's config directory)
//   - /etc/minuted/ (system-wide config directory)
//
// Absolute paths outside these directories are rejected to prevent path
// traversal attacks.
//
// File Size Limit: configuration files larger than 1MB are rejected.
//
// # Environment Variable Mapping
//
// Environment variables carry the MINUTED_ prefix; the first underscore
// after the prefix separates the section from the field:
//
//	MINUTED_SERVER_HTTP_PORT -> server.http_port
//	MINUTED_STT_API_KEY -> stt.api_key
//	MINUTED_APPROVAL_SNOOZE_WINDOW -> approval.snooze_window
//
// # Example
//
//	cfg, err := config.LoadWithFile("")  // Use default path
//	if err != nil {
//	    log.Fatal(err)
//	}
func LoadWithFile(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(home, ".config", "minuted", "config.yaml")
	}

	// Validate config path (even if file doesn't exist)
	if err := validateConfigPath(configPath); err != nil {
		return nil, fmt.Errorf("config path validation failed: %w", err)
	}
	// Load from YAML file if it exists
	if _, err := os.Stat(configPath); err == nil {
		// Open file once and validate via the descriptor to avoid a
		// TOCTOU race
		f, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}

		if err := validateConfigFileProperties(info); err != nil {
			return nil, fmt.Errorf("config file validation failed: %w", err)
		}

		content, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		// Use rawbytes provider to avoid re-opening the file
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Override with environment variables. The transformer strips the
	// prefix and splits section from field on the first underscore:
	//
	//	MINUTED_SERVER_HTTP_PORT -> server.http_port
	//	MINUTED_BACKEND_BASE_URL -> backend.base_url
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		lower := strings.ToLower(strings.TrimPrefix(s, envPrefix))
		parts := strings.SplitN(lower, "_", 2)

		if len(parts) == 1 {
			return lower
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Booleans that default to true: a zero-value check cannot tell
	// "unset" from "explicitly false", so consult the loaded keys.
	if !k.Exists("logging.redaction") {
		cfg.Logging.Redaction = true
	}
	if !k.Exists("telemetry.insecure") {
		cfg.Telemetry.Insecure = true
	}
	if !k.Exists("stt.interim_results") {
		cfg.STT.InterimResults = true
	}
	if !k.Exists("capture.complete_on_stop") {
		cfg.Capture.CompleteOnStop = true
	}
	if !k.Exists("capture.generate_summary") {
		cfg.Capture.GenerateSummary = true
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// EnsureConfigDir creates the minuted config directory if it doesn't exist.
// Called during startup so new users have the directory ready. Created with
// 0700 permissions (owner read/write/execute only).
func EnsureConfigDir() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	configDir := filepath.Join(home, ".config", "minuted")
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", configDir, err)
	}

	return nil
}

// validateConfigPath checks if path is in allowed directories.
// This validation runs even if the file doesn't exist yet.
func validateConfigPath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	// Resolve symlinks so a link cannot escape the allowed directories
	resolvedPath, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		// Symlink evaluation fails for paths that don't exist yet;
		// validate the absolute path instead
		resolvedPath = absPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	allowedDirs := []string{
		filepath.Join(home, ".config", "minuted"),
		"/etc/minuted",
	}

	allowed := false
	for _, dir := range allowedDirs {
		if strings.HasPrefix(resolvedPath, dir) {
			allowed = true
			break
		}
	}

	if !allowed {
		return fmt.Errorf("config file must be in ~/.config/minuted/ or /etc/minuted/")
	}

	return nil
}

// validateConfigFileProperties checks file permissions and size.
// Takes FileInfo from an already-opened file descriptor to avoid a TOCTOU
// race.
func validateConfigFileProperties(info os.FileInfo) error {
	// Must be 0600 or 0400; skip on Windows (different permission model)
	if runtime.GOOS != "windows" {
		perm := info.Mode().Perm()
		if perm != 0600 && perm != 0400 {
			return fmt.Errorf("insecure config file permissions: %v (expected 0600 or 0400)", perm)
		}
	}

	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}

	return nil
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9090
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	// Telemetry defaults
	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = "localhost:4317"
	}
	if cfg.Telemetry.Protocol == "" {
		cfg.Telemetry.Protocol = "grpc"
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "minuted"
	}
	if cfg.Telemetry.SampleRate == 0 {
		cfg.Telemetry.SampleRate = 1.0
	}

	// Speech-to-text defaults (Deepgram-compatible stream)
	if cfg.STT.URL == "" {
		cfg.STT.URL = "wss://api.deepgram.com/v1/listen"
	}
	if cfg.STT.Model == "" {
		cfg.STT.Model = "nova-2"
	}
	if cfg.STT.Language == "" {
		cfg.STT.Language = "en-US"
	}
	if cfg.STT.SampleRate == 0 {
		cfg.STT.SampleRate = 16000
	}
	if cfg.STT.Channels == 0 {
		cfg.STT.Channels = 1
	}
	if cfg.STT.Encoding == "" {
		cfg.STT.Encoding = "linear16"
	}
	if cfg.STT.KeepAliveInterval == 0 {
		cfg.STT.KeepAliveInterval = 5 * time.Second
	}

	// Extraction defaults
	if cfg.Extraction.Provider == "" {
		cfg.Extraction.Provider = "disabled"
	}
	if cfg.Extraction.MaxTokens == 0 {
		cfg.Extraction.MaxTokens = 1500
	}
	if cfg.Extraction.Timeout == 0 {
		cfg.Extraction.Timeout = 30 * time.Second
	}
	if cfg.Extraction.MinInterval == 0 {
		cfg.Extraction.MinInterval = 30 * time.Second
	}

	// Backend defaults
	if cfg.Backend.Timeout == 0 {
		cfg.Backend.Timeout = 15 * time.Second
	}

	// Capture defaults
	if cfg.Capture.FrameBytes == 0 {
		cfg.Capture.FrameBytes = 640
	}
	if cfg.Capture.DrainTimeout == 0 {
		cfg.Capture.DrainTimeout = 5 * time.Second
	}

	// Approval defaults
	if cfg.Approval.SnoozeWindow == 0 {
		cfg.Approval.SnoozeWindow = 30 * time.Second
	}
	if cfg.Approval.SyncInterval == 0 {
		cfg.Approval.SyncInterval = 30 * time.Second
	}
}
