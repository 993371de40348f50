// Package config loads and validates the service configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (FILE_ROOT, SESSION_SECRET, ...)
//  2. Configuration file (YAML)
//  3. Default values
//
// The environment variables keep their historical bare names rather than a
// prefixed scheme, because deployments already set FILE_ROOT and friends.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the complete service configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
	Session SessionConfig `mapstructure:"session"`
	Users   UsersConfig   `mapstructure:"users"`
	Archive ArchiveConfig `mapstructure:"archive"`
	Search  SearchConfig  `mapstructure:"search"`
	Audit   AuditConfig   `mapstructure:"audit"`
	S3      S3Config      `mapstructure:"s3"`
}

// ServerConfig contains the HTTP listener and filesystem sandbox settings.
type ServerConfig struct {
	// Listen is the address the HTTP server binds to.
	Listen string `mapstructure:"listen" validate:"required"`

	// FileRoot is the host directory every user root is scoped under.
	FileRoot string `mapstructure:"file_root" validate:"required"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	// Level is the minimum level to emit: DEBUG, INFO, WARN, ERROR.
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR"`
}

// SessionConfig controls the stateless session tokens.
type SessionConfig struct {
	// Secret signs session tokens. Shared across nodes when scaling out.
	Secret string `mapstructure:"secret" validate:"required,min=16"`

	// TTL is the session lifetime.
	TTL time.Duration `mapstructure:"ttl" validate:"gt=0"`

	// RotateWithin attaches a fresh token once remaining lifetime drops
	// to this threshold or below.
	RotateWithin time.Duration `mapstructure:"rotate_within" validate:"gt=0"`
}

// UsersConfig selects the user registry source. Exactly one of File, JSON,
// or AdminPassword must be set.
type UsersConfig struct {
	// File is a path to a JSON array of user records.
	File string `mapstructure:"file"`

	// JSON is the same array inline, for container deployments.
	JSON string `mapstructure:"json"`

	// AdminPassword enables the single-admin fallback registry.
	AdminPassword string `mapstructure:"admin_password"`
}

// ArchiveConfig controls archive streaming.
type ArchiveConfig struct {
	// LargeMB is the zip store-mode threshold in MiB.
	LargeMB int64 `mapstructure:"large_mb" validate:"gt=0"`
}

// SearchConfig controls the linear content search.
type SearchConfig struct {
	// MaxBytes caps per-file content scanning.
	MaxBytes int64 `mapstructure:"max_bytes" validate:"gt=0"`
}

// AuditConfig controls the audit sink.
type AuditConfig struct {
	// LogPath is the JSON-lines audit file.
	LogPath string `mapstructure:"log_path" validate:"required"`
}

// S3Config controls the S3 profile store and connection registry.
type S3Config struct {
	// SettingsPath is the JSON document holding named S3 profiles.
	SettingsPath string `mapstructure:"settings_path" validate:"required"`

	// MaxConnections caps distinct live S3 configs process-wide.
	MaxConnections int `mapstructure:"max_connections" validate:"gt=0"`
}

// LargeBytes converts the archive threshold to bytes.
func (c ArchiveConfig) LargeBytes() int64 {
	return c.LargeMB << 20
}

// Load reads configuration from an optional YAML file plus the environment
// and validates the result.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	if configPath != "" {
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper binds the historical environment variable names onto the
// config tree.
func setupViper(v *viper.Viper, configPath string) {
	if configPath != "" {
		v.SetConfigFile(configPath)
	}

	bindings := map[string]string{
		"server.listen":           "LISTEN_ADDR",
		"server.file_root":        "FILE_ROOT",
		"server.shutdown_timeout": "SHUTDOWN_TIMEOUT",
		"logging.level":           "LOG_LEVEL",
		"session.secret":          "SESSION_SECRET",
		"session.ttl":             "SESSION_TTL",
		"session.rotate_within":   "SESSION_ROTATE",
		"users.file":              "USERS_FILE",
		"users.json":              "USERS_JSON",
		"users.admin_password":    "ADMIN_PASSWORD",
		"archive.large_mb":        "ARCHIVE_LARGE_MB",
		"search.max_bytes":        "SEARCH_MAX_BYTES",
		"audit.log_path":          "AUDIT_LOG_PATH",
		"s3.settings_path":        "S3_SETTINGS_PATH",
		"s3.max_connections":      "MAX_S3_CONNECTIONS",
	}
	for key, env := range bindings {
		// BindEnv only errors on empty input.
		_ = v.BindEnv(key, env)
	}
}
