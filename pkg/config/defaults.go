package config

import (
	"strings"
	"time"
)

// ApplyDefaults fills unset fields with sensible defaults. Explicit values
// are preserved; only zero values are replaced.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Listen == "" {
		cfg.Server.Listen = ":8080"
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "INFO"
	}
	cfg.Logging.Level = strings.ToUpper(cfg.Logging.Level)

	if cfg.Session.TTL == 0 {
		cfg.Session.TTL = 8 * time.Hour
	}
	if cfg.Session.RotateWithin == 0 {
		cfg.Session.RotateWithin = 30 * time.Minute
	}

	if cfg.Archive.LargeMB == 0 {
		cfg.Archive.LargeMB = 100
	}
	if cfg.Search.MaxBytes == 0 {
		cfg.Search.MaxBytes = 200 * 1024
	}

	if cfg.Audit.LogPath == "" {
		cfg.Audit.LogPath = "audit.log"
	}

	if cfg.S3.SettingsPath == "" {
		cfg.S3.SettingsPath = "data/settings.json"
	}
	if cfg.S3.MaxConnections == 0 {
		cfg.S3.MaxConnections = 5
	}
}
