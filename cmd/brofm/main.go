// Command brofm runs the multi-tenant file-management service.
package main

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/sesukyothole/bro-file-manager/internal/logger"
	"github.com/sesukyothole/bro-file-manager/internal/server"
	"github.com/sesukyothole/bro-file-manager/pkg/audit"
	"github.com/sesukyothole/bro-file-manager/pkg/auth"
	"github.com/sesukyothole/bro-file-manager/pkg/config"
	"github.com/sesukyothole/bro-file-manager/pkg/metrics"
	"github.com/sesukyothole/bro-file-manager/pkg/s3config"
	"github.com/sesukyothole/bro-file-manager/pkg/s3conn"
	"github.com/sesukyothole/bro-file-manager/pkg/store/local"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:           "brofm",
		Short:         "Multi-tenant file management service over local and S3 storage",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var configPath string
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}
	serve.Flags().StringVarP(&configPath, "config", "c", "", "path to config file (YAML)")
	root.AddCommand(serve)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func runServe(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger.SetLevel(cfg.Logging.Level)
	metrics.InitRegistry()

	users, err := loadUsers(cfg)
	if err != nil {
		return fmt.Errorf("load users: %w", err)
	}
	logger.Info().Int("users", len(users.Usernames())).Str("file_root", cfg.Server.FileRoot).Msg("User registry loaded")

	// Trash reconciliation: drop sidecars whose physical item vanished
	// before the process last stopped.
	for _, username := range users.Usernames() {
		user := users.Lookup(username)
		if err := local.New(user.RootReal).Reconcile(); err != nil {
			logger.Warn().Err(err).Str("user", username).Msg("Trash reconciliation failed")
		}
	}

	authority, err := auth.NewAuthority(cfg.Session.Secret, cfg.Session.TTL, cfg.Session.RotateWithin, users)
	if err != nil {
		return err
	}

	sink, err := audit.Open(cfg.Audit.LogPath)
	if err != nil {
		return err
	}
	defer func() {
		if err := sink.Close(); err != nil {
			logger.Warn().Err(err).Msg("Audit log close failed")
		}
	}()

	configs := s3config.NewStore(cfg.S3.SettingsPath)
	connections := s3conn.NewRegistry(configs, cfg.S3.MaxConnections)

	logger.Info().
		Str("archive_threshold", humanize.IBytes(uint64(cfg.Archive.LargeBytes()))).
		Str("search_cap", humanize.IBytes(uint64(cfg.Search.MaxBytes))).
		Int("max_s3_connections", cfg.S3.MaxConnections).
		Msg("Service configured")

	srv := server.New(cfg, authority, users, sink, configs, connections)
	return srv.Start(cfg.Server.Listen)
}

// loadUsers builds the registry from whichever source the config selects.
func loadUsers(cfg *config.Config) (*auth.Registry, error) {
	switch {
	case cfg.Users.JSON != "":
		return auth.LoadRegistryJSON([]byte(cfg.Users.JSON), cfg.Server.FileRoot)
	case cfg.Users.File != "":
		data, err := os.ReadFile(cfg.Users.File)
		if err != nil {
			return nil, fmt.Errorf("read users file: %w", err)
		}
		return auth.LoadRegistryJSON(data, cfg.Server.FileRoot)
	default:
		return auth.SingleAdminRegistry(cfg.Users.AdminPassword, cfg.Server.FileRoot)
	}
}
