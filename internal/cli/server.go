package cli

import (
	"context"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mufancom/remote-workspace/internal/config"
	"github.com/mufancom/remote-workspace/internal/container"
	"github.com/mufancom/remote-workspace/internal/daemon"
	"github.com/mufancom/remote-workspace/internal/githosting"
	"github.com/mufancom/remote-workspace/internal/logger"
	"github.com/mufancom/remote-workspace/internal/server"
	"github.com/mufancom/remote-workspace/internal/store"
	"github.com/mufancom/remote-workspace/internal/xdg"
)

// NewServerCommand creates the command that runs the workspace server in the
// foreground.
func NewServerCommand(options *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run the remote-workspace server",
		Long: `Run the workspace server in the foreground. The server loads the
configuration, reconciles workspace containers against the stored records,
sweeps idle workspaces, and serves the HTTP API until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logLevel, _ := cmd.Flags().GetString("log-level")
			return runServer(cmd.Context(), options.ConfigPath, logLevel)
		},
	}
	cmd.Flags().String("log-level", "info", "logging level (debug|info|warn|error)")
	return cmd
}

func runServer(ctx context.Context, configPath, logLevel string) error {
	logger.SetLevel(logLevel)

	logsDir := xdg.LogsDir()
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		logger.Warnf("Failed to create logs directory %s: %v", logsDir, err)
	} else if err := logger.AddFileOutput(filepath.Join(logsDir, "server.log")); err != nil {
		logger.Warnf("Failed to open server log file: %v", err)
	}

	if configPath == "" {
		configDir, err := xdg.ConfigDir()
		if err != nil {
			return err
		}
		configPath = filepath.Join(configDir, "remote-workspace.toml")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.StorePath())
	if err != nil {
		return err
	}

	docker := container.NewClient(nil, cfg.Name, cfg.DataDir)
	hosting := githosting.NewRegistry(cfg.Git.Services, nil)

	d := daemon.New(cfg, st, docker, hosting)
	d.Start(ctx)
	defer d.Stop()

	srv := server.New(cfg, d)
	if err := srv.Start(ctx); err != nil {
		return err
	}

	logger.Info("Server stopped")
	return nil
}
