// Package app hosts the top level application entry point.
package app

import (
	"context"

	"github.com/mufancom/remote-workspace/internal/cli"
)

// App represents the remote-workspace application.
type App struct{}

// New creates a new application instance.
func New() *App {
	return &App{}
}

// RunWithContext executes the CLI with a context for cancellation.
func (a *App) RunWithContext(ctx context.Context, args []string) error {
	rootCmd := cli.NewRootCommand()
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(ctx)
}
