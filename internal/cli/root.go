// Package cli wires the cobra command tree for the remote-workspace binary.
package cli

import (
	"github.com/spf13/cobra"
)

// Options carries the construction settings shared by every command.
type Options struct {
	// ConfigPath overrides the default config file location.
	ConfigPath string
	// ServerURL is the API endpoint client commands talk to.
	ServerURL string
}

// NewRootCommand builds the full command tree.
func NewRootCommand() *cobra.Command {
	options := &Options{}

	rootCmd := &cobra.Command{
		Use:   "remote-workspace",
		Short: "Per-user remote development workspaces on a shared host",
		Long: `remote-workspace manages containerized development workspaces on a
single host. The server keeps workspace records, renders docker-compose
artifacts, and reconciles running containers; client commands talk to a
running server over HTTP.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&options.ConfigPath, "config", "c", "", "Path to configuration file")
	rootCmd.PersistentFlags().StringVarP(&options.ServerURL, "server", "s", "http://localhost:8022", "Server URL for client commands")

	rootCmd.AddCommand(NewServerCommand(options))
	rootCmd.AddCommand(NewWorkspaceCommand(options))
	rootCmd.AddCommand(NewTemplatesCommand(options))

	return rootCmd
}
