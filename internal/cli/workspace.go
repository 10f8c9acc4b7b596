package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/mufancom/remote-workspace/internal/client"
	"github.com/mufancom/remote-workspace/internal/workspace"
)

// NewWorkspaceCommand creates the workspace management command group.
func NewWorkspaceCommand(options *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "workspace",
		Aliases: []string{"ws"},
		Short:   "Manage workspaces on a running server",
	}

	cmd.AddCommand(newWorkspaceListCommand(options))
	cmd.AddCommand(newWorkspaceCreateCommand(options))
	cmd.AddCommand(newWorkspaceUpdateCommand(options))
	cmd.AddCommand(newWorkspaceDeleteCommand(options))
	cmd.AddCommand(newWorkspaceActivateCommand(options))
	cmd.AddCommand(newWorkspaceDeactivateCommand(options))

	return cmd
}

func newWorkspaceListCommand(options *Options) *cobra.Command {
	var outputJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List workspaces and their status",
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := client.New(options.ServerURL)
			if err != nil {
				return err
			}

			statuses, err := api.ListWorkspaces(cmd.Context())
			if err != nil {
				return err
			}

			if outputJSON {
				return printJSON(cmd.OutOrStdout(), statuses)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tOWNER\tPORT\tACTIVE\tREADY\tDEACTIVATES AT")
			for _, status := range statuses {
				deactivatesAt := "-"
				if status.DeactivatesAt != nil {
					deactivatesAt = status.DeactivatesAt.Format(time.RFC3339)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%t\t%t\t%s\n",
					status.ID, status.DisplayName, status.Owner,
					status.Port, status.Active, status.Ready, deactivatesAt)
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&outputJSON, "json", false, "Print raw JSON")
	return cmd
}

func newWorkspaceCreateCommand(options *Options) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a workspace from a JSON definition",
		Long: `Create a workspace from a JSON definition file. Use "-" to read the
definition from stdin. The definition matches the POST /api/workspaces
payload: displayName, owner, projects, services and an optional image.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := readOptions(file, cmd.InOrStdin())
			if err != nil {
				return err
			}

			api, err := client.New(options.ServerURL)
			if err != nil {
				return err
			}

			id, err := api.CreateWorkspace(cmd.Context(), opts)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "-", "Workspace definition file, or - for stdin")
	return cmd
}

func newWorkspaceUpdateCommand(options *Options) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Replace the definition of an existing workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := readOptions(file, cmd.InOrStdin())
			if err != nil {
				return err
			}

			api, err := client.New(options.ServerURL)
			if err != nil {
				return err
			}

			return api.UpdateWorkspace(cmd.Context(), args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "-", "Workspace definition file, or - for stdin")
	return cmd
}

func newWorkspaceDeleteCommand(options *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a workspace and its retained files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := client.New(options.ServerURL)
			if err != nil {
				return err
			}
			return api.DeleteWorkspace(cmd.Context(), args[0])
		},
	}
}

func newWorkspaceActivateCommand(options *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "activate <id>",
		Short: "Activate a workspace so its containers come up",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := client.New(options.ServerURL)
			if err != nil {
				return err
			}
			return api.ActivateWorkspace(cmd.Context(), args[0])
		},
	}
}

func newWorkspaceDeactivateCommand(options *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "deactivate <id>",
		Short: "Deactivate a workspace and tear its containers down",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := client.New(options.ServerURL)
			if err != nil {
				return err
			}
			return api.DeactivateWorkspace(cmd.Context(), args[0])
		},
	}
}

// NewTemplatesCommand creates the command listing the server's workspace
// templates.
func NewTemplatesCommand(options *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "templates",
		Short: "List workspace templates configured on the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := client.New(options.ServerURL)
			if err != nil {
				return err
			}

			templates, err := api.ListTemplates(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), templates)
		},
	}
}

func readOptions(file string, stdin io.Reader) (workspace.Options, error) {
	var reader io.Reader
	if file == "-" {
		reader = stdin
	} else {
		f, err := os.Open(file)
		if err != nil {
			return workspace.Options{}, fmt.Errorf("failed to open definition file: %w", err)
		}
		defer f.Close()
		reader = f
	}

	var opts workspace.Options
	decoder := json.NewDecoder(reader)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&opts); err != nil {
		return workspace.Options{}, fmt.Errorf("invalid workspace definition: %w", err)
	}
	return opts, nil
}

func printJSON(w io.Writer, value interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}
