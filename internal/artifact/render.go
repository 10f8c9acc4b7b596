// Package artifact derives the on-disk artifacts consumed by the container
// engine and the in-container bootstrap: the compose document, the SSH
// authorized_keys file, the initialization identity and per-workspace
// metadata snapshots.
package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ssh"
	"gopkg.in/yaml.v3"

	"github.com/mufancom/remote-workspace/internal/config"
	"github.com/mufancom/remote-workspace/internal/errors"
	"github.com/mufancom/remote-workspace/internal/workspace"
)

// generatedHeader marks files that are overwritten on every cycle.
const generatedHeader = "# Generated file, changes directly made to this file will be overridden.\n"

// State is the input to every renderable: the full workspace set and the
// deployment configuration.
type State struct {
	Config *config.Config
	// All contains a view for every record; metadata is kept for inactive
	// workspaces too.
	All []*workspace.Workspace
	// Active contains the subset whose containers should be running. Only
	// these appear in the compose document.
	Active []*workspace.Workspace
	// Identity is the private key material for in-container clones.
	Identity string
}

// NewState builds render state from the current record set.
func NewState(cfg *config.Config, records []workspace.Record) (*State, error) {
	identity, err := cfg.Identity()
	if err != nil {
		return nil, err
	}

	state := &State{Config: cfg, Identity: identity}
	for _, record := range records {
		view := workspace.New(record, cfg)
		state.All = append(state.All, view)
		if record.Active {
			state.Active = append(state.Active, view)
		}
	}
	return state, nil
}

// Renderable produces the content of one generated artifact from the current
// state. Implementations are independent value producers composed by the
// Generator.
type Renderable interface {
	Render(state *State) ([]byte, error)
}

// authorizedKeysFile renders the SSH authorized_keys file: one line per
// configured user, prefixed with forced environment assignments that identify
// the connecting user to git.
type authorizedKeysFile struct{}

func (authorizedKeysFile) Render(state *State) ([]byte, error) {
	var builder strings.Builder
	builder.WriteString(generatedHeader)

	for _, user := range state.Config.Users {
		publicKey := user.PublicKey
		if user.PublicKeyFile != "" {
			data, err := os.ReadFile(state.Config.ResolvePath(user.PublicKeyFile))
			if err != nil {
				return nil, errors.Wrap(errors.ErrMissingCredential,
					fmt.Sprintf("failed to read public key file for user %q", user.Name), err)
			}
			publicKey = string(data)
		}

		publicKey = strings.TrimSpace(publicKey)
		if publicKey == "" {
			return nil, errors.New(errors.ErrMissingCredential, "missing public key for user %q", user.Name)
		}
		if _, _, _, _, err := ssh.ParseAuthorizedKey([]byte(publicKey)); err != nil {
			return nil, errors.Wrap(errors.ErrMissingCredential,
				fmt.Sprintf("invalid public key for user %q", user.Name), err)
		}

		environment := strings.Join([]string{
			fmt.Sprintf("environment=%q", "REMOTE_USER_NAME="+user.Name),
			fmt.Sprintf("environment=%q", "REMOTE_USER_EMAIL="+user.Email),
			fmt.Sprintf("environment=%q", "GIT_AUTHOR_NAME="+user.Name),
			fmt.Sprintf("environment=%q", "GIT_AUTHOR_EMAIL="+user.Email),
			fmt.Sprintf("environment=%q", "GIT_COMMITTER_NAME="+user.Name),
			fmt.Sprintf("environment=%q", "GIT_COMMITTER_EMAIL="+user.Email),
		}, ",")

		builder.WriteString(environment)
		builder.WriteByte(' ')
		builder.WriteString(publicKey)
		builder.WriteByte('\n')
	}

	return []byte(builder.String()), nil
}

// identityFile renders the clone identity written with owner-only
// permissions.
type identityFile struct{}

func (identityFile) Render(state *State) ([]byte, error) {
	return []byte(state.Identity), nil
}

// composeFile renders the declarative orchestration document: one primary
// service per active workspace plus one service per auxiliary entry, each
// labeled with the workspace content hash.
type composeFile struct{}

// composeDocument is the top-level compose structure. Map values marshal in
// sorted key order, so repeated renders of an unchanged record set are
// byte-identical.
type composeDocument struct {
	Version  string                            `yaml:"version"`
	Services map[string]map[string]interface{} `yaml:"services"`
	Volumes  map[string]interface{}            `yaml:"volumes"`
	Networks map[string]interface{}            `yaml:"networks"`
}

func (composeFile) Render(state *State) ([]byte, error) {
	cfg := state.Config
	shared := sharedVolumes(cfg)

	doc := composeDocument{
		Version:  "3.2",
		Services: map[string]map[string]interface{}{},
		Volumes:  map[string]interface{}{},
		Networks: map[string]interface{}{},
	}

	for _, volume := range shared {
		if volume.Type == "volume" {
			doc.Volumes[volume.Source] = nil
		}
	}

	for _, ws := range state.Active {
		network := ws.NetworkName()
		doc.Networks[network] = nil

		volumes := make([]config.VolumeEntry, 0, len(shared)+1)
		volumes = append(volumes, config.VolumeEntry{
			Type:   "bind",
			Source: filepath.Join(cfg.WorkspacesDir(), ws.ID()),
			Target: "/root/workspace",
		})
		volumes = append(volumes, shared...)

		doc.Services[ws.ID()] = map[string]interface{}{
			"image": ws.Image(),
			"labels": map[string]string{
				// Recreate the container when the record configuration
				// changes.
				"remote-workspace.hash": ws.Hash(),
			},
			"restart":  "always",
			"volumes":  volumes,
			"networks": []string{network},
			"ports":    []string{fmt.Sprintf("%d:22", ws.Port())},
		}

		for _, service := range ws.Services() {
			entry := service.ComposeFields()

			labels := map[string]interface{}{}
			if extra, ok := entry["labels"].(map[string]interface{}); ok {
				for key, value := range extra {
					labels[key] = value
				}
			}
			labels["remote-workspace.hash"] = ws.Hash()
			entry["labels"] = labels

			entry["restart"] = "always"
			entry["networks"] = map[string]interface{}{
				network: map[string]interface{}{
					"aliases": []string{service.Name},
				},
			}
			doc.Services[fmt.Sprintf("%s_%s", ws.ID(), service.Name)] = entry
		}
	}

	body, err := yaml.Marshal(doc)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInternal, "failed to render compose document", err)
	}
	return append([]byte(generatedHeader), body...), nil
}

// sharedVolumes returns the mounts common to every workspace container: the
// built-in set plus the configured extras.
func sharedVolumes(cfg *config.Config) []config.VolumeEntry {
	return append([]config.VolumeEntry{
		{Type: "volume", Source: "repositories", Target: "/root/repositories"},
		{Type: "volume", Source: "vscode-extensions", Target: "/root/.vscode-server/extensions"},
		{Type: "volume", Source: "vscode-machine-data", Target: "/root/.vscode-server/data/Machine"},
		{Type: "bind", Source: filepath.Join(cfg.DataDir, "ssh"), Target: "/root/.ssh"},
		{Type: "volume", Source: "ssh", Target: "/etc/ssh"},
	}, cfg.Volumes.Shared...)
}
