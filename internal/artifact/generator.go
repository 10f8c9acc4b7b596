package artifact

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/mufancom/remote-workspace/internal/config"
	"github.com/mufancom/remote-workspace/internal/errors"
	"github.com/mufancom/remote-workspace/internal/logger"
	"github.com/mufancom/remote-workspace/internal/workspace"
)

// Pruner removes container-engine resources left behind by deleted
// workspaces. Failures are tolerated.
type Pruner interface {
	PruneContainers(ctx context.Context) error
	PruneNetworks(ctx context.Context) error
}

// Generator writes all derived artifacts for the current record set and
// prunes artifacts of workspaces no longer present.
type Generator struct {
	cfg    *config.Config
	pruner Pruner

	authorizedKeys Renderable
	identity       Renderable
	compose        Renderable
}

// NewGenerator creates an artifact generator rooted at the config data
// directory.
func NewGenerator(cfg *config.Config, pruner Pruner) *Generator {
	return &Generator{
		cfg:            cfg,
		pruner:         pruner,
		authorizedKeys: authorizedKeysFile{},
		identity:       identityFile{},
		compose:        composeFile{},
	}
}

// ComposePath returns the location of the generated compose document.
func (g *Generator) ComposePath() string {
	return filepath.Join(g.cfg.DataDir, "docker-compose.yml")
}

// Update regenerates every artifact from the record set. All content is
// rendered before anything is written, so a render failure (for example a
// missing user credential) leaves prior artifacts untouched.
func (g *Generator) Update(records []workspace.Record) error {
	state, err := NewState(g.cfg, records)
	if err != nil {
		return err
	}

	authorizedKeys, err := g.authorizedKeys.Render(state)
	if err != nil {
		return err
	}
	identity, err := g.identity.Render(state)
	if err != nil {
		return err
	}
	compose, err := g.compose.Render(state)
	if err != nil {
		return err
	}

	metadata := make(map[string][]byte, len(state.All))
	for _, view := range state.All {
		snapshot, err := json.MarshalIndent(view.Record(), "", "  ")
		if err != nil {
			return errors.Wrap(errors.ErrInternal, "failed to serialize workspace metadata", err)
		}
		metadata[view.ID()] = append(snapshot, '\n')
	}

	sshDir := filepath.Join(g.cfg.DataDir, "ssh")
	if err := os.MkdirAll(sshDir, 0o755); err != nil {
		return errors.Wrap(errors.ErrInternal, "failed to create ssh directory", err)
	}

	logger.Info("Updating authorized keys")
	if err := writeFile(filepath.Join(sshDir, "authorized_keys"), authorizedKeys, 0o644); err != nil {
		return err
	}

	logger.Info("Updating initialize identity")
	if err := writeFile(filepath.Join(sshDir, "initialize-identity"), identity, 0o600); err != nil {
		return err
	}

	logger.Info("Updating workspace metadata")
	for id, snapshot := range metadata {
		dir := filepath.Join(g.cfg.WorkspacesDir(), id)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(errors.ErrInternal, "failed to create workspace directory", err)
		}
		if err := writeFile(filepath.Join(dir, "metadata.json"), snapshot, 0o644); err != nil {
			return err
		}
	}

	logger.Info("Updating docker-compose.yml")
	return writeFile(g.ComposePath(), compose, 0o644)
}

// Prune removes per-workspace directories whose record is gone, then asks
// the container engine to drop dangling containers and networks. It must run
// only after a successful apply of the regenerated document.
func (g *Generator) Prune(ctx context.Context, records []workspace.Record) error {
	live := make(map[string]bool, len(records))
	for _, record := range records {
		live[record.ID] = true
	}

	entries, err := os.ReadDir(g.cfg.WorkspacesDir())
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrap(errors.ErrInternal, "failed to list workspace directories", err)
	}
	for _, entry := range entries {
		if live[entry.Name()] {
			continue
		}
		logger.Infof("Removing outdated workspace %q", entry.Name())
		if err := os.RemoveAll(filepath.Join(g.cfg.WorkspacesDir(), entry.Name())); err != nil {
			return errors.Wrap(errors.ErrInternal, "failed to remove workspace directory", err)
		}
	}

	if g.pruner != nil {
		logger.Info("Pruning containers")
		if err := g.pruner.PruneContainers(ctx); err != nil {
			logger.WithError(err).Warn("Container prune failed")
		}
		logger.Info("Pruning networks")
		if err := g.pruner.PruneNetworks(ctx); err != nil {
			logger.WithError(err).Warn("Network prune failed")
		}
	}

	return nil
}

func writeFile(path string, content []byte, mode os.FileMode) error {
	if err := os.WriteFile(path, content, mode); err != nil {
		return errors.Wrap(errors.ErrInternal, "failed to write "+filepath.Base(path), err)
	}
	// WriteFile does not change the mode of an existing file.
	if err := os.Chmod(path, mode); err != nil {
		return errors.Wrap(errors.ErrInternal, "failed to chmod "+filepath.Base(path), err)
	}
	return nil
}
