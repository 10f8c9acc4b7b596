package daemon

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/mufancom/remote-workspace/internal/githosting"
	"github.com/mufancom/remote-workspace/internal/logger"
	"github.com/mufancom/remote-workspace/internal/workspace"
)

// ProjectStatus is a project entry enriched with open pull/merge requests
// for its branch.
type ProjectStatus struct {
	workspace.Project
	PullRequests []githosting.PullRequest `json:"pullRequests,omitempty"`
}

// Status is the externally visible state of one workspace.
type Status struct {
	ID            string              `json:"id"`
	DisplayName   string              `json:"displayName"`
	Owner         string              `json:"owner,omitempty"`
	Image         string              `json:"image"`
	Port          int                 `json:"port"`
	Active        bool                `json:"active"`
	Ready         bool                `json:"ready"`
	DeactivatesAt *time.Time          `json:"deactivatesAt,omitempty"`
	Projects      []ProjectStatus     `json:"projects"`
	Services      []workspace.Service `json:"services"`
}

// Statuses reports the state of every workspace. Container readiness, pull
// request lookup and in-place project config are all best-effort; their
// failures degrade the individual field rather than the call.
func (d *Daemon) Statuses(ctx context.Context) []Status {
	var statuses []Status

	for _, record := range d.store.List() {
		view := workspace.New(record, d.cfg)

		status := Status{
			ID:            view.ID(),
			DisplayName:   view.DisplayName(),
			Owner:         record.Owner,
			Image:         view.Image(),
			Port:          view.Port(),
			Active:        view.Active(),
			DeactivatesAt: view.DeactivatesAt(),
			Services:      view.Services(),
			Projects:      []ProjectStatus{},
		}

		if record.Active {
			containerID, err := d.docker.ContainerID(ctx, record.ID)
			status.Ready = err == nil && containerID != ""
		}

		for _, project := range view.Projects() {
			merged := d.mergeInPlaceConfig(record.ID, project)

			entry := ProjectStatus{Project: merged}
			if d.hosting != nil {
				requests, err := d.hosting.ListPullRequests(ctx, merged.Git.URL, merged.Git.Branch)
				if err != nil {
					logger.WithError(err).WithFields(logger.Fields{
						"workspace": record.ID,
						"project":   merged.Name,
					}).Debug("Pull request lookup failed")
				} else {
					entry.PullRequests = requests
				}
			}
			status.Projects = append(status.Projects, entry)
		}

		statuses = append(statuses, status)
	}

	if statuses == nil {
		statuses = []Status{}
	}
	return statuses
}

// inPlaceConfig is the optional per-project configuration written from
// inside the workspace and consumed back by the daemon.
type inPlaceConfig struct {
	Scripts *workspace.ProjectScripts `json:"scripts,omitempty"`
	SSH     *workspace.ProjectSSH     `json:"ssh,omitempty"`
}

// mergeInPlaceConfig overlays {workspace}/{project}/remote-workspace.json
// onto the stored project entry.
func (d *Daemon) mergeInPlaceConfig(id string, project workspace.Project) workspace.Project {
	path := filepath.Join(d.cfg.WorkspacesDir(), id, project.Name, "remote-workspace.json")

	data, err := os.ReadFile(path)
	if err != nil {
		return project
	}

	var overlay inPlaceConfig
	if err := json.Unmarshal(data, &overlay); err != nil {
		logger.WithError(err).WithFields(logger.Fields{
			"workspace": id,
			"project":   project.Name,
		}).Warn("Ignoring malformed in-place project config")
		return project
	}

	if overlay.Scripts != nil {
		if overlay.Scripts.Initialize != "" {
			project.Scripts.Initialize = overlay.Scripts.Initialize
		}
	}
	if overlay.SSH != nil && len(overlay.SSH.Configs) > 0 {
		project.SSH.Configs = append(project.SSH.Configs, overlay.SSH.Configs...)
	}
	return project
}
