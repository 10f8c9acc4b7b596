// Package workspace defines the persisted workspace record and its read
// view.
package workspace

import (
	"encoding/json"
	"time"
)

// ProjectGit describes the clone target of a project.
type ProjectGit struct {
	URL       string `json:"url"`
	Branch    string `json:"branch,omitempty"`
	NewBranch string `json:"newBranch,omitempty"`
	Depth     int    `json:"depth,omitempty"`
}

// ProjectScripts holds in-container lifecycle scripts for a project.
type ProjectScripts struct {
	Initialize string `json:"initialize,omitempty"`
}

// ProjectSSH holds per-project SSH config directives appended to the user's
// local SSH config entry.
type ProjectSSH struct {
	Configs []string `json:"configs,omitempty"`
}

// Project is one clone target inside a workspace.
type Project struct {
	Name    string         `json:"name"`
	Git     ProjectGit     `json:"git"`
	Scripts ProjectScripts `json:"scripts,omitempty"`
	SSH     ProjectSSH     `json:"ssh,omitempty"`
}

// Service is an auxiliary container joined to the workspace network under a
// DNS alias equal to its name. Fields other than name and image pass through
// to the generated compose service unchanged.
type Service struct {
	Name  string
	Image string
	Extra map[string]interface{}
}

// MarshalJSON flattens the passthrough fields alongside name and image.
func (s Service) MarshalJSON() ([]byte, error) {
	m := make(map[string]interface{}, len(s.Extra)+2)
	for key, value := range s.Extra {
		m[key] = value
	}
	m["name"] = s.Name
	m["image"] = s.Image
	return json.Marshal(m)
}

// UnmarshalJSON captures unknown fields into Extra.
func (s *Service) UnmarshalJSON(data []byte) error {
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}

	if name, ok := m["name"].(string); ok {
		s.Name = name
	}
	if image, ok := m["image"].(string); ok {
		s.Image = image
	}
	delete(m, "name")
	delete(m, "image")

	if len(m) > 0 {
		s.Extra = m
	} else {
		s.Extra = nil
	}
	return nil
}

// ComposeFields returns the compose service entry fields for this service,
// passthrough fields included, without the name key.
func (s Service) ComposeFields() map[string]interface{} {
	m := make(map[string]interface{}, len(s.Extra)+1)
	for key, value := range s.Extra {
		m[key] = value
	}
	m["image"] = s.Image
	return m
}

// Record is the persisted unit of desired workspace state.
type Record struct {
	ID          string     `json:"id"`
	DisplayName string     `json:"displayName"`
	Owner       string     `json:"owner,omitempty"`
	Image       string     `json:"image,omitempty"`
	Port        int        `json:"port"`
	Projects    []Project  `json:"projects"`
	Services    []Service  `json:"services,omitempty"`
	Active      bool       `json:"active"`
	IdleSince   *time.Time `json:"idleSince,omitempty"`
}

// Options carries the caller-controlled portion of a record for create and
// full-replace update operations.
type Options struct {
	DisplayName string    `json:"displayName"`
	Owner       string    `json:"owner,omitempty"`
	Image       string    `json:"image,omitempty"`
	Projects    []Project `json:"projects"`
	Services    []Service `json:"services,omitempty"`
}
