package workspace

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mufancom/remote-workspace/internal/config"
)

// Workspace is a read view over one record. Derived fields are recomputed on
// every call, never cached.
type Workspace struct {
	record Record
	config *config.Config
}

// New wraps a record with its deployment configuration.
func New(record Record, cfg *config.Config) *Workspace {
	return &Workspace{record: record, config: cfg}
}

// Record returns a copy of the underlying record.
func (w *Workspace) Record() Record {
	return w.record
}

// ID returns the immutable workspace id.
func (w *Workspace) ID() string {
	return w.record.ID
}

// DisplayName returns the human label.
func (w *Workspace) DisplayName() string {
	return w.record.DisplayName
}

// Port returns the SSH-mapped host port.
func (w *Workspace) Port() int {
	return w.record.Port
}

// Active reports whether containers for this record should be running.
func (w *Workspace) Active() bool {
	return w.record.Active
}

// IdleSince returns the idle-window start, or nil when a connection was seen
// on the last probe.
func (w *Workspace) IdleSince() *time.Time {
	return w.record.IdleSince
}

// DeactivatesAt derives the idle expiry from the stored idle-window start.
// It returns nil unless the workspace is active and idle.
func (w *Workspace) DeactivatesAt() *time.Time {
	if !w.record.Active || w.record.IdleSince == nil {
		return nil
	}
	at := w.record.IdleSince.Add(time.Duration(w.config.DeactivateAfter))
	return &at
}

// Image returns the effective container image, record override first.
func (w *Workspace) Image() string {
	if w.record.Image != "" {
		return w.record.Image
	}
	return w.config.Image
}

// Services returns the auxiliary service list, defaulted to empty.
func (w *Workspace) Services() []Service {
	if w.record.Services == nil {
		return []Service{}
	}
	return w.record.Services
}

// Projects returns the project list.
func (w *Workspace) Projects() []Project {
	return w.record.Projects
}

// Volume returns the name of the workspace's private volume.
func (w *Workspace) Volume() string {
	return fmt.Sprintf("workspace-%s", w.record.ID)
}

// NetworkName returns the name of the workspace's private network.
func (w *Workspace) NetworkName() string {
	return fmt.Sprintf("%s-network", w.record.ID)
}

// hashView is the portion of the record covered by the content hash. Runtime
// activation state is excluded so idle bookkeeping does not force container
// recreation.
type hashView struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"displayName"`
	Owner       string    `json:"owner,omitempty"`
	Image       string    `json:"image,omitempty"`
	Projects    []Project `json:"projects"`
	Services    []Service `json:"services,omitempty"`
}

// Hash returns a deterministic content digest of the record configuration,
// used as a container label to force recreation on configuration drift.
func (w *Workspace) Hash() string {
	view := hashView{
		ID:          w.record.ID,
		DisplayName: w.record.DisplayName,
		Owner:       w.record.Owner,
		Image:       w.record.Image,
		Projects:    w.record.Projects,
		Services:    w.record.Services,
	}

	// encoding/json sorts map keys, so passthrough service fields serialize
	// deterministically.
	data, err := json.Marshal(view)
	if err != nil {
		// A record that round-tripped through the store always marshals.
		panic(fmt.Sprintf("workspace: failed to hash record %s: %v", w.record.ID, err))
	}

	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
