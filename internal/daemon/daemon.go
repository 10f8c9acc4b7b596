// Package daemon reconciles desired workspace state against the container
// engine: it owns the record store mutations, the serialized reconciliation
// queue and the idle sweep.
package daemon

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mufancom/remote-workspace/internal/artifact"
	"github.com/mufancom/remote-workspace/internal/config"
	"github.com/mufancom/remote-workspace/internal/container"
	"github.com/mufancom/remote-workspace/internal/errors"
	"github.com/mufancom/remote-workspace/internal/githosting"
	"github.com/mufancom/remote-workspace/internal/logger"
	"github.com/mufancom/remote-workspace/internal/ports"
	"github.com/mufancom/remote-workspace/internal/store"
	"github.com/mufancom/remote-workspace/internal/workspace"
)

// Daemon composes the record store, the artifact generator, the docker
// client and the idle sweep behind the public workspace operations.
type Daemon struct {
	cfg     *config.Config
	store   *store.Store
	docker  *container.Client
	files   *artifact.Generator
	hosting *githosting.Registry

	queue   *Queue
	sweeper *Sweeper

	// cycleCtx governs reconciliation cycle bodies. Cycles run on behalf of
	// an already-committed store mutation, so they must outlive the request
	// context that triggered them.
	cycleCtx context.Context

	now func() time.Time
}

// New wires a daemon from its collaborators. hosting may be nil to disable
// pull request lookup.
func New(cfg *config.Config, st *store.Store, docker *container.Client, hosting *githosting.Registry) *Daemon {
	d := &Daemon{
		cfg:     cfg,
		store:   st,
		docker:  docker,
		files:   artifact.NewGenerator(cfg, docker),
		hosting: hosting,
		queue:   NewQueue(),

		cycleCtx: context.Background(),

		now: time.Now,
	}
	d.sweeper = NewSweeper(d, time.Duration(cfg.SweepInterval), time.Duration(cfg.DeactivateAfter))
	return d
}

// Start triggers the initial reconciliation and launches the idle sweep.
func (d *Daemon) Start(ctx context.Context) {
	if err := d.TriggerReconcile(ctx); err != nil {
		logger.WithError(err).Error("Initial reconciliation failed")
	}
	d.sweeper.Start(ctx)
}

// Stop halts the idle sweep. In-flight reconciliation cycles run to
// completion.
func (d *Daemon) Stop() {
	d.sweeper.Stop()
}

// TriggerReconcile enqueues one full generate-apply-prune cycle and waits
// for it. ctx bounds the wait for a queue slot only; once started, the
// cycle runs under the daemon's own context so a disconnecting caller
// cannot interrupt an apply in progress.
func (d *Daemon) TriggerReconcile(ctx context.Context) error {
	return d.queue.Enqueue(ctx, "reconciliation cycle", func(context.Context) error {
		return d.reconcile(d.cycleCtx)
	})
}

// reconcile regenerates artifacts from the full record set, applies the
// compose document and prunes stale resources, strictly in that order.
func (d *Daemon) reconcile(ctx context.Context) error {
	records := d.store.List()
	logger.Debugf("Reconciling %d workspace record(s)", len(records))

	if err := d.files.Update(records); err != nil {
		return err
	}
	if err := d.docker.ComposeUp(ctx); err != nil {
		return err
	}
	return d.files.Prune(ctx, records)
}

// Create assigns an id and a unique SSH port, persists the record active,
// and triggers reconciliation.
func (d *Daemon) Create(ctx context.Context, opts workspace.Options) (string, error) {
	if err := workspace.ValidateOptions(opts); err != nil {
		return "", err
	}

	inUse := make(map[int]bool)
	for _, record := range d.store.List() {
		inUse[record.Port] = true
	}
	port, err := ports.Allocate(inUse)
	if err != nil {
		return "", err
	}

	record := workspace.Record{
		ID:          uuid.NewString(),
		DisplayName: opts.DisplayName,
		Owner:       opts.Owner,
		Image:       opts.Image,
		Port:        port,
		Projects:    opts.Projects,
		Services:    opts.Services,
		Active:      true,
	}
	if err := d.store.Push(record); err != nil {
		return "", err
	}

	d.reconcileAfterMutation()
	return record.ID, nil
}

// Update replaces the caller-controlled fields of a record. Id, port and
// activation state are preserved.
func (d *Daemon) Update(ctx context.Context, id string, opts workspace.Options) error {
	if err := workspace.ValidateOptions(opts); err != nil {
		return err
	}

	found, err := d.store.Update(id, func(record *workspace.Record) {
		record.DisplayName = opts.DisplayName
		record.Owner = opts.Owner
		record.Image = opts.Image
		record.Projects = opts.Projects
		record.Services = opts.Services
	})
	if err != nil {
		return err
	}
	if !found {
		return errors.New(errors.ErrNotFound, "workspace %q not found", id)
	}

	d.reconcileAfterMutation()
	return nil
}

// Activate marks a workspace active with a fresh idle window and triggers
// reconciliation.
func (d *Daemon) Activate(ctx context.Context, id string) error {
	now := d.now()
	found, err := d.store.Update(id, func(record *workspace.Record) {
		record.Active = true
		record.IdleSince = &now
	})
	if err != nil {
		return err
	}
	if !found {
		return errors.New(errors.ErrNotFound, "workspace %q not found", id)
	}

	d.reconcileAfterMutation()
	return nil
}

// Deactivate marks a workspace inactive. It is rejected when the liveness
// probe reports a live SSH connection, so an in-use session is never torn
// down. A probe failure is treated as inconclusive and the explicit request
// wins.
func (d *Daemon) Deactivate(ctx context.Context, id string) error {
	if _, ok := d.store.Get(id); !ok {
		return errors.New(errors.ErrNotFound, "workspace %q not found", id)
	}

	connections, err := d.establishedConnections(ctx, id)
	if err != nil {
		logger.WithError(err).WithField("workspace", id).
			Warn("Liveness probe failed, deactivating anyway")
	} else if connections > 0 {
		return errors.New(errors.ErrWorkspaceInUse,
			"workspace %q has %d active SSH connection(s)", id, connections)
	}

	if _, err := d.store.Update(id, func(record *workspace.Record) {
		record.Active = false
		record.IdleSince = nil
	}); err != nil {
		return err
	}

	d.reconcileAfterMutation()
	return nil
}

// Delete removes a record; the following reconciliation cycle prunes its
// artifacts and containers.
func (d *Daemon) Delete(ctx context.Context, id string) error {
	removed, err := d.store.PullWhere(func(record workspace.Record) bool {
		return record.ID == id
	})
	if err != nil {
		return err
	}
	if len(removed) == 0 {
		return errors.New(errors.ErrNotFound, "workspace %q not found", id)
	}

	d.reconcileAfterMutation()
	return nil
}

// Log returns the captured container log of a workspace.
func (d *Daemon) Log(ctx context.Context, id string) (string, error) {
	containerID, err := d.runningContainer(ctx, id)
	if err != nil {
		return "", err
	}

	output, err := d.docker.Logs(ctx, containerID)
	if err != nil {
		return "", err
	}
	return string(output), nil
}

// FollowLog streams the container log of a workspace until the reader is
// closed.
func (d *Daemon) FollowLog(ctx context.Context, id string) (io.ReadCloser, error) {
	containerID, err := d.runningContainer(ctx, id)
	if err != nil {
		return nil, err
	}
	return d.docker.FollowLogs(ctx, containerID)
}

// runningContainer resolves the primary container id of a workspace.
func (d *Daemon) runningContainer(ctx context.Context, id string) (string, error) {
	if _, ok := d.store.Get(id); !ok {
		return "", errors.New(errors.ErrNotFound, "workspace %q not found", id)
	}

	containerID, err := d.docker.ContainerID(ctx, id)
	if err != nil {
		return "", err
	}
	if containerID == "" {
		return "", errors.New(errors.ErrNotFound, "workspace %q has no running container", id)
	}
	return containerID, nil
}

// establishedConnections counts established SSH sessions inside the
// workspace container.
func (d *Daemon) establishedConnections(ctx context.Context, id string) (int, error) {
	containerID, err := d.docker.ContainerID(ctx, id)
	if err != nil {
		return 0, err
	}
	if containerID == "" {
		return 0, errors.New(errors.ErrNotFound, "workspace %q has no running container", id)
	}

	output, err := d.docker.Exec(ctx, containerID,
		"ss", "-H", "-t", "state", "established", "(", "sport", "=", ":22", ")")
	if err != nil {
		return 0, err
	}

	count := 0
	for _, line := range strings.Split(string(output), "\n") {
		if strings.TrimSpace(line) != "" {
			count++
		}
	}
	return count, nil
}

// reconcileAfterMutation runs a reconciliation cycle without failing the
// originating API operation: the store mutation already succeeded, so the
// cycle runs under the daemon context regardless of the caller's fate. A
// failed cycle is retried on the next trigger.
func (d *Daemon) reconcileAfterMutation() {
	if err := d.TriggerReconcile(d.cycleCtx); err != nil {
		logger.WithError(err).Error("Reconciliation failed")
	}
}
