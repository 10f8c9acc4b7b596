package daemon

import (
	"context"
	"sync"
	"time"

	"github.com/mufancom/remote-workspace/internal/logger"
	"github.com/mufancom/remote-workspace/internal/workspace"
)

// Sweeper periodically probes active workspaces for live SSH connections and
// deactivates those whose idle window has elapsed. Sweeps are single-flight:
// a tick that fires while a sweep is still running queues behind it instead
// of overlapping.
type Sweeper struct {
	daemon   *Daemon
	interval time.Duration
	timeout  time.Duration

	queue    *Queue
	stop     chan struct{}
	stopOnce sync.Once
}

// NewSweeper creates an idle sweeper for the daemon.
func NewSweeper(d *Daemon, interval, timeout time.Duration) *Sweeper {
	return &Sweeper{
		daemon:   d,
		interval: interval,
		timeout:  timeout,
		queue:    NewQueue(),
		stop:     make(chan struct{}),
	}
}

// Start launches the sweep ticker.
func (s *Sweeper) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := s.SweepOnce(ctx); err != nil {
					logger.WithError(err).Error("Idle sweep failed")
				}
			case <-s.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts the ticker.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// SweepOnce runs a single sweep pass, serialized against concurrent passes.
func (s *Sweeper) SweepOnce(ctx context.Context) error {
	return s.queue.Enqueue(ctx, "idle sweep", s.sweep)
}

// sweep walks every active workspace and advances its idle state machine.
// A probe failure means the state of that workspace cannot be determined
// this cycle; it is never treated as evidence of idleness.
func (s *Sweeper) sweep(ctx context.Context) error {
	deactivated := false

	for _, record := range s.daemon.store.List() {
		if !record.Active {
			continue
		}

		connections, err := s.daemon.establishedConnections(ctx, record.ID)
		if err != nil {
			logger.WithError(err).WithField("workspace", record.ID).
				Warn("Liveness probe inconclusive, skipping workspace")
			continue
		}

		now := s.daemon.now()

		switch {
		case connections > 0:
			if record.IdleSince != nil {
				if _, err := s.daemon.store.Update(record.ID, func(r *workspace.Record) {
					r.IdleSince = nil
				}); err != nil {
					return err
				}
			}

		case record.IdleSince == nil:
			if _, err := s.daemon.store.Update(record.ID, func(r *workspace.Record) {
				r.IdleSince = &now
			}); err != nil {
				return err
			}

		case !now.Before(record.IdleSince.Add(s.timeout)):
			logger.WithField("workspace", record.ID).Info("Idle window elapsed, deactivating")
			if _, err := s.daemon.store.Update(record.ID, func(r *workspace.Record) {
				r.Active = false
				r.IdleSince = nil
			}); err != nil {
				return err
			}
			deactivated = true
		}
	}

	if deactivated {
		s.daemon.reconcileAfterMutation()
	}
	return nil
}
