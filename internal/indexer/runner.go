package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/edgard/chatmirror/internal/database"
	"github.com/edgard/chatmirror/internal/lock"
	"github.com/edgard/chatmirror/internal/logger"
	"github.com/edgard/chatmirror/internal/source"
)

// GroupStore is the part of database.Store the runner needs.
type GroupStore interface {
	MessageStore
	UpsertGroup(ctx context.Context, entity source.Entity) (*database.Group, error)
}

// Target is one configured source to mirror.
type Target struct {
	Name   string
	Dialog source.Dialog
}

// RunnerConfig tunes a Runner.
type RunnerConfig struct {
	// Concurrency caps how many targets sync at once; <= 0 means unlimited.
	Concurrency int
	// LockTTL is how long a group lease lives before another crawler may
	// take it over.
	LockTTL time.Duration
}

// Runner syncs every target, one goroutine per target.
type Runner struct {
	store   GroupStore
	locker  lock.Locker
	targets []Target
	cfg     RunnerConfig
	logger  *slog.Logger
}

// NewRunner creates a Runner. A nil locker falls back to an in-process one.
func NewRunner(store GroupStore, locker lock.Locker, targets []Target, cfg RunnerConfig, log *slog.Logger) *Runner {
	if log == nil {
		log = logger.Discard()
	}
	if locker == nil {
		locker = lock.NewLocalLocker()
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = time.Hour
	}
	return &Runner{
		store:   store,
		locker:  locker,
		targets: targets,
		cfg:     cfg,
		logger:  log.With("component", "sync_runner"),
	}
}

// RunOnce syncs every target to exhaustion. A failing target does not stop
// the others; all failures are returned joined.
func (r *Runner) RunOnce(ctx context.Context) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	if r.cfg.Concurrency > 0 {
		g.SetLimit(r.cfg.Concurrency)
	}
	for _, t := range r.targets {
		g.Go(func() error {
			if err := r.syncTarget(ctx, t); err != nil {
				r.logger.ErrorContext(ctx, "Sync failed", "target", t.Name, "error", err)
				mu.Lock()
				errs = append(errs, fmt.Errorf("target %s: %w", t.Name, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// RunTarget syncs the single target called name.
func (r *Runner) RunTarget(ctx context.Context, name string) error {
	for _, t := range r.targets {
		if t.Name == name {
			return r.syncTarget(ctx, t)
		}
	}
	return fmt.Errorf("unknown sync target %q", name)
}

func (r *Runner) syncTarget(ctx context.Context, t Target) error {
	entity, err := t.Dialog.Entity(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve entity: %w", err)
	}
	groupID := entity.Peer.GroupID()
	log := r.logger.With("target", t.Name, "group_id", groupID)

	lease, ok, err := r.locker.TryAcquire(ctx, "group:"+strconv.FormatInt(groupID, 10), r.cfg.LockTTL)
	if err != nil {
		return err
	}
	if !ok {
		log.InfoContext(ctx, "Group is being synced elsewhere, skipping")
		return nil
	}
	stopRefresh := keepAlive(ctx, lease, r.cfg.LockTTL, log)
	defer func() {
		stopRefresh()
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			log.WarnContext(ctx, "Failed to release group lock", "error", err)
		}
	}()

	group, err := r.store.UpsertGroup(ctx, entity)
	if err != nil {
		return err
	}

	start := time.Now()
	syncer := NewSynchronizer(r.store, t.Dialog, r.logger)
	err = syncer.Run(ctx, entity, group, func() {
		log.InfoContext(ctx, "Caught up with live tail")
	})
	if err != nil {
		return err
	}
	log.InfoContext(ctx, "Sync finished", "duration", time.Since(start))
	return nil
}

// keepAlive refreshes lease every third of ttl until the returned stop is
// called. Losing the lease only stops the refreshing.
func keepAlive(ctx context.Context, lease lock.Lease, ttl time.Duration, log *slog.Logger) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(max(ttl/3, time.Millisecond))
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			if err := lease.Refresh(ctx, ttl); err != nil {
				if ctx.Err() != nil {
					return
				}
				if errors.Is(err, lock.ErrNotHeld) {
					log.WarnContext(ctx, "Group lock was lost, another crawler may take over")
					return
				}
				log.WarnContext(ctx, "Failed to refresh group lock", "error", err)
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}
