package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/jmoiron/sqlx"
)

// ErrBackendUnavailable is returned once every connection attempt has failed
// with a transient unavailability error.
var ErrBackendUnavailable = errors.New("database backend unavailable")

// Options tunes connection acquisition and deadlock retry.
type Options struct {
	// AcquireAttempts bounds how often a transaction start is attempted while
	// the backend is unavailable.
	AcquireAttempts int
	// AcquireDelay is the fixed pause between acquisition attempts.
	AcquireDelay time.Duration
	// DeadlockMinDelay and DeadlockMaxDelay bound the random pause before a
	// transaction that hit a deadlock is replayed.
	DeadlockMinDelay time.Duration
	DeadlockMaxDelay time.Duration
}

// DefaultOptions returns the stock retry policy: five acquisition attempts one
// second apart, deadlock replays after 0.1s-5s.
func DefaultOptions() Options {
	return Options{
		AcquireAttempts:  5,
		AcquireDelay:     time.Second,
		DeadlockMinDelay: 100 * time.Millisecond,
		DeadlockMaxDelay: 5 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.AcquireAttempts <= 0 {
		o.AcquireAttempts = def.AcquireAttempts
	}
	if o.AcquireDelay < 0 {
		o.AcquireDelay = def.AcquireDelay
	}
	if o.DeadlockMinDelay <= 0 {
		o.DeadlockMinDelay = def.DeadlockMinDelay
	}
	if o.DeadlockMaxDelay < o.DeadlockMinDelay {
		o.DeadlockMaxDelay = o.DeadlockMinDelay
	}
	return o
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// beginTx starts a transaction, retrying a bounded number of times while the
// backend reports itself unavailable.
func (s *sqlxStore) beginTx(ctx context.Context) (*sqlx.Tx, error) {
	var lastErr error
	for attempt := 1; attempt <= s.opts.AcquireAttempts; attempt++ {
		tx, err := s.db.BeginTxx(ctx, nil)
		if err == nil {
			return tx, nil
		}
		if !s.dialect.isUnavailable(err) {
			return nil, fmt.Errorf("failed to begin transaction: %w", err)
		}
		lastErr = err
		if attempt == s.opts.AcquireAttempts {
			break
		}
		s.logger.ErrorContext(ctx, "Database unavailable, will retry",
			"attempt", attempt, "max_attempts", s.opts.AcquireAttempts, "delay", s.opts.AcquireDelay, "error", err)
		if err := s.sleep(ctx, s.opts.AcquireDelay); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w after %d attempts: %w", ErrBackendUnavailable, s.opts.AcquireAttempts, lastErr)
}

// withTx runs fn inside a transaction that commits when fn returns nil and
// rolls back otherwise.
func (s *sqlxStore) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.beginTx(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if tx != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
				s.logger.WarnContext(ctx, "Error rolling back transaction", "error", rollbackErr)
			}
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	tx = nil
	return nil
}

// withRetryTx is withTx replayed from scratch whenever the transaction is
// chosen as a deadlock victim. Deadlocks are always treated as transient, so
// the loop only ends on success, another error or context cancellation.
func (s *sqlxStore) withRetryTx(ctx context.Context, op string, fn func(tx *sqlx.Tx) error) error {
	for {
		err := s.withTx(ctx, fn)
		if err == nil || !s.dialect.isWriteConflict(err) {
			return err
		}
		delay := s.deadlockDelay()
		s.logger.WarnContext(ctx, "Deadlock detected, retrying transaction", "op", op, "delay", delay)
		if err := s.sleep(ctx, delay); err != nil {
			return err
		}
	}
}

func (s *sqlxStore) deadlockDelay() time.Duration {
	span := s.opts.DeadlockMaxDelay - s.opts.DeadlockMinDelay
	if span <= 0 {
		return s.opts.DeadlockMinDelay
	}
	return s.opts.DeadlockMinDelay + rand.N(span+1)
}
