package ownership

import (
	"context"
	"errors"
	"fmt"
	"github.com/ValentinKolb/dSess/lib/session"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
	"time"
)

var log = logger.GetLogger("ownership")

// ErrOwnershipFailed is returned when ownership could not be acquired after the retry.
var ErrOwnershipFailed = errors.New("failed to acquire session ownership")

var (
	acquiredLocalTotal   = metrics.GetOrCreateCounter(`dsess_ownership_acquire_total{result="local"}`)
	acquiredClusterTotal = metrics.GetOrCreateCounter(`dsess_ownership_acquire_total{result="cluster"}`)
	timeoutTotal         = metrics.GetOrCreateCounter(`dsess_ownership_acquire_total{result="timeout"}`)
	acquireDuration      = metrics.GetOrCreateHistogram(`dsess_ownership_acquire_duration_seconds`)
)

// Coordinator makes sure only one node mutates a session at a time.
type Coordinator struct {
	locks   LockSupport
	store   session.Store
	timeout time.Duration
}

// NewCoordinator creates a coordinator. A nil locks disables distributed ownership,
// every acquisition then succeeds locally without waiting.
func NewCoordinator(locks LockSupport, store session.Store, timeout time.Duration) *Coordinator {
	return &Coordinator{
		locks:   locks,
		store:   store,
		timeout: timeout,
	}
}

// Distributed reports whether a lock subsystem is configured.
func (c *Coordinator) Distributed() bool {
	return c.locks != nil
}

// Acquire takes the lock for the record. If another node held the session last, the
// latest snapshot is fetched from the store and applied to rec before returning. If the
// session is no longer in the store the lock is released and session.ErrExpiredSession
// is returned. A timeout is returned as *session.OwnershipTimeoutError.
func (c *Coordinator) Acquire(ctx context.Context, rec *session.Record) (LockResult, error) {
	if c.locks == nil {
		return AcquiredLocal, nil
	}

	start := time.Now()
	res, err := c.locks.TryAcquire(ctx, rec.RealID(), c.timeout)
	acquireDuration.UpdateDuration(start)
	if err != nil {
		return res, err
	}

	switch res {
	case Timeout:
		timeoutTotal.Inc()
		return Timeout, &session.OwnershipTimeoutError{RealID: rec.RealID(), Timeout: c.timeout}
	case AcquiredFromCluster:
		acquiredClusterTotal.Inc()
		p, err := c.store.Get(rec.RealID())
		if err != nil {
			_ = c.locks.Release(rec.RealID(), false)
			return res, fmt.Errorf("fetch session %s after handoff: %w", rec.RealID(), err)
		}
		if p == nil || !p.Metadata.IsValid {
			// removed or timed out on another node, the local copy is stale
			_ = c.locks.Release(rec.RealID(), false)
			return res, fmt.Errorf("session %s was removed by another node: %w", rec.RealID(), session.ErrExpiredSession)
		}
		rec.Update(p)
		log.Debugf("acquired session %s from cluster (version=%d)", rec.RealID(), rec.Version())
	default:
		acquiredLocalTotal.Inc()
	}
	return res, nil
}

// AcquireWithRetry calls Acquire and retries exactly once after a timeout, the other
// node may just be expiring the session. A second timeout is wrapped in ErrOwnershipFailed.
func (c *Coordinator) AcquireWithRetry(ctx context.Context, rec *session.Record) (LockResult, error) {
	res, err := c.Acquire(ctx, rec)

	var te *session.OwnershipTimeoutError
	if !errors.As(err, &te) || !te.Retryable() {
		return res, err
	}

	log.Infof("timed out acquiring session %s, retrying once", rec.RealID())
	res, err = c.Acquire(ctx, rec)
	if errors.As(err, &te) {
		return res, fmt.Errorf("%w: %w", ErrOwnershipFailed, err)
	}
	return res, err
}

// Release gives up ownership of the session.
func (c *Coordinator) Release(realID string, removing bool) error {
	if c.locks == nil {
		return nil
	}
	if err := c.locks.Release(realID, removing); err != nil {
		log.Warningf("failed to release session %s: %v", realID, err)
		return err
	}
	return nil
}

// WithOwnership runs fn while holding ownership of rec. The ownership is released on
// every exit path of fn, including panics.
func (c *Coordinator) WithOwnership(ctx context.Context, rec *session.Record, removing bool, fn func(LockResult) error) error {
	res, err := c.AcquireWithRetry(ctx, rec)
	if err != nil {
		return err
	}
	defer c.Release(rec.RealID(), removing)
	return fn(res)
}
