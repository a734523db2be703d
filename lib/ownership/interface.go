package ownership

import (
	"context"
	"time"
)

// LockResult is the outcome of a lock attempt.
type LockResult uint8

const (
	AcquiredLocal       LockResult = iota // this node held the session last, local state is current
	AcquiredFromCluster                   // another node held the session last, local state may be stale
	Timeout                               // the lock could not be acquired in time
)

func (r LockResult) String() string {
	switch r {
	case AcquiredLocal:
		return "ACQUIRED_LOCAL"
	case AcquiredFromCluster:
		return "ACQUIRED_FROM_CLUSTER"
	case Timeout:
		return "TIMEOUT"
	default:
		return "Unknown"
	}
}

// LockSupport is the cluster wide lock subsystem used by the Coordinator.
type LockSupport interface {
	// TryAcquire waits up to timeout for the lock of realID.
	// A lock that could not be acquired in time is reported as Timeout with a nil error.
	TryAcquire(ctx context.Context, realID string, timeout time.Duration) (LockResult, error)

	// Release gives up the lock. If removing is true the session is gone and all
	// cluster side bookkeeping for it is discarded.
	Release(realID string, removing bool) error
}
