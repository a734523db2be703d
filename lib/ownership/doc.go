// Package ownership guarantees that at most one node mutates a session at a time.
//
// The Coordinator wraps a LockSupport. Acquire reports whether the lock was taken
// without contention (AcquiredLocal), after another node held the session
// (AcquiredFromCluster, the latest snapshot is then applied to the local record) or
// not at all (a retryable *session.OwnershipTimeoutError). AcquireWithRetry retries
// once and turns the second timeout into ErrOwnershipFailed.
//
// ClusterLock is the LockSupport used in clustered mode. It keeps one leased lock per
// session in a store through lockmgr and remembers the route of the last holder, so
// a node can tell whether its local copy may be stale.
//
// Usage:
//
//	lock, _ := ownership.NewClusterLock(lockmgr.NewLockManager(kv), kv, "nodeA", nil)
//	coord := ownership.NewCoordinator(lock, sessionstore.New(kv), 5*time.Second)
//
//	err := coord.WithOwnership(ctx, rec, false, func(res ownership.LockResult) error {
//	    return rec.Set("cart", items)
//	})
package ownership
