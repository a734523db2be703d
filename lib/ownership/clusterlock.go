package ownership

import (
	"context"
	"github.com/ValentinKolb/dSess/lib/lockmgr"
	"github.com/ValentinKolb/dSess/lib/store"
	"sync"
	"time"
)

const (
	lockPrefix  = "lock/"
	ownerPrefix = "owner/"

	// removedMarker replaces the owner of a removed session. Routes never contain NUL.
	removedMarker = "\x00removed"
)

// ClusterLockOptions configure a ClusterLock.
type ClusterLockOptions struct {
	// Lease is how long a lock survives a crashed holder. Default 30s.
	Lease time.Duration
	// PollInterval is the pause between two lock attempts. Default 10ms.
	PollInterval time.Duration
	// OwnerTTL limits how long the last owner of a session, or its removal, is
	// remembered. 0 = forever.
	OwnerTTL time.Duration
}

// hold is this node's share of one cluster lock.
type hold struct {
	mu   sync.Mutex // guards held, serializes cluster round trips
	refs int        // guarded by ClusterLock.mu
	held bool
}

// ClusterLock implements LockSupport with a lockmgr.ILockManager.
//
// The lock of a session is the key lock/<realId>. The key owner/<realId> stores the
// route of the node that held the lock last, if it differs from this node the
// acquisition is reported as AcquiredFromCluster. A removed session leaves a marker in
// the owner key, so every other node holding a copy reloads it, finds nothing and drops it.
// Concurrent requests for the same session on this node share one cluster lock.
type ClusterLock struct {
	locks lockmgr.ILockManager
	kv    store.IStore
	route string
	owner []byte
	opts  ClusterLockOptions

	mu    sync.Mutex
	holds map[string]*hold
}

// NewClusterLock creates the lock support of the node with the given route.
// locks and kv are usually backed by the same store.
func NewClusterLock(locks lockmgr.ILockManager, kv store.IStore, route string, opts *ClusterLockOptions) (*ClusterLock, error) {
	owner, err := lockmgr.NewOwnerID()
	if err != nil {
		return nil, err
	}
	o := ClusterLockOptions{}
	if opts != nil {
		o = *opts
	}
	if o.Lease <= 0 {
		o.Lease = 30 * time.Second
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 10 * time.Millisecond
	}
	return &ClusterLock{
		locks: locks,
		kv:    kv,
		route: route,
		owner: owner,
		opts:  o,
		holds: make(map[string]*hold),
	}, nil
}

func lockKey(realID string) string  { return lockPrefix + realID }
func ownerKey(realID string) string { return ownerPrefix + realID }

// ref returns the hold of realID and registers the caller
func (c *ClusterLock) ref(realID string) *hold {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.holds[realID]
	if !ok {
		h = &hold{}
		c.holds[realID] = h
	}
	h.refs++
	return h
}

// unref removes the caller from the hold and reports whether it was the last one
func (c *ClusterLock) unref(realID string, h *hold) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if h.refs > 0 {
		h.refs--
	}
	return h.refs == 0
}

// forget drops an unused hold from the table
func (c *ClusterLock) forget(realID string, h *hold) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if h.refs == 0 && c.holds[realID] == h {
		delete(c.holds, realID)
	}
}

func (c *ClusterLock) TryAcquire(ctx context.Context, realID string, timeout time.Duration) (LockResult, error) {
	h := c.ref(realID)

	h.mu.Lock()
	res, err := c.acquire(ctx, realID, h, timeout)
	h.mu.Unlock()

	if err != nil || res == Timeout {
		_ = c.Release(realID, false)
	}
	return res, err
}

// acquire expects h.mu to be held
func (c *ClusterLock) acquire(ctx context.Context, realID string, h *hold, timeout time.Duration) (LockResult, error) {
	if h.held {
		// another request on this node holds the lock, the local state is current
		return AcquiredLocal, nil
	}

	deadline := time.Now().Add(timeout)
	for {
		ok, _, err := c.locks.AcquireLock(lockKey(realID), c.owner, c.opts.Lease)
		if err != nil {
			return Timeout, err
		}
		if ok {
			break
		}
		if !time.Now().Before(deadline) {
			return Timeout, nil
		}
		select {
		case <-ctx.Done():
			return Timeout, ctx.Err()
		case <-time.After(c.opts.PollInterval):
		}
	}
	h.held = true

	prev, found, err := c.kv.Get(ownerKey(realID))
	if err != nil {
		return AcquiredLocal, err
	}
	if found && string(prev) == c.route {
		return AcquiredLocal, nil
	}
	if found && string(prev) == removedMarker {
		log.Debugf("session %s was removed by another node", realID)
		return AcquiredFromCluster, nil
	}
	if err := c.kv.SetE(ownerKey(realID), []byte(c.route), c.opts.OwnerTTL); err != nil {
		return AcquiredLocal, err
	}
	if found {
		log.Debugf("session %s moved from %s to %s", realID, prev, c.route)
		return AcquiredFromCluster, nil
	}
	return AcquiredLocal, nil
}

func (c *ClusterLock) Release(realID string, removing bool) error {
	c.mu.Lock()
	h, ok := c.holds[realID]
	c.mu.Unlock()
	if !ok {
		return nil
	}

	var firstErr error
	if removing {
		if err := c.kv.SetE(ownerKey(realID), []byte(removedMarker), c.opts.OwnerTTL); err != nil {
			firstErr = err
		}
	}

	if !c.unref(realID, h) {
		return firstErr
	}

	h.mu.Lock()
	c.mu.Lock()
	joined := h.refs > 0
	c.mu.Unlock()
	if h.held && !joined {
		if _, err := c.locks.ReleaseLock(lockKey(realID), c.owner); err != nil && firstErr == nil {
			firstErr = err
		}
		h.held = false
	}
	h.mu.Unlock()

	c.forget(realID, h)
	return firstErr
}

// Held returns the number of sessions this node currently holds a cluster lock for.
func (c *ClusterLock) Held() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.holds)
}
