package lockmgr

import "time"

// ILockManager defines the interface for a lock provider.
type ILockManager interface {
	// AcquireLock tries to acquire the lock for key on behalf of owner.
	// The lock is released automatically after lease. Acquiring it again as the same owner
	// succeeds but does not extend the lease. A zero lease means the lock never expires.
	// Returns whether owner now holds the lock and the owner id of the current holder.
	AcquireLock(key string, owner []byte, lease time.Duration) (ok bool, holder []byte, err error)

	// ReleaseLock releases the lock for the given key if it is held by owner.
	// Return a boolean indicating whether the lock was released, and an error if any.
	// The method will also return true if the lock did not exist.
	ReleaseLock(key string, owner []byte) (ok bool, err error)
}
