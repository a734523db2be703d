// Package lockmgr implements leased locks on top of any store.IStore.
//
// The lock manager keeps no state of its own, every lock is a single key in the
// store whose value is the id of the holder. It is therefore safe to create many
// lock managers on the same store.
//
// Lock Acquisition:
//
//	AcquireLock writes the owner id with SetEIfUnset and reads the key back. If the
//	stored id equals the owner, the lock is held. The lease is never renewed, a lock
//	that must outlive it has to be released and acquired again. Otherwise the current holder is returned so the caller can decide whether to wait.
//
// Leases:
//
//	Every lock carries a lease. A node that crashes while holding a lock blocks the
//	key only until the lease runs out.
//
// Release:
//
//	ReleaseLock compares the stored id with the owner before deleting the key, a lock
//	held by someone else is never removed.
//
// With dstore as backend the locks are linearizable across the cluster. With lstore
// they only coordinate goroutines of one process.
//
// Usage Example:
//
//	mgr := lockmgr.NewLockManager(s)
//	owner, _ := lockmgr.NewOwnerID()
//
//	ok, holder, err := mgr.AcquireLock("lock/abc", owner, 10*time.Second)
//	if err != nil { ... }
//	if ok {
//	    defer mgr.ReleaseLock("lock/abc", owner)
//	}
package lockmgr
