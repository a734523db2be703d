package lockmgr

import (
	"bytes"
	"github.com/ValentinKolb/dSess/lib/store"
	"github.com/lni/dragonboat/v4/logger"
	"time"
)

var log = logger.GetLogger("ownership")

type lockMgrImpl struct {
	store store.IStore
}

func NewLockManager(store store.IStore) ILockManager {
	return &lockMgrImpl{
		store: store,
	}
}

func (lp *lockMgrImpl) AcquireLock(key string, owner []byte, lease time.Duration) (bool, []byte, error) {
	// Try to acquire the lock (by setting the value only if it doesn't exist - atomic CAS operation)
	if err := lp.store.SetEIfUnset(key, owner, lease); err != nil {
		log.Warningf("failed to set lock %s: %v", key, err)
		return false, nil, err
	}

	// Check who holds the lock now
	holder, found, err := lp.store.Get(key)
	if err != nil {
		return false, nil, err
	}
	if !found {
		// expired between the two calls, the caller simply retries
		return false, nil, nil
	}

	// Re-acquiring keeps the original lease. Without compare-and-set a refresh could
	// overwrite a holder that took over after the lease ran out.
	return bytes.Equal(holder, owner), holder, nil
}

func (lp *lockMgrImpl) ReleaseLock(key string, owner []byte) (bool, error) {
	// Check if the lock exists
	value, ok, err := lp.store.Get(key)
	if err != nil || !ok {
		return err == nil, err
	}

	// Check if the lock is owned by us
	if !bytes.Equal(owner, value) {
		return false, nil
	}

	// Release the lock
	err = lp.store.Delete(key)
	return err == nil, err
}
