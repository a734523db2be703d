package lstore

import (
	"github.com/ValentinKolb/dSess/lib/db"
	"github.com/ValentinKolb/dSess/lib/db/util"
	"github.com/ValentinKolb/dSess/lib/store"
	"time"
)

type storeImpl struct {
	db    db.KVDB
	clock func() time.Time
}

// NewLocalStore creates a new local store instance.
// This store implementation is not distributed and only works on a single node.
// The wall clock is used as the write time of every operation.
func NewLocalStore(factory store.DBFactory) store.IStore {
	return NewLocalStoreWithClock(factory, time.Now)
}

// NewLocalStoreWithClock creates a local store that reads the time from clock.
// This is mainly useful for tests that need to control ttl expiry.
func NewLocalStoreWithClock(factory store.DBFactory, clock func() time.Time) store.IStore {
	return &storeImpl{
		db:    factory(),
		clock: clock,
	}
}

// now returns the current time in the millisecond format expected by the db.
func (s *storeImpl) now() uint64 {
	return util.NowMillis(s.clock())
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Set(key string, value []byte) error {
	if !s.db.SupportsFeature(db.FeatureSet) {
		return store.NewError(store.RetCUnsupportedOperation, "Set operation is not supported")
	}
	s.db.Set(key, value, s.now())
	return nil
}

func (s *storeImpl) SetE(key string, value []byte, ttl time.Duration) error {
	if !s.db.SupportsFeature(db.FeatureSetE) {
		return store.NewError(store.RetCUnsupportedOperation, "SetE operation is not supported")
	}
	s.db.SetE(key, value, s.now(), store.TTLMillis(ttl))
	return nil
}

func (s *storeImpl) SetEIfUnset(key string, value []byte, ttl time.Duration) error {
	if !s.db.SupportsFeature(db.FeatureSetEIfUnset) {
		return store.NewError(store.RetCUnsupportedOperation, "SetEIfUnset operation is not supported")
	}
	s.db.SetEIfUnset(key, value, s.now(), store.TTLMillis(ttl))
	return nil
}

func (s *storeImpl) Delete(key string) error {
	if !s.db.SupportsFeature(db.FeatureDelete) {
		return store.NewError(store.RetCUnsupportedOperation, "Delete operation is not supported")
	}
	s.db.Delete(key, s.now())
	return nil
}

func (s *storeImpl) Get(key string) ([]byte, bool, error) {
	if !s.db.SupportsFeature(db.FeatureGet) {
		return nil, false, store.NewError(store.RetCUnsupportedOperation, "Get operation is not supported")
	}
	val, ok := s.db.Get(key, s.now())
	return val, ok, nil
}

func (s *storeImpl) Has(key string) (bool, error) {
	if !s.db.SupportsFeature(db.FeatureHas) {
		return false, store.NewError(store.RetCUnsupportedOperation, "Has operation is not supported")
	}
	return s.db.Has(key, s.now()), nil
}
