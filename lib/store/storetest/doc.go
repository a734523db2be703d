// Package storetest contains a reusable test suite for store.IStore implementations.
//
//	func TestLocalStore(t *testing.T) {
//	    storetest.RunStoreTests(t, func(t *testing.T) store.IStore {
//	        return lstore.NewLocalStore(func() db.KVDB { return maple.NewMapleDB(nil) })
//	    })
//	}
package storetest
