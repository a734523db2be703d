// Package lstore implements a local, in-memory, single-node key-value store based on the
// store.IStore interface. It is a thin wrapper around any db.KVDB implementation
// that stamps every operation with the current time.
//
// Implementation Details:
//
//   - Time: The store reads its clock (time.Now by default) once per operation
//     and passes the millisecond timestamp to the database. Ttls are converted to
//     milliseconds with store.TTLMillis.
//
//   - Feature Detection: Before executing operations, the store checks if the underlying
//     db.KVDB implementation supports the requested feature. Unsupported operations
//     return store.RetCUnsupportedOperation.
//
// Thread Safety:
//
//	All operations are as thread-safe as the underlying db.KVDB, which for maple
//	means fully safe for concurrent use.
//
// Usage Example:
//
//	factory := func() db.KVDB { return maple.NewMapleDB(nil) }
//	s := lstore.NewLocalStore(factory)
//
//	err := s.SetE("sess/123/meta", data, 30*time.Minute)
//	value, exists, err := s.Get("sess/123/meta")
package lstore
