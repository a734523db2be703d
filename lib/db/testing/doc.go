// Package testing provides a standardised conformance suite for database
// implementations that satisfy the db.KVDB interface.
//
// The suite covers reads and writes, ttl handling, conditional writes, stale
// write rejection, snapshots and concurrent SetEIfUnset calls. All tests pass
// explicit timestamps, so they never depend on the wall clock.
//
// Example usage:
//
//	factory := func() db.KVDB {
//		return NewMyDatabase()
//	}
//
//	dbtesting.RunKVDBTests(t, "MyDatabase", factory)
package testing
