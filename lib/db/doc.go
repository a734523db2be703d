// Package db provides the interface for the key-value database engines that
// back every dSess store shard.
//
// Key Components:
//
//   - KVDB Interface: The core interface that all database implementations must satisfy.
//     It provides basic operations (Set, Get, Has, Delete), ttl-based writes
//     (SetE), the conditional write used for locking (SetEIfUnset), and
//     persistence (Save, Load).
//
//   - Feature Flags: The Feature type defines capability flags that implementations
//     advertise through SupportsFeature, so stores can reject unsupported
//     operations with store.RetCUnsupportedOperation.
//
// Note on Time:
//   - Every operation takes the caller's time as unix milliseconds. Implementations
//     must not consult the system clock to decide whether an entry is live.
//     The local store passes the wall clock, the raft store passes the timestamp
//     recorded by the proposer, so every replica reaches the same decision.
//   - A write carrying a timestamp older than the stored entry must be ignored.
//   - Get and Has must never report an entry whose ttl has elapsed, even if the
//     entry is still physically present pending garbage collection.
//
// Related Packages:
//
// The engines/maple package provides the sharded in-memory implementation.
// The testing package provides RunKVDBTests, the conformance suite every
// implementation is expected to pass.
package db
