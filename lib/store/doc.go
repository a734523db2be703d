// Package store provides the key-value interface every dSess storage backend
// implements. The session engine, the lock manager and the rpc server only
// ever talk to an IStore, so a deployment can swap between a single process,
// a raft cluster and a Redis server without code changes.
//
// Key Components:
//
//   - IStore Interface: Set, SetE (ttl), SetEIfUnset (conditional write used
//     for locks), Delete, Get and Has. Ttls are time.Duration values and are
//     enforced by the backend.
//
//   - Error System: Error carries a RetCode so callers can distinguish
//     unsupported operations from internal failures.
//
//   - DBFactory: Injects the db.KVDB engine used by the local and raft stores.
//
// Implementations:
//
//   - lstore: in-process store on top of a db.KVDB, using the wall clock.
//   - dstore: raft-replicated store built on Dragonboat.
//   - rstore: store backed by a Redis server (go-redis).
//
// The rpc/client package adds a fourth implementation that forwards every call
// to a remote dsess server shard.
package store
