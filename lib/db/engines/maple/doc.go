// Package maple implements an in-memory key-value database (KVDB) with
// time-based entry management. It provides a complete implementation of the
// db.KVDB interface and is the storage engine behind every dSess store shard.
//
// Key Components:
//
//   - mapleImpl: The central database structure implementing db.KVDB. It manages
//     shards, runs the garbage collector and provides the public API. The database
//     never reads the system clock for its decisions. Every operation carries the
//     caller's time (unix milliseconds), which keeps a raft-replicated instance
//     deterministic: all replicas apply the same command with the same timestamp.
//
//   - Shard: A partition of the key space backed by an xsync.MapOf. Keys are
//     assigned to shards with a seeded FNV-1a hash whose upper bits select the shard.
//
//   - Entry: The stored value together with its deletion time and the time of
//     the write that produced it.
//
// Internal Mechanisms:
//
//   - Stale Write Prevention: A write is only applied if its timestamp is greater
//     than or equal to the timestamp of the stored entry. Delete leaves a tombstone
//     so that delayed writes cannot resurrect a removed key.
//
//   - TTL: SetE and SetEIfUnset accept a ttl in milliseconds. Entries past their
//     deletion time are invisible to Get and Has immediately. The garbage
//     collector removes them physically on its next sweep.
//
//   - Conditional Writes: SetEIfUnset only writes if no live entry exists, which is
//     the primitive used by the lock manager.
//
//   - Persistence Format:
//     1. Magic number "MAPLEDB\x00"
//     2. Version number (currently 4)
//     3. Database clock at save time
//     4. Number of entries
//     5. For each entry: key length, key, deletion time, write time, value length, value
//     The snapshot is fuzzy, concurrent writes during Save may or may not be included.
//
// Usage Example:
//
//	database := maple.NewMapleDB(nil)
//	defer database.Close()
//
//	now := util.NowMillis(time.Now())
//	database.SetE("sess/abc/meta", payload, now, 30_000)
//	value, ok := database.Get("sess/abc/meta", now)
package maple
