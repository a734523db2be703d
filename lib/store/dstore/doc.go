// Package dstore implements the store.IStore interface on top of a Dragonboat RAFT
// shard. Every replica of the shard runs a KVStateMachine that owns a db.KVDB instance,
// so session payloads, ownership markers and locks written through this store survive
// the loss of any minority of nodes.
//
// Write Operations:
//
//	Set, SetE, SetEIfUnset and Delete are serialized into an internal.Command and
//	proposed with SyncPropose. The command carries the proposer's wall clock, which
//	the state machine passes to the database so ttl decisions are identical on every
//	replica regardless of when the entry is applied.
//
// Read Operations:
//
//	Get and Has use SyncRead (linearizable reads). The query carries the reader's
//	clock so expired entries are hidden even if the garbage collector has not swept
//	them yet.
//
// Retries:
//
//	When Dragonboat returns ErrSystemBusy the operation is retried up to five times
//	with a short pause. Other errors are wrapped in a *store.Error.
//
// Snapshots:
//
//	SaveSnapshot and RecoverFromSnapshot delegate to the database's Save and Load
//	methods. Snapshots are fuzzy, writes are not paused while they are taken.
//
// Usage:
//
//	nh, err := dragonboat.NewNodeHost(nodeHostConfig)
//	if err != nil { ... }
//
//	dbFactory := func() db.KVDB { return maple.NewMapleDB(nil) }
//	err = nh.StartConcurrentReplica(members, false, dstore.CreateStateMaschineFactory(dbFactory), shardConfig)
//	if err != nil { ... }
//
//	s := dstore.NewDistributedStore(nh, shardID, 5*time.Second)
//
// For a single node without consensus use the lstore package, for a shared redis
// backend use rstore.
package dstore
