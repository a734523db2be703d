// Package rstore implements store.IStore on top of redis using go-redis.
//
// It is meant for deployments that already run a redis instance and want the session
// payloads and ownership locks shared between nodes without running a RAFT shard.
// Ttls map directly onto redis expirations, SetEIfUnset maps onto SET NX.
//
// Usage:
//
//	s, err := rstore.NewRedisStore(rstore.Config{Addr: "localhost:6379", KeyPrefix: "dsess:"})
//	if err != nil { ... }
//	err = s.SetE("sess/abc/meta", payload, time.Hour)
package rstore
