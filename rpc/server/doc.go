// Package server implements the shard server behind "dsess serve".
//
// A server hosts any number of shards. Each shard is either a store or a lock
// manager, and is backed by one of three stores:
//
//   - lstore: in-memory store of this process, for single node setups and tests.
//   - dstore: raft replicated store (dragonboat). Needs the RAFT parameters of
//     ServerConfig. All dstore shards of a process share one NodeHost.
//   - rstore: redis. All rstore shards share one client, keys are prefixed with
//     RedisPrefix and the shard id.
//
// Example:
//
//	config := common.ServerConfig{
//		Shards: []common.ServerShard{
//			{ShardID: 100, Type: common.ShardTypeRaftStore},
//			{ShardID: 200, Type: common.ShardTypeRaftLockManager},
//		},
//		Endpoint:      "0.0.0.0:8080",
//		TimeoutSecond: 5,
//		LogLevel:      "info",
//		...
//	}
//	s := server.NewRPCServer(config, http.NewHttpServerTransport(), serializer.NewJSONSerializer())
//	if err := s.Serve(); err != nil {
//		log.Fatalf("Server error: %v", err)
//	}
package server
