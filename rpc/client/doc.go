// Package client implements store.IStore and lockmgr.ILockManager on top of the
// rpc transport, so a dsess node can use the shards of a remote "dsess serve".
//
//	config := common.ClientConfig{
//		Endpoints:     []string{"localhost:8080"},
//		TimeoutSecond: 5,
//		RetryCount:    3,
//	}
//	kv, err := client.NewRPCStore(100, config, http.NewHttpClientTransport(), serializer.NewJSONSerializer())
//	locks, err := client.NewRPCLockMgr(200, config, http.NewHttpClientTransport(), serializer.NewJSONSerializer())
//
// Every client needs its own transport. Clients are safe for concurrent use.
package client
