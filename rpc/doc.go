// Package rpc connects dsess nodes to the shared session and lock storage.
//
// Subpackages:
//
//   - common: message protocol, server and client configuration, logging setup.
//   - serializer: json and gob encodings of messages.
//   - transport: transport interfaces, implemented over HTTP in transport/http.
//   - server: the shard server run by "dsess serve" (lstore, dstore and rstore
//     backends, each as a store or a lock manager).
//   - client: store.IStore and lockmgr.ILockManager backed by a shard server.
package rpc
