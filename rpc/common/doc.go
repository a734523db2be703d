// Package common holds what the rpc server, client and transports share:
//
//   - Message and MessageType, the request/response protocol for IStore and
//     ILockManager operations.
//   - ServerConfig and ClientConfig, including the conversion to dragonboat's
//     raft configuration for dstore shards.
//   - The logger factory installed into dragonboat's logger registry. Every
//     package of dSess logs through it.
package common
