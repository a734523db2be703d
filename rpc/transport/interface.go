package transport

import (
	"github.com/ValentinKolb/dSess/rpc/common"
)

// ServerHandleFunc handles one serialized request addressed to a shard and
// returns the serialized response.
type ServerHandleFunc func(shardId uint64, req []byte) (resp []byte)

// IRPCServerTransport receives requests and routes them to the registered handler.
type IRPCServerTransport interface {
	RegisterHandler(handler ServerHandleFunc)
	// Listen blocks until the transport fails.
	Listen(config common.ServerConfig) error
}

// IRPCClientTransport sends requests to one of the configured servers.
type IRPCClientTransport interface {
	Connect(config common.ClientConfig) error
	Send(shardId uint64, req []byte) (resp []byte, err error)
	Close() error
}
