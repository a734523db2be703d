package client

import (
	"github.com/ValentinKolb/dSess/lib/lockmgr"
	"github.com/ValentinKolb/dSess/rpc/common"
	"github.com/ValentinKolb/dSess/rpc/serializer"
	"github.com/ValentinKolb/dSess/rpc/transport"
	"time"
)

// NewRPCLockMgr connects transport and returns a lockmgr.ILockManager for the shard.
func NewRPCLockMgr(
	shardId uint64,
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) (lockmgr.ILockManager, error) {
	a, err := connect(shardId, config, transport, serializer)
	if err != nil {
		return nil, err
	}
	return &rpcLockMgr{a}, nil
}

type rpcLockMgr struct {
	rpcClientAdapter
}

// --------------------------------------------------------------------------
// Interface Methods (docs see lockmgr/interface.go)
// --------------------------------------------------------------------------

func (i *rpcLockMgr) AcquireLock(key string, owner []byte, lease time.Duration) (bool, []byte, error) {
	resp, err := i.invoke(common.NewAcquireRequest(key, owner, lease))
	if err != nil {
		return false, nil, err
	}
	return resp.Ok, resp.Owner, nil
}

func (i *rpcLockMgr) ReleaseLock(key string, owner []byte) (bool, error) {
	resp, err := i.invoke(common.NewReleaseRequest(key, owner))
	if err != nil {
		return false, err
	}
	return resp.Ok, nil
}
