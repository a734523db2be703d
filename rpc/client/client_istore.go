package client

import (
	"github.com/ValentinKolb/dSess/lib/store"
	"github.com/ValentinKolb/dSess/rpc/common"
	"github.com/ValentinKolb/dSess/rpc/serializer"
	"github.com/ValentinKolb/dSess/rpc/transport"
	"time"
)

// NewRPCStore connects transport and returns a store.IStore for the shard.
func NewRPCStore(
	shardId uint64,
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) (store.IStore, error) {
	a, err := connect(shardId, config, transport, serializer)
	if err != nil {
		return nil, err
	}
	return &rpcStore{a}, nil
}

type rpcStore struct {
	rpcClientAdapter
}

// --------------------------------------------------------------------------
// Interface Methods (docs see store/interface.go)
// --------------------------------------------------------------------------

func (i *rpcStore) Set(key string, value []byte) error {
	_, err := i.invoke(common.NewSetRequest(key, value))
	return err
}

func (i *rpcStore) SetE(key string, value []byte, ttl time.Duration) error {
	_, err := i.invoke(common.NewSetERequest(key, value, ttl))
	return err
}

func (i *rpcStore) SetEIfUnset(key string, value []byte, ttl time.Duration) error {
	_, err := i.invoke(common.NewSetEIfUnsetRequest(key, value, ttl))
	return err
}

func (i *rpcStore) Delete(key string) error {
	_, err := i.invoke(common.NewDeleteRequest(key))
	return err
}

func (i *rpcStore) Get(key string) ([]byte, bool, error) {
	resp, err := i.invoke(common.NewGetRequest(key))
	if err != nil {
		return nil, false, err
	}
	return resp.Value, resp.Ok, nil
}

func (i *rpcStore) Has(key string) (bool, error) {
	resp, err := i.invoke(common.NewHasRequest(key))
	if err != nil {
		return false, err
	}
	return resp.Ok, nil
}
