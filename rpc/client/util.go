package client

import (
	"fmt"
	"github.com/ValentinKolb/dSess/lib/store"
	"github.com/ValentinKolb/dSess/rpc/common"
	"github.com/ValentinKolb/dSess/rpc/serializer"
	"github.com/ValentinKolb/dSess/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
)

var (
	Logger = logger.GetLogger("rpc")
)

// rpcClientAdapter holds what the rpc store and lock manager share
type rpcClientAdapter struct {
	shardId    uint64
	transport  transport.IRPCClientTransport
	serializer serializer.IRPCSerializer
}

// invoke sends req and returns the response. Error responses and responses of the
// wrong type are returned as *store.Error.
func (a *rpcClientAdapter) invoke(req *common.Message) (*common.Message, error) {
	reqBytes, err := a.serializer.Serialize(*req)
	if err != nil {
		return nil, err
	}

	respBytes, err := a.transport.Send(a.shardId, reqBytes)
	if err != nil {
		return nil, store.NewError(store.RetCInternalError, fmt.Sprintf("rpc %s: %v", req.MsgType, err))
	}

	resp := &common.Message{}
	if err := a.serializer.Deserialize(respBytes, resp); err != nil {
		return nil, store.NewError(store.RetCInternalError, fmt.Sprintf("rpc %s: %v", req.MsgType, err))
	}

	if resp.MsgType == common.MsgTError || resp.Err != "" {
		return nil, store.NewError(store.RetCInternalError, fmt.Sprintf("rpc %s: %s", req.MsgType, resp.Err))
	}
	if resp.MsgType != req.MsgType {
		return nil, store.NewError(store.RetCInternalError, fmt.Sprintf("rpc %s: unexpected response type %s", req.MsgType, resp.MsgType))
	}
	return resp, nil
}

func connect(shardId uint64, config common.ClientConfig, t transport.IRPCClientTransport, s serializer.IRPCSerializer) (rpcClientAdapter, error) {
	if err := t.Connect(config); err != nil {
		return rpcClientAdapter{}, err
	}
	return rpcClientAdapter{shardId: shardId, transport: t, serializer: s}, nil
}
