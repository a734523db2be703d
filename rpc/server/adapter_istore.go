package server

import (
	"fmt"
	"github.com/ValentinKolb/dSess/lib/store"
	"github.com/ValentinKolb/dSess/rpc/common"
)

// NewIStoreServerAdapter serves the store operations of s.
func NewIStoreServerAdapter(s store.IStore) IRPCServerAdapter {
	return &iStoreServerAdapterImpl{store: s}
}

type iStoreServerAdapterImpl struct {
	store store.IStore
}

func (a *iStoreServerAdapterImpl) Handle(req *common.Message) *common.Message {
	if a.store == nil {
		return common.NewErrorResponse("handler: store is nil")
	}

	switch req.MsgType {
	case common.MsgTKVSet:
		return common.NewResponse(req.MsgType, a.store.Set(req.Key, req.Value))
	case common.MsgTKVSetE:
		return common.NewResponse(req.MsgType, a.store.SetE(req.Key, req.Value, req.TTLDuration()))
	case common.MsgTKVSetEIfUnset:
		return common.NewResponse(req.MsgType, a.store.SetEIfUnset(req.Key, req.Value, req.TTLDuration()))
	case common.MsgTKVDelete:
		return common.NewResponse(req.MsgType, a.store.Delete(req.Key))
	case common.MsgTKVGet:
		val, ok, err := a.store.Get(req.Key)
		return common.NewValueResponse(req.MsgType, val, ok, err)
	case common.MsgTKVHas:
		ok, err := a.store.Has(req.Key)
		return common.NewOkResponse(req.MsgType, ok, err)
	default:
		return common.NewErrorResponse(fmt.Sprintf("RPC IStoreAdapter - Unsupported message type: %s", req.MsgType))
	}
}
