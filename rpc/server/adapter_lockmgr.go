package server

import (
	"fmt"
	"github.com/ValentinKolb/dSess/lib/lockmgr"
	"github.com/ValentinKolb/dSess/rpc/common"
)

// NewLockManagerServerAdapter serves the lock operations of locks.
func NewLockManagerServerAdapter(locks lockmgr.ILockManager) IRPCServerAdapter {
	return &lockMgrServerAdapter{locks: locks}
}

type lockMgrServerAdapter struct {
	locks lockmgr.ILockManager
}

func (a *lockMgrServerAdapter) Handle(req *common.Message) *common.Message {
	if a.locks == nil {
		return common.NewErrorResponse("handler: lock manager is nil")
	}

	switch req.MsgType {
	case common.MsgTLCKAcquire:
		if len(req.Owner) == 0 {
			return common.NewResponse(req.MsgType, fmt.Errorf("acquire %s: owner is empty", req.Key))
		}
		ok, holder, err := a.locks.AcquireLock(req.Key, req.Owner, req.TTLDuration())
		return common.NewValueResponse(req.MsgType, holder, ok, err)
	case common.MsgTLCKRelease:
		ok, err := a.locks.ReleaseLock(req.Key, req.Owner)
		return common.NewOkResponse(req.MsgType, ok, err)
	default:
		return common.NewErrorResponse(fmt.Sprintf("RPC LockManagerAdapter - Unsupported message type: %s", req.MsgType))
	}
}
