package server

import (
	"github.com/ValentinKolb/dSess/rpc/common"
)

// IRPCServerAdapter answers requests for one shard. Errors are reported in the
// response message, never returned.
type IRPCServerAdapter interface {
	Handle(req *common.Message) (resp *common.Message)
}
