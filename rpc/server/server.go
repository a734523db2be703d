package server

import (
	"fmt"
	"github.com/ValentinKolb/dSess/lib/db"
	"github.com/ValentinKolb/dSess/lib/db/engines/maple"
	"github.com/ValentinKolb/dSess/lib/lockmgr"
	"github.com/ValentinKolb/dSess/lib/store"
	"github.com/ValentinKolb/dSess/lib/store/dstore"
	"github.com/ValentinKolb/dSess/lib/store/lstore"
	"github.com/ValentinKolb/dSess/lib/store/rstore"
	"github.com/ValentinKolb/dSess/rpc/common"
	"github.com/ValentinKolb/dSess/rpc/serializer"
	"github.com/ValentinKolb/dSess/rpc/transport"
	"github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/redis/go-redis/v9"
	"os/signal"
	"runtime"
	"syscall"
)

var Logger = logger.GetLogger("rpc")

// NewRPCServer creates a server for the shards in config.
//
// Usage:
//
//	s := server.NewRPCServer(
//		config,
//		http.NewHttpServerTransport(),
//		serializer.NewJSONSerializer(),
//	)
//	if err := s.Serve(); err != nil {
//		panic(err)
//	}
func NewRPCServer(
	config common.ServerConfig,
	transport transport.IRPCServerTransport,
	serializer serializer.IRPCSerializer,
) *RPCServer {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	return &RPCServer{
		config:     config,
		transport:  transport,
		serializer: serializer,
		shards:     xsync.NewMapOf[uint64, IRPCServerAdapter](),
	}
}

type RPCServer struct {
	config     common.ServerConfig
	transport  transport.IRPCServerTransport
	serializer serializer.IRPCSerializer
	shards     *xsync.MapOf[uint64, IRPCServerAdapter]

	nodeHost *dragonboat.NodeHost
	redis    *redis.Client
}

// Handle decodes a request for shardId, lets the shard answer it and encodes the response.
func (s *RPCServer) Handle(shardId uint64, req []byte) []byte {
	resp := s.handle(shardId, req)
	val, err := s.serializer.Serialize(*resp)
	if err != nil {
		Logger.Errorf("failed to serialize response: %v", err)
		val, _ = s.serializer.Serialize(*common.NewErrorResponse(fmt.Sprintf("failed to serialize response: %s", err)))
	}
	return val
}

func (s *RPCServer) handle(shardId uint64, req []byte) *common.Message {
	shard, ok := s.shards.Load(shardId)
	if !ok {
		return common.NewErrorResponse(fmt.Sprintf("shard %d not found", shardId))
	}
	var msg common.Message
	if err := s.serializer.Deserialize(req, &msg); err != nil {
		return common.NewErrorResponse(fmt.Sprintf("failed to deserialize request: %s", err))
	}
	return shard.Handle(&msg)
}

// backend returns the store of type t for shardId, starting the shared NodeHost or
// redis client on first use
func (s *RPCServer) backend(t common.ServerShardType, shardId uint64) (store.IStore, error) {
	dbFactory := func() db.KVDB { return maple.NewMapleDB(nil) }

	switch t {
	case common.ShardTypeLocalStore:
		return lstore.NewLocalStore(dbFactory), nil

	case common.ShardTypeRaftStore:
		if s.nodeHost == nil {
			nh, err := dragonboat.NewNodeHost(s.config.ToNodeHostConfig())
			if err != nil {
				return nil, fmt.Errorf("failed to create node host: %w", err)
			}
			s.nodeHost = nh
		}
		if err := s.nodeHost.StartConcurrentReplica(s.config.ClusterMembers, false, dstore.CreateStateMaschineFactory(dbFactory), s.config.ToDragonboatConfig(shardId)); err != nil {
			return nil, fmt.Errorf("failed to start shard %d: %w", shardId, err)
		}
		return dstore.NewDistributedStore(s.nodeHost, shardId, s.config.Timeout()), nil

	case common.ShardTypeRedisStore:
		if s.redis == nil {
			s.redis = redis.NewClient(&redis.Options{Addr: s.config.RedisAddr})
		}
		return rstore.NewRedisStore(rstore.Config{
			Client:    s.redis,
			KeyPrefix: fmt.Sprintf("%s%d/", s.config.RedisPrefix, shardId),
			Timeout:   s.config.Timeout(),
		})

	default:
		return nil, fmt.Errorf("invalid shard type: %s", t)
	}
}

// Init creates every configured shard. A single server can mix any number of store
// and lock manager shards over all backends.
func (s *RPCServer) Init() error {
	for _, shardConfig := range s.config.Shards {
		kv, err := s.backend(shardConfig.Type.Backend(), shardConfig.ShardID)
		if err != nil {
			return err
		}

		var adapter IRPCServerAdapter
		if shardConfig.Type.IsLockManager() {
			adapter = NewLockManagerServerAdapter(lockmgr.NewLockManager(kv))
		} else {
			adapter = NewIStoreServerAdapter(kv)
		}
		s.shards.Store(shardConfig.ShardID, adapter)
		Logger.Infof("created %s for shard %d", shardConfig.Type, shardConfig.ShardID)
	}

	s.transport.RegisterHandler(s.Handle)
	Logger.Infof("dSess shard server setup completed successfully")
	return nil
}

// Serve initializes the loggers and shards and blocks in the transport.
func (s *RPCServer) Serve() error {
	if err := common.InitLoggers(s.config.LogLevel); err != nil {
		return err
	}
	Logger.Infof(s.config.String())
	if err := s.Init(); err != nil {
		return err
	}
	return s.transport.Listen(s.config)
}

// Close stops the raft replicas and the redis connection.
func (s *RPCServer) Close() error {
	if s.nodeHost != nil {
		s.nodeHost.Close()
	}
	if s.redis != nil {
		return s.redis.Close()
	}
	return nil
}
