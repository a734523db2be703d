package client

import (
	"bytes"
	"github.com/ValentinKolb/dSess/lib/lockmgr"
	"github.com/ValentinKolb/dSess/lib/store"
	"github.com/ValentinKolb/dSess/lib/store/storetest"
	"github.com/ValentinKolb/dSess/rpc/common"
	"github.com/ValentinKolb/dSess/rpc/serializer"
	"github.com/ValentinKolb/dSess/rpc/server"
	rpchttp "github.com/ValentinKolb/dSess/rpc/transport/http"
	"net/http/httptest"
	"testing"
	"time"
)

const (
	storeShard = 100
	lockShard  = 200
)

// startServer runs a shard server with a local store and a local lock manager
func startServer(t *testing.T, s serializer.IRPCSerializer) common.ClientConfig {
	t.Helper()
	srv := server.NewRPCServer(common.ServerConfig{
		Shards: []common.ServerShard{
			{ShardID: storeShard, Type: common.ShardTypeLocalStore},
			{ShardID: lockShard, Type: common.ShardTypeLocalLockManager},
		},
		TimeoutSecond: 5,
	}, rpchttp.NewHttpServerTransport(), s)
	if err := srv.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	ts := httptest.NewServer(rpchttp.NewHandler(srv.Handle, false))
	t.Cleanup(ts.Close)
	return common.ClientConfig{Endpoints: []string{ts.URL}, TimeoutSecond: 5, RetryCount: 2}
}

func TestRPCStore(t *testing.T) {
	for name, s := range map[string]serializer.IRPCSerializer{
		"json": serializer.NewJSONSerializer(),
		"gob":  serializer.NewGOBSerializer(),
	} {
		t.Run(name, func(t *testing.T) {
			config := startServer(t, s)
			storetest.RunStoreTests(t, func(t *testing.T) store.IStore {
				kv, err := NewRPCStore(storeShard, config, rpchttp.NewHttpClientTransport(), s)
				if err != nil {
					t.Fatalf("NewRPCStore failed: %v", err)
				}
				return kv
			})
		})
	}
}

func TestRPCLockMgr(t *testing.T) {
	s := serializer.NewJSONSerializer()
	config := startServer(t, s)

	locks, err := NewRPCLockMgr(lockShard, config, rpchttp.NewHttpClientTransport(), s)
	if err != nil {
		t.Fatalf("NewRPCLockMgr failed: %v", err)
	}
	ownerA, _ := lockmgr.NewOwnerID()
	ownerB, _ := lockmgr.NewOwnerID()

	if ok, _, err := locks.AcquireLock("lock/s1", ownerA, time.Minute); !ok || err != nil {
		t.Fatalf("AcquireLock by A = (%v, %v)", ok, err)
	}
	ok, holder, err := locks.AcquireLock("lock/s1", ownerB, time.Minute)
	if ok || err != nil {
		t.Fatalf("AcquireLock by B = (%v, %v), want (false, nil)", ok, err)
	}
	if !bytes.Equal(holder, ownerA) {
		t.Errorf("holder = %x, want %x", holder, ownerA)
	}
	if ok, err := locks.ReleaseLock("lock/s1", ownerB); ok || err != nil {
		t.Errorf("ReleaseLock by B = (%v, %v), want (false, nil)", ok, err)
	}
	if ok, err := locks.ReleaseLock("lock/s1", ownerA); !ok || err != nil {
		t.Errorf("ReleaseLock by A = (%v, %v), want (true, nil)", ok, err)
	}
	if ok, _, err := locks.AcquireLock("lock/s1", ownerB, time.Minute); !ok || err != nil {
		t.Errorf("AcquireLock by B after release = (%v, %v)", ok, err)
	}
}

func TestUnknownShard(t *testing.T) {
	s := serializer.NewJSONSerializer()
	config := startServer(t, s)

	kv, err := NewRPCStore(999, config, rpchttp.NewHttpClientTransport(), s)
	if err != nil {
		t.Fatalf("NewRPCStore failed: %v", err)
	}
	if err := kv.Set("k", []byte("v")); err == nil {
		t.Errorf("expected error for unknown shard")
	}
}

func TestWrongShardKind(t *testing.T) {
	s := serializer.NewJSONSerializer()
	config := startServer(t, s)

	// lock requests sent to the store shard
	locks, err := NewRPCLockMgr(storeShard, config, rpchttp.NewHttpClientTransport(), s)
	if err != nil {
		t.Fatalf("NewRPCLockMgr failed: %v", err)
	}
	owner, _ := lockmgr.NewOwnerID()
	if _, _, err := locks.AcquireLock("lock/x", owner, time.Second); err == nil {
		t.Errorf("expected error for lock request on a store shard")
	}
}

func TestUnreachableServer(t *testing.T) {
	config := common.ClientConfig{Endpoints: []string{"127.0.0.1:1"}, TimeoutSecond: 1, RetryCount: 2}
	kv, err := NewRPCStore(storeShard, config, rpchttp.NewHttpClientTransport(), serializer.NewJSONSerializer())
	if err != nil {
		t.Fatalf("NewRPCStore failed: %v", err)
	}
	if _, _, err := kv.Get("k"); err == nil {
		t.Errorf("expected error for unreachable server")
	}
}
