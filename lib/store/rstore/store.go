package rstore

import (
	"context"
	"errors"
	"fmt"
	"github.com/ValentinKolb/dSess/lib/store"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/redis/go-redis/v9"
	"time"
)

var log = logger.GetLogger("store")

// Config for the redis backed store.
type Config struct {
	// Client is used as is when set. Addr is ignored in that case.
	Client *redis.Client
	// Addr like "localhost:6379"
	Addr string
	// KeyPrefix is prepended to every key
	KeyPrefix string
	// Timeout for a single redis round trip
	Timeout time.Duration
}

type storeImpl struct {
	client  *redis.Client
	prefix  string
	timeout time.Duration
}

// NewRedisStore creates a store.IStore that keeps all entries in redis.
// The connection is verified with a PING before the store is returned.
func NewRedisStore(cfg Config) (store.IStore, error) {
	cl := cfg.Client
	if cl == nil {
		addr := cfg.Addr
		if addr == "" {
			addr = "localhost:6379"
		}
		cl = redis.NewClient(&redis.Options{Addr: addr})
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := cl.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	log.Infof("connected to redis at %s", cl.Options().Addr)

	return &storeImpl{
		client:  cl,
		prefix:  cfg.KeyPrefix,
		timeout: timeout,
	}, nil
}

func (s *storeImpl) key(k string) string {
	return s.prefix + k
}

// wrap converts redis errors into *store.Error
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return store.NewError(store.RetCInternalError, fmt.Sprintf("redis %s: %v", op, err))
}

// --------------------------------------------------------------------------
// Interface Methods (docs see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Set(key string, value []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	return wrap("set", s.client.Set(ctx, s.key(key), value, 0).Err())
}

func (s *storeImpl) SetE(key string, value []byte, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	return wrap("set", s.client.Set(ctx, s.key(key), value, ttlArg(ttl)).Err())
}

func (s *storeImpl) SetEIfUnset(key string, value []byte, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	return wrap("setnx", s.client.SetNX(ctx, s.key(key), value, ttlArg(ttl)).Err())
}

func (s *storeImpl) Delete(key string) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	return wrap("del", s.client.Del(ctx, s.key(key)).Err())
}

func (s *storeImpl) Get(key string) ([]byte, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	val, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, wrap("get", err)
	}
	return val, true, nil
}

func (s *storeImpl) Has(key string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	n, err := s.client.Exists(ctx, s.key(key)).Result()
	if err != nil {
		return false, wrap("exists", err)
	}
	return n > 0, nil
}

// ttlArg maps a store ttl to the expiration argument of redis.
// Redis rounds sub-millisecond expirations down to zero (no expiry), so they are raised to 1ms.
func ttlArg(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 0
	}
	return time.Duration(store.TTLMillis(ttl)) * time.Millisecond
}
