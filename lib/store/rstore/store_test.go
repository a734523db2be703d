package rstore

import (
	"context"
	"github.com/ValentinKolb/dSess/lib/store"
	"github.com/ValentinKolb/dSess/lib/store/storetest"
	"github.com/redis/go-redis/v9"
	"testing"
	"time"
)

func TestRedisStore(t *testing.T) {
	// Skip if Redis is not available
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	client.Close()

	storetest.RunStoreTests(t, func(t *testing.T) store.IStore {
		s, err := NewRedisStore(Config{Addr: "localhost:6379", KeyPrefix: "test:dsess:"})
		if err != nil {
			t.Fatalf("NewRedisStore failed: %v", err)
		}
		return s
	})
}

func TestTTLArg(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want time.Duration
	}{
		{0, 0},
		{-time.Second, 0},
		{time.Microsecond, time.Millisecond},
		{1500 * time.Millisecond, 1500 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := ttlArg(tt.in); got != tt.want {
			t.Errorf("ttlArg(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
