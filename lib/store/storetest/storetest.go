package storetest

import (
	"bytes"
	"github.com/ValentinKolb/dSess/lib/store"
	"github.com/google/uuid"
	"sync"
	"testing"
	"time"
)

// StoreFactory creates a fresh store for a test run
type StoreFactory func(t *testing.T) store.IStore

// RunStoreTests runs the behavioural tests every store.IStore implementation must pass.
// Keys are prefixed with a random id so stores backed by shared servers can be tested
// without cleanup between runs.
func RunStoreTests(t *testing.T, factory StoreFactory) {
	t.Run("Set&Get", func(t *testing.T) { testSetGet(t, factory(t)) })
	t.Run("Delete", func(t *testing.T) { testDelete(t, factory(t)) })
	t.Run("Has", func(t *testing.T) { testHas(t, factory(t)) })
	t.Run("SetEIfUnset", func(t *testing.T) { testSetEIfUnset(t, factory(t)) })
	t.Run("Expiry", func(t *testing.T) { testExpiry(t, factory(t)) })
	t.Run("Concurrent", func(t *testing.T) { testConcurrent(t, factory(t)) })
}

func prefix() string {
	return "storetest/" + uuid.NewString() + "/"
}

func testSetGet(t *testing.T, s store.IStore) {
	p := prefix()

	if err := s.Set(p+"a", []byte("1")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	val, ok, err := s.Get(p + "a")
	if err != nil || !ok || !bytes.Equal(val, []byte("1")) {
		t.Fatalf("Get = (%q, %v, %v), want (\"1\", true, nil)", val, ok, err)
	}

	if err := s.Set(p+"a", []byte("2")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	val, _, _ = s.Get(p + "a")
	if !bytes.Equal(val, []byte("2")) {
		t.Errorf("overwrite not visible, got %q", val)
	}

	if _, ok, err := s.Get(p + "missing"); ok || err != nil {
		t.Errorf("Get(missing) = (%v, %v), want (false, nil)", ok, err)
	}
}

func testDelete(t *testing.T, s store.IStore) {
	p := prefix()

	_ = s.Set(p+"a", []byte("1"))
	if err := s.Delete(p + "a"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, ok, _ := s.Get(p + "a"); ok {
		t.Errorf("key still present after Delete")
	}
	if err := s.Delete(p + "never-set"); err != nil {
		t.Errorf("Delete of a missing key returned %v", err)
	}
}

func testHas(t *testing.T, s store.IStore) {
	p := prefix()
	_ = s.Set(p+"present", []byte("x"))

	tests := []struct {
		name string
		key  string
		want bool
	}{
		{"present key", p + "present", true},
		{"missing key", p + "missing", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Has(tt.key)
			if err != nil {
				t.Fatalf("Has failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Has(%s) = %v, want %v", tt.key, got, tt.want)
			}
		})
	}
}

func testSetEIfUnset(t *testing.T, s store.IStore) {
	p := prefix()

	if err := s.SetEIfUnset(p+"lock", []byte("first"), time.Minute); err != nil {
		t.Fatalf("SetEIfUnset failed: %v", err)
	}
	if err := s.SetEIfUnset(p+"lock", []byte("second"), time.Minute); err != nil {
		t.Fatalf("SetEIfUnset on existing key returned %v", err)
	}
	val, _, _ := s.Get(p + "lock")
	if !bytes.Equal(val, []byte("first")) {
		t.Errorf("SetEIfUnset overwrote existing value, got %q", val)
	}
}

func testExpiry(t *testing.T, s store.IStore) {
	p := prefix()

	if err := s.SetE(p+"short", []byte("x"), 50*time.Millisecond); err != nil {
		t.Fatalf("SetE failed: %v", err)
	}
	_ = s.SetE(p+"long", []byte("y"), time.Minute)

	if ok, _ := s.Has(p + "short"); !ok {
		t.Fatalf("entry expired too early")
	}

	time.Sleep(150 * time.Millisecond)

	if ok, _ := s.Has(p + "short"); ok {
		t.Errorf("entry should have expired")
	}
	if ok, _ := s.Has(p + "long"); !ok {
		t.Errorf("entry with long ttl expired")
	}

	// an expired entry counts as unset
	if err := s.SetEIfUnset(p+"short", []byte("again"), time.Minute); err != nil {
		t.Fatalf("SetEIfUnset failed: %v", err)
	}
	val, ok, _ := s.Get(p + "short")
	if !ok || !bytes.Equal(val, []byte("again")) {
		t.Errorf("SetEIfUnset after expiry = (%q, %v)", val, ok)
	}
}

func testConcurrent(t *testing.T, s store.IStore) {
	p := prefix()
	const workers = 8

	var wg sync.WaitGroup
	winners := make(chan int, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = s.SetEIfUnset(p+"race", []byte{byte(i)}, time.Minute)
			if val, ok, _ := s.Get(p + "race"); ok && len(val) == 1 && int(val[0]) == i {
				winners <- i
			}
		}(i)
	}
	wg.Wait()
	close(winners)

	n := 0
	for range winners {
		n++
	}
	if n != 1 {
		t.Errorf("expected exactly one SetEIfUnset winner, got %d", n)
	}
}
