package replication

import (
	"errors"
	"github.com/ValentinKolb/dSess/lib/session"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type memStore struct {
	mu       sync.Mutex
	payloads map[string]*session.Payload
}

func newMemStore() *memStore {
	return &memStore{payloads: map[string]*session.Payload{}}
}

func (s *memStore) Put(realID string, p *session.Payload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payloads[realID] = p
	return nil
}

func (s *memStore) Get(realID string) (*session.Payload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.payloads[realID], nil
}

func (s *memStore) Remove(realID string) error      { return nil }
func (s *memStore) RemoveLocal(realID string) error { return nil }

// fakeSource counts its pushes
type fakeSource struct {
	id     string
	dirty  atomic.Bool
	fail   atomic.Bool
	pushes atomic.Int32
}

func newSource(id string) *fakeSource {
	s := &fakeSource{id: id}
	s.dirty.Store(true)
	return s
}

func (f *fakeSource) RealID() string { return f.id }
func (f *fakeSource) IsDirty() bool  { return f.dirty.Load() }
func (f *fakeSource) Replicate(session.Store) error {
	if f.fail.Load() {
		return &session.ReplicationPushError{RealID: f.id, Err: errors.New("store down")}
	}
	f.pushes.Add(1)
	f.dirty.Store(false)
	return nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSimpleSetReplicate(t *testing.T) {
	store := newMemStore()
	s := NewIntervalScheduler(store, 10*time.Millisecond)
	s.Start()
	defer s.Stop()

	rec := session.New("S1.nodeA", "S1", session.Options{})
	if err := rec.Set("cart", []string{"sku42"}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	s.Enqueue(rec)

	waitFor(t, func() bool { p, _ := store.Get("S1"); return p != nil })

	p, _ := store.Get("S1")
	if p.Version != 1 {
		t.Errorf("Version = %d, want 1", p.Version)
	}
	if !reflect.DeepEqual(p.Attributes["cart"], []string{"sku42"}) {
		t.Errorf("cart = %v, want [sku42]", p.Attributes["cart"])
	}
}

func TestEnqueueIsIdempotent(t *testing.T) {
	s := NewIntervalScheduler(newMemStore(), time.Hour)
	src := newSource("a")

	s.Enqueue(src)
	s.Enqueue(src)
	if s.Pending() != 1 {
		t.Fatalf("Pending = %d, want 1", s.Pending())
	}

	s.Flush()
	if n := src.pushes.Load(); n != 1 {
		t.Errorf("pushed %d times, want 1", n)
	}
}

func TestCleanSourcesAreSkipped(t *testing.T) {
	s := NewIntervalScheduler(newMemStore(), time.Hour)
	src := newSource("a")
	src.dirty.Store(false)

	s.Enqueue(src)
	s.Flush()
	if n := src.pushes.Load(); n != 0 {
		t.Errorf("clean source pushed %d times", n)
	}
}

func TestFailureDoesNotAbortBatch(t *testing.T) {
	s := NewIntervalScheduler(newMemStore(), time.Hour)

	bad := newSource("bad")
	bad.fail.Store(true)
	good := []*fakeSource{newSource("a"), newSource("b"), newSource("c")}

	s.Enqueue(bad)
	for _, g := range good {
		s.Enqueue(g)
	}
	s.Flush()

	for _, g := range good {
		if g.pushes.Load() != 1 {
			t.Errorf("source %s not pushed", g.id)
		}
	}
	if !bad.IsDirty() {
		t.Errorf("failed source marked clean")
	}
	if s.Pending() != 1 {
		t.Errorf("failed source not queued again, pending = %d", s.Pending())
	}

	bad.fail.Store(false)
	s.Flush()
	if bad.pushes.Load() != 1 || s.Pending() != 0 {
		t.Errorf("failed source not retried: pushes=%d pending=%d", bad.pushes.Load(), s.Pending())
	}
}

func TestWorkerSurvivesFailures(t *testing.T) {
	s := NewIntervalScheduler(newMemStore(), 5*time.Millisecond)
	s.Start()
	defer s.Stop()

	bad := newSource("bad")
	bad.fail.Store(true)
	s.Enqueue(bad)

	time.Sleep(30 * time.Millisecond)

	good := newSource("good")
	s.Enqueue(good)
	waitFor(t, func() bool { return good.pushes.Load() == 1 })
}

func TestStartStopLifecycle(t *testing.T) {
	s := NewIntervalScheduler(newMemStore(), time.Hour)

	// stop before start
	s.Enqueue(newSource("a"))
	s.Stop()
	if s.Pending() != 0 {
		t.Errorf("Stop did not clear pending")
	}

	s.Start()
	s.Start()
	s.Enqueue(newSource("b"))
	s.Stop()
	s.Stop()
	if s.Pending() != 0 {
		t.Errorf("Stop did not clear pending")
	}

	// restart after stop
	s.Start()
	defer s.Stop()
}

func TestInstantScheduler(t *testing.T) {
	s := NewInstantScheduler(newMemStore())
	s.Start()
	defer s.Stop()

	src := newSource("a")
	s.Enqueue(src)
	if src.pushes.Load() != 1 {
		t.Errorf("instant scheduler did not push synchronously")
	}
}

func TestCancelDropsPending(t *testing.T) {
	s := NewIntervalScheduler(newMemStore(), time.Hour)
	src := newSource("S1")
	s.Enqueue(src)
	s.Enqueue(newSource("S2"))

	s.Cancel("S1")
	if s.Pending() != 1 {
		t.Fatalf("Pending() = %d after Cancel, want 1", s.Pending())
	}
	s.Flush()
	if src.pushes.Load() != 0 {
		t.Errorf("cancelled session was pushed")
	}
}

func TestInvalidatedRecordIsNotPushed(t *testing.T) {
	store := newMemStore()
	s := NewIntervalScheduler(store, time.Hour)

	rec := session.New("S1.nodeA", "S1", session.Options{})
	if err := rec.Set("cart", "sku42"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	s.Enqueue(rec)
	rec.Invalidate()
	s.Flush()

	if p, _ := store.Get("S1"); p != nil {
		t.Errorf("invalidated session was written to the store: %+v", p)
	}
}
