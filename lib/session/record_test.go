package session

import (
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"
)

// --------------------------------------------------------------------------
// Test helpers
// --------------------------------------------------------------------------

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.UnixMilli(1_700_000_000_000)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type memStore struct {
	mu       sync.Mutex
	payloads map[string]*Payload
	pushes   []*Payload
	fail     error
	onPut    func()
}

func newMemStore() *memStore {
	return &memStore{payloads: map[string]*Payload{}}
}

func (s *memStore) Put(realID string, p *Payload) error {
	if s.onPut != nil {
		s.onPut()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.pushes = append(s.pushes, p)
	s.payloads[realID] = p
	return nil
}

func (s *memStore) Get(realID string) (*Payload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.payloads[realID], nil
}

func (s *memStore) Remove(realID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.payloads, realID)
	return nil
}

func (s *memStore) RemoveLocal(string) error { return nil }

func (s *memStore) last() *Payload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pushes[len(s.pushes)-1]
}

// newClean returns a record that has been pushed once so it is not dirty.
func newClean(t *testing.T, opts Options) (*Record, *memStore) {
	t.Helper()
	r := New("abc.nodeA", "abc", opts)
	s := newMemStore()
	if err := r.Replicate(s); err != nil {
		t.Fatalf("initial Replicate failed: %v", err)
	}
	if r.IsDirty() {
		t.Fatalf("record dirty after initial push")
	}
	return r, s
}

// --------------------------------------------------------------------------
// Tests
// --------------------------------------------------------------------------

func TestSetGetRemove(t *testing.T) {
	r := New("abc.nodeA", "abc", Options{})

	if err := r.Set("user", "alice"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	v, err := r.Get("user")
	if err != nil || v != "alice" {
		t.Fatalf("Get = (%v, %v), want (alice, nil)", v, err)
	}

	if err := r.Set("user", nil); err != nil {
		t.Fatalf("Set(nil) failed: %v", err)
	}
	if v, _ := r.Get("user"); v != nil {
		t.Errorf("Set(nil) did not remove the attribute, got %v", v)
	}

	_ = r.Set("a", 1)
	_ = r.Set("b", 2)
	_ = r.Remove("a")
	names, _ := r.AttributeNames()
	if !reflect.DeepEqual(names, []string{"b"}) {
		t.Errorf("AttributeNames = %v, want [b]", names)
	}
}

type handle struct {
	Name     string
	Callback func()
}

type registeredCart struct {
	Items []string
}

func init() {
	RegisterAttributeType(registeredCart{})
}

func TestNonReplicableAttribute(t *testing.T) {
	tests := []struct {
		name    string
		value   any
		wantErr bool
	}{
		{"string", "x", false},
		{"int", 42, false},
		{"string slice", []string{"sku42"}, false},
		{"byte slice", []byte{1, 2}, false},
		{"registered struct", registeredCart{Items: []string{"a"}}, false},
		{"func", func() {}, true},
		{"channel", make(chan int), true},
		{"struct with func field", handle{Name: "h", Callback: func() {}}, true},
		{"unregistered map", map[string]string{"a": "b"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New("abc", "abc", Options{})
			_ = r.Set("handle", "prior")

			err := r.Set("handle", tt.value)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Set error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr {
				return
			}

			var nre *NonReplicableAttributeError
			if !errors.As(err, &nre) {
				t.Fatalf("error is %T, want *NonReplicableAttributeError", err)
			}
			if nre.Name != "handle" || nre.Type == "" {
				t.Errorf("error does not name attribute and type: %+v", nre)
			}
			if v, _ := r.Get("handle"); v != "prior" {
				t.Errorf("rejected value was applied, Get = %v", v)
			}
		})
	}
}

func TestTriggerPolicies(t *testing.T) {
	tests := []struct {
		name      string
		trigger   Trigger
		value     any
		wantDirty bool
	}{
		{"set only, primitive", OnSetOnly, "x", false},
		{"set only, slice", OnSetOnly, []string{"x"}, false},
		{"set and get, primitive", OnSetAndGet, "x", true},
		{"set and get, slice", OnSetAndGet, []string{"x"}, true},
		{"non primitive get, primitive", OnSetAndNonPrimitiveGet, 7, false},
		{"non primitive get, slice", OnSetAndNonPrimitiveGet, []string{"x"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New("abc", "abc", Options{Tracker: tt.trigger})
			_ = r.Set("attr", tt.value)
			if err := r.Replicate(newMemStore()); err != nil {
				t.Fatalf("Replicate failed: %v", err)
			}
			if r.IsDirty() {
				t.Fatalf("record dirty after push")
			}

			if _, err := r.Get("attr"); err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if got := r.IsDirty(); got != tt.wantDirty {
				t.Errorf("IsDirty after Get = %v, want %v", got, tt.wantDirty)
			}
		})
	}
}

func TestGetMissingAttributeNotDirty(t *testing.T) {
	r, _ := newClean(t, Options{Tracker: OnSetAndGet})
	if _, err := r.Get("missing"); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if r.IsDirty() {
		t.Errorf("reading a missing attribute marked the record dirty")
	}
}

func TestParseTrigger(t *testing.T) {
	tests := []struct {
		in      string
		want    Trigger
		wantErr bool
	}{
		{"SET", OnSetOnly, false},
		{"set-and-get", OnSetAndGet, false},
		{"SET_AND_NON_PRIMITIVE_GET", OnSetAndNonPrimitiveGet, false},
		{"", OnSetAndNonPrimitiveGet, false},
		{"sometimes", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTrigger(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseTrigger(%q) error = %v", tt.in, err)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseTrigger(%q) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestExpiry(t *testing.T) {
	clock := newFakeClock()
	r := New("abc", "abc", Options{Clock: clock.Now, MaxInactiveInterval: 1})
	_ = r.Set("a", 1)

	clock.Advance(2 * time.Second)

	if _, err := r.Get("a"); !errors.Is(err, ErrExpiredSession) {
		t.Errorf("Get after idle timeout = %v, want ErrExpiredSession", err)
	}
	if err := r.Access(); !errors.Is(err, ErrExpiredSession) {
		t.Errorf("Access after idle timeout = %v, want ErrExpiredSession", err)
	}
	if _, err := r.CreationTime(); !errors.Is(err, ErrExpiredSession) {
		t.Errorf("CreationTime after idle timeout = %v, want ErrExpiredSession", err)
	}
}

func TestNoExpiry(t *testing.T) {
	for _, interval := range []int{0, -1} {
		clock := newFakeClock()
		r := New("abc", "abc", Options{Clock: clock.Now, MaxInactiveInterval: interval})
		clock.Advance(24 * time.Hour)
		if r.IsExpired() {
			t.Errorf("session with max inactive interval %d expired", interval)
		}
	}
}

func TestAccessKeepsSessionAlive(t *testing.T) {
	clock := newFakeClock()
	r := New("abc", "abc", Options{Clock: clock.Now, MaxInactiveInterval: 2})

	for i := 0; i < 5; i++ {
		clock.Advance(time.Second)
		if err := r.Access(); err != nil {
			t.Fatalf("Access %d failed: %v", i, err)
		}
		r.EndAccess()
	}
	if r.IsNew() {
		t.Errorf("session still new after requests")
	}
}

func TestInvalidate(t *testing.T) {
	r := New("abc", "abc", Options{})
	r.Invalidate()

	if err := r.Set("a", 1); !errors.Is(err, ErrExpiredSession) {
		t.Errorf("Set on invalid record = %v, want ErrExpiredSession", err)
	}
	if r.IsValid() {
		t.Errorf("record still valid")
	}
	if !r.IsDirty() {
		t.Errorf("invalidation not marked dirty")
	}
}

func TestMetadataMutatorsMarkDirtyOnChange(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *Record)
		dirty  bool
	}{
		{"same principal", func(r *Record) { r.SetPrincipal("") }, false},
		{"new principal", func(r *Record) { r.SetPrincipal("alice") }, true},
		{"same interval", func(r *Record) { r.SetMaxInactiveInterval(30) }, false},
		{"new interval", func(r *Record) { r.SetMaxInactiveInterval(60) }, true},
		{"creation time", func(r *Record) { r.SetCreationTime(1) }, true},
		{"same id", func(r *Record) { r.ResetID("abc.nodeA") }, false},
		{"new id", func(r *Record) { r.ResetID("abc.nodeB") }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := newClean(t, Options{MaxInactiveInterval: 30})
			tt.mutate(r)
			if got := r.IsDirty(); got != tt.dirty {
				t.Errorf("IsDirty = %v, want %v", got, tt.dirty)
			}
		})
	}
}

func TestReplicateSimpleSet(t *testing.T) {
	r := New("S1.nodeA", "S1", Options{})
	s := newMemStore()

	if err := r.Set("cart", []string{"sku42"}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := r.Replicate(s); err != nil {
		t.Fatalf("Replicate failed: %v", err)
	}

	p, _ := s.Get("S1")
	if p == nil {
		t.Fatalf("nothing stored under real id")
	}
	if p.Version != 1 {
		t.Errorf("Version = %d, want 1", p.Version)
	}
	if !reflect.DeepEqual(p.Attributes["cart"], []string{"sku42"}) {
		t.Errorf("cart = %v, want [sku42]", p.Attributes["cart"])
	}
	if p.Metadata.ID != "S1.nodeA" || !p.Metadata.IsValid {
		t.Errorf("unexpected metadata %+v", p.Metadata)
	}
	if r.IsDirty() || r.Version() != 1 {
		t.Errorf("after push: dirty=%v version=%d", r.IsDirty(), r.Version())
	}
}

func TestIncrementalPayload(t *testing.T) {
	r, s := newClean(t, Options{})

	r.SetPrincipal("alice")
	_ = r.Replicate(s)
	if p := s.last(); p.Attributes != nil || p.Full {
		t.Errorf("metadata-only push carried attributes: %+v", p)
	}

	_ = r.Set("a", 1)
	_ = r.Replicate(s)
	if p := s.last(); p.Attributes == nil || p.Full {
		t.Errorf("attribute push = %+v, want incremental with attributes", p)
	}
	if r.Version() != 3 {
		t.Errorf("Version = %d, want 3", r.Version())
	}
}

func TestFullReplicationWindow(t *testing.T) {
	clock := newFakeClock()
	opts := Options{Clock: clock.Now, FullReplicationWindow: 5 * time.Second}
	s := newMemStore()

	r := FromPayload("abc", &Payload{
		Version:    4,
		Timestamp:  clock.Now().UnixMilli(),
		Metadata:   Metadata{ID: "abc.nodeA", CreationTime: clock.Now().UnixMilli(), IsValid: true},
		Attributes: map[string]any{"a": 1},
	}, opts)

	for i := 0; i < 2; i++ {
		clock.Advance(100 * time.Millisecond)
		if !r.IsDirty() {
			t.Fatalf("record inside the window is not dirty")
		}
		if err := r.Replicate(s); err != nil {
			t.Fatalf("Replicate failed: %v", err)
		}
		if p := s.last(); !p.Full || p.Attributes == nil {
			t.Errorf("push %d inside the window was not full: %+v", i, p)
		}
	}

	clock.Advance(6 * time.Second)
	r.SetPrincipal("bob")
	_ = r.Replicate(s)
	if p := s.last(); p.Full || p.Attributes != nil {
		t.Errorf("push after the window was full: %+v", p)
	}
	if r.IsDirty() {
		t.Errorf("record dirty after the window closed")
	}
	if r.Version() != 7 {
		t.Errorf("Version = %d, want 7", r.Version())
	}
}

func TestMutationDuringPushKeepsDirty(t *testing.T) {
	r, s := newClean(t, Options{})
	_ = r.Set("a", 1)

	s.onPut = func() {
		s.onPut = nil
		_ = r.Set("b", 2)
	}
	if err := r.Replicate(s); err != nil {
		t.Fatalf("Replicate failed: %v", err)
	}
	if !r.IsDirty() {
		t.Errorf("change during push was lost")
	}
}

func TestFailedPushKeepsDirty(t *testing.T) {
	r, s := newClean(t, Options{})
	_ = r.Set("a", 1)

	s.fail = errors.New("store down")
	err := r.Replicate(s)

	var pe *ReplicationPushError
	if !errors.As(err, &pe) || pe.RealID != "abc" {
		t.Fatalf("Replicate error = %v, want *ReplicationPushError", err)
	}
	if !r.IsDirty() {
		t.Errorf("record clean after failed push")
	}
	if r.Version() != 1 {
		t.Errorf("failed push changed the version to %d", r.Version())
	}

	s.fail = nil
	if err := r.Replicate(s); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if r.Version() != 2 || r.IsDirty() {
		t.Errorf("after retry: version=%d dirty=%v", r.Version(), r.IsDirty())
	}
}

func TestOutdated(t *testing.T) {
	clock := newFakeClock()
	r, s := newClean(t, Options{Clock: clock.Now})

	if r.SetOutdatedVersion(1) {
		t.Errorf("same version reported as outdated")
	}
	clock.Advance(time.Millisecond)
	if !r.SetOutdatedVersion(2) || !r.IsOutdated() {
		t.Fatalf("higher version not reported as outdated")
	}

	p, _ := s.Get("abc")
	p2 := *p
	p2.Version = 2
	r.Update(&p2)
	if r.IsOutdated() {
		t.Errorf("record still outdated after Update")
	}
	if r.Version() != 2 {
		t.Errorf("Version = %d, want 2", r.Version())
	}
}

func TestVersionNeverDecreases(t *testing.T) {
	r, _ := newClean(t, Options{})
	r.Update(&Payload{Version: 0, Metadata: Metadata{IsValid: true}})
	if r.Version() != 1 {
		t.Errorf("Update lowered the version to %d", r.Version())
	}
}

func TestAccessTimeNeverDecreases(t *testing.T) {
	clock := newFakeClock()
	r, s := newClean(t, Options{Clock: clock.Now})
	stale, _ := s.Get("abc")

	clock.Advance(time.Minute)
	if err := r.Access(); err != nil {
		t.Fatalf("Access failed: %v", err)
	}
	r.EndAccess()
	before, _ := r.LastAccessedTime()

	// a payload pushed before the last access arrives late
	old := *stale
	old.Version = r.Version() + 1
	r.Update(&old)

	after, err := r.LastAccessedTime()
	if err != nil {
		t.Fatalf("LastAccessedTime failed: %v", err)
	}
	if after != before {
		t.Errorf("LastAccessedTime = %d after stale Update, want %d", after, before)
	}
	if old.Timestamp >= before {
		t.Fatalf("payload timestamp %d is not older than %d", old.Timestamp, before)
	}
}

func TestInvalidatedRecordIsNotReplicated(t *testing.T) {
	r, s := newClean(t, Options{})
	_ = r.Set("user", "alice")
	r.Invalidate()

	if err := r.Replicate(s); err != nil {
		t.Fatalf("Replicate failed: %v", err)
	}
	if n := len(s.pushes); n != 1 {
		t.Errorf("invalidated record was pushed, %d pushes", n)
	}
}

func TestMustReplicateTimestamp(t *testing.T) {
	tests := []struct {
		name          string
		maxUnrepl     int64
		maxInactive   int
		advance       time.Duration
		wantReplicate bool
	}{
		{"disabled", -1, 1800, 10 * time.Minute, false},
		{"always", 0, 1800, time.Second, true},
		{"interval not reached", 60_000, 1800, 10 * time.Second, false},
		{"interval reached", 60_000, 1800, 2 * time.Minute, true},
		{"interval above timeout", 60_000, 30, time.Second, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newFakeClock()
			r, _ := newClean(t, Options{Clock: clock.Now, MaxUnreplicatedInterval: tt.maxUnrepl, MaxInactiveInterval: tt.maxInactive})

			clock.Advance(tt.advance)
			if err := r.Access(); err != nil {
				t.Fatalf("Access failed: %v", err)
			}
			r.EndAccess()

			if got := r.IsDirty(); got != tt.wantReplicate {
				t.Errorf("IsDirty after timestamp-only access = %v, want %v", got, tt.wantReplicate)
			}
		})
	}
}
