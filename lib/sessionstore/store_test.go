package sessionstore

import (
	"github.com/ValentinKolb/dSess/lib/db"
	"github.com/ValentinKolb/dSess/lib/db/engines/maple"
	"github.com/ValentinKolb/dSess/lib/session"
	"github.com/ValentinKolb/dSess/lib/store"
	"github.com/ValentinKolb/dSess/lib/store/lstore"
	"reflect"
	"testing"
	"time"
)

func newKV(clock func() time.Time) store.IStore {
	return lstore.NewLocalStoreWithClock(func() db.KVDB { return maple.NewMapleDB(nil) }, clock)
}

func payload(version uint64, attrs map[string]any) *session.Payload {
	return &session.Payload{
		Version:   version,
		Timestamp: 1_700_000_000_000,
		Metadata: session.Metadata{
			ID:                  "abc.nodeA",
			CreationTime:        1_700_000_000_000,
			MaxInactiveInterval: 60,
			IsValid:             true,
		},
		Attributes: attrs,
	}
}

func TestPutGet(t *testing.T) {
	s := New(newKV(time.Now))

	if err := s.Put("abc", payload(1, map[string]any{"cart": []string{"sku42"}})); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	p, err := s.Get("abc")
	if err != nil || p == nil {
		t.Fatalf("Get = (%v, %v)", p, err)
	}
	if p.Version != 1 || !p.Full || p.Metadata.ID != "abc.nodeA" {
		t.Errorf("unexpected payload %+v", p)
	}
	if !reflect.DeepEqual(p.Attributes["cart"], []string{"sku42"}) {
		t.Errorf("cart = %v", p.Attributes["cart"])
	}
}

func TestGetUnknown(t *testing.T) {
	s := New(newKV(time.Now))
	p, err := s.Get("nope")
	if p != nil || err != nil {
		t.Errorf("Get(unknown) = (%v, %v), want (nil, nil)", p, err)
	}
}

func TestMetadataOnlyPutKeepsAttributes(t *testing.T) {
	kv := newKV(time.Now)
	writer := New(kv)
	reader := New(kv) // another node, empty near cache

	_ = writer.Put("abc", payload(1, map[string]any{"a": 1}))
	meta := payload(2, nil)
	meta.Metadata.Principal = "alice"
	if err := writer.Put("abc", meta); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	for name, s := range map[string]*Store{"writer": writer, "reader": reader} {
		t.Run(name, func(t *testing.T) {
			p, err := s.Get("abc")
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if p.Version != 2 || p.Metadata.Principal != "alice" {
				t.Errorf("metadata not updated: %+v", p)
			}
			if p.Attributes["a"] != 1 {
				t.Errorf("attributes lost: %v", p.Attributes)
			}
		})
	}
}

func TestMetadataOnlyPutOnOtherNode(t *testing.T) {
	kv := newKV(time.Now)
	nodeA, nodeB := New(kv), New(kv)

	_ = nodeA.Put("abc", payload(1, map[string]any{"a": 1}))
	_ = nodeB.Put("abc", payload(2, nil))

	p, _ := New(kv).Get("abc")
	if p.Attributes["a"] != 1 {
		t.Errorf("attributes lost after metadata push from another node: %v", p.Attributes)
	}
}

func TestNearCacheFollowsStore(t *testing.T) {
	kv := newKV(time.Now)
	nodeA, nodeB := New(kv), New(kv)

	_ = nodeA.Put("abc", payload(1, map[string]any{"a": 1}))
	if _, err := nodeB.Get("abc"); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	_ = nodeA.Put("abc", payload(2, map[string]any{"a": 2}))

	p, _ := nodeB.Get("abc")
	if p.Attributes["a"] != 2 {
		t.Errorf("stale attributes from near cache: %v", p.Attributes)
	}
}

func TestRemoveAndRemoveLocal(t *testing.T) {
	kv := newKV(time.Now)
	s := New(kv)
	_ = s.Put("abc", payload(1, map[string]any{"a": 1}))

	if err := s.RemoveLocal("abc"); err != nil {
		t.Fatalf("RemoveLocal failed: %v", err)
	}
	if s.Cached() != 0 {
		t.Errorf("near cache not evicted")
	}
	if p, _ := s.Get("abc"); p == nil {
		t.Fatalf("RemoveLocal deleted the session from the store")
	}

	if err := s.Remove("abc"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if p, _ := s.Get("abc"); p != nil {
		t.Errorf("session still present after Remove")
	}
	if ok, _ := kv.Has(AttrKey("abc")); ok {
		t.Errorf("attribute key still present after Remove")
	}
}

func TestTTL(t *testing.T) {
	tests := []struct {
		interval int
		want     time.Duration
	}{
		{-1, 0},
		{0, 0},
		{60, 2 * time.Minute},
	}
	for _, tt := range tests {
		if got := TTL(tt.interval); got != tt.want {
			t.Errorf("TTL(%d) = %v, want %v", tt.interval, got, tt.want)
		}
	}
}

func TestSessionExpiresInStore(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	clock := func() time.Time { return now }
	s := NewWithClock(newKV(clock), clock)

	_ = s.Put("abc", payload(1, map[string]any{"a": 1}))

	now = now.Add(119 * time.Second)
	if p, _ := s.Get("abc"); p == nil {
		t.Fatalf("session expired before twice its max inactive interval")
	}

	now = now.Add(2 * time.Second)
	if p, _ := s.Get("abc"); p != nil {
		t.Errorf("session still stored after twice its max inactive interval")
	}
}

func TestMetadataPushRefreshesAttributeTTL(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	clock := func() time.Time { return now }
	kv := newKV(clock)
	s := NewWithClock(kv, clock)

	_ = s.Put("abc", payload(1, map[string]any{"a": 1}))

	// metadata only pushes keep the session alive for much longer than the attribute ttl
	for v := uint64(2); v < 10; v++ {
		now = now.Add(61 * time.Second)
		if err := s.Put("abc", payload(v, nil)); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	p, _ := New(kv).Get("abc")
	if p == nil || p.Attributes["a"] != 1 {
		t.Errorf("attributes expired while metadata was kept alive: %+v", p)
	}
}

func TestRecordRoundTrip(t *testing.T) {
	s := New(newKV(time.Now))

	r := session.New("abc.nodeA", "abc", session.Options{MaxInactiveInterval: 60})
	_ = r.Set("cart", []string{"sku42"})
	if err := r.Replicate(s); err != nil {
		t.Fatalf("Replicate failed: %v", err)
	}

	p, _ := s.Get("abc")
	loaded := session.FromPayload("abc", p, session.Options{})
	v, err := loaded.Get("cart")
	if err != nil || !reflect.DeepEqual(v, []string{"sku42"}) {
		t.Errorf("loaded cart = (%v, %v)", v, err)
	}
	if loaded.ID() != "abc.nodeA" || loaded.Version() != 1 {
		t.Errorf("loaded id=%s version=%d", loaded.ID(), loaded.Version())
	}
}
