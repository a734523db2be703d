package routing

import (
	"fmt"
	"github.com/google/uuid"
	"testing"
)

// record is a minimal Routable
type record struct {
	id, realID string
	resets     int
}

func (r *record) ID() string     { return r.id }
func (r *record) RealID() string { return r.realID }
func (r *record) ResetID(id string) {
	r.id = id
	r.resets++
}

func TestCodecRoundTrip(t *testing.T) {
	c := NewCodec(nil)

	ids := []string{"abc", "", "a-b_c", uuid.NewString(), "ÄÖÜ"}
	routes := []string{"", "nodeA", "node-b", "n.1", "10.0.0.1:8080"}

	for _, id := range ids {
		for _, route := range routes {
			t.Run(fmt.Sprintf("%s|%s", id, route), func(t *testing.T) {
				enc := c.EncodeWithRoute(id, route)
				if got := c.Decode(enc); got != id {
					t.Errorf("Decode(%q) = %q, want %q", enc, got, id)
				}
				if got := c.Route(enc); got != route {
					t.Errorf("Route(%q) = %q, want %q", enc, got, route)
				}
			})
		}
	}
}

func TestCodecDecodeIsPure(t *testing.T) {
	a := NewCodec(StaticAffinity("nodeA"))
	b := NewCodec(StaticAffinity("nodeB"))
	if a.Decode("abc.nodeC") != b.Decode("abc.nodeC") {
		t.Errorf("Decode depends on the affinity")
	}
}

func TestCustomSeparator(t *testing.T) {
	c := NewCodecWithSeparator(StaticAffinity("nodeA"), ":")
	enc := c.Encode("abc")
	if enc != "abc:nodeA" {
		t.Fatalf("Encode = %q", enc)
	}
	if c.Decode(enc) != "abc" {
		t.Errorf("Decode(%q) = %q", enc, c.Decode(enc))
	}
}

func TestReencode(t *testing.T) {
	c := NewCodec(StaticAffinity("nodeB"))

	tests := []struct {
		name    string
		id      string
		want    string
		changed bool
	}{
		{"current route", "abc.nodeB", "abc.nodeB", false},
		{"stale route", "abc.nodeA", "abc.nodeB", true},
		{"no route", "abc", "abc.nodeB", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, changed := c.Reencode(tt.id)
			if got != tt.want || changed != tt.changed {
				t.Errorf("Reencode(%q) = (%q, %v), want (%q, %v)", tt.id, got, changed, tt.want, tt.changed)
			}
		})
	}

	none := NewCodec(NoAffinity{})
	if _, changed := none.Reencode("abc"); changed {
		t.Errorf("Reencode without affinity changed the id")
	}
}

func TestReconcile(t *testing.T) {
	c := NewCodec(StaticAffinity("nodeB"))
	r := NewReconciler(c, "nodeB")

	tests := []struct {
		name        string
		requested   string
		recordID    string
		wantID      string
		wantRewrite bool
		wantReset   bool
	}{
		{"in place", "abc.nodeB", "abc.nodeB", "abc.nodeB", false, false},
		{"failover", "abc.nodeA", "abc.nodeA", "abc.nodeB", true, true},
		{"record without route", "abc", "abc", "abc.nodeB", true, true},
		{"record already corrected", "abc.nodeA", "abc.nodeB", "abc.nodeB", true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &record{id: tt.recordID, realID: "abc"}
			out := r.Reconcile(tt.requested, rec)

			if out.ID != tt.wantID || out.Rewrite != tt.wantRewrite {
				t.Errorf("Reconcile = %+v, want {ID:%s Rewrite:%v}", out, tt.wantID, tt.wantRewrite)
			}
			if (rec.resets > 0) != tt.wantReset {
				t.Errorf("ResetID called %d times, want reset=%v", rec.resets, tt.wantReset)
			}
			if c.Route(out.ID) != r.Route() {
				t.Errorf("outcome %q does not route to this node", out.ID)
			}
		})
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	r := NewReconciler(NewCodec(StaticAffinity("nodeB")), "nodeB")
	rec := &record{id: "abc.nodeA", realID: "abc"}

	first := r.Reconcile("abc.nodeA", rec)
	if !first.Rewrite {
		t.Fatalf("failover not detected")
	}
	for i := 0; i < 3; i++ {
		if out := r.Reconcile(first.ID, rec); out.Rewrite || out.ID != first.ID {
			t.Errorf("reconcile %d rewrote again: %+v", i, out)
		}
	}
	if rec.resets != 1 {
		t.Errorf("ResetID called %d times, want 1", rec.resets)
	}
}

func TestHashAffinity(t *testing.T) {
	routes := []string{"nodeA", "nodeB", "nodeC", "nodeD"}

	t.Run("deterministic across nodes", func(t *testing.T) {
		a := NewHashAffinity("nodeA", routes, 1)
		b := NewHashAffinity("nodeB", routes, 1)
		for i := 0; i < 50; i++ {
			id := uuid.NewString()
			oa, ob := a.Owners(id), b.Owners(id)
			if fmt.Sprint(oa) != fmt.Sprint(ob) {
				t.Fatalf("owner order differs between nodes: %v vs %v", oa, ob)
			}
			if a.Affinity(id) != oa[0] && a.Affinity(id) != "nodeA" {
				t.Fatalf("affinity %q is neither the top owner nor local", a.Affinity(id))
			}
		}
	})

	t.Run("local preferred among owners", func(t *testing.T) {
		h := NewHashAffinity("nodeC", routes, len(routes))
		for i := 0; i < 20; i++ {
			if got := h.Affinity(uuid.NewString()); got != "nodeC" {
				t.Fatalf("Affinity = %q, want local route", got)
			}
		}
	})

	t.Run("spreads sessions", func(t *testing.T) {
		h := NewHashAffinity("nodeA", routes, 1)
		counts := map[string]int{}
		for i := 0; i < 400; i++ {
			counts[h.Owners(uuid.NewString())[0]]++
		}
		for _, r := range routes {
			if counts[r] == 0 {
				t.Errorf("route %s never chosen: %v", r, counts)
			}
		}
	})

	t.Run("local added to routes", func(t *testing.T) {
		h := NewHashAffinity("nodeZ", routes, 1)
		if len(h.Owners("abc")) != len(routes)+1 {
			t.Errorf("local route not part of the candidates")
		}
	})
}
