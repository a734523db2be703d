package routing

import (
	"github.com/cespare/xxhash/v2"
	"sort"
)

// AffinityProvider returns the route a session should be served by, "" for none.
type AffinityProvider interface {
	Affinity(realID string) string
}

// StaticAffinity routes every session to the same node.
type StaticAffinity string

func (s StaticAffinity) Affinity(string) string { return string(s) }

// NoAffinity never embeds a route.
type NoAffinity struct{}

func (NoAffinity) Affinity(string) string { return "" }

// HashAffinity spreads sessions over routes with rendezvous hashing.
// If the local route is one of the first owners candidates of a session it is preferred,
// so sessions created here stay here unless the node is a poor fit.
type HashAffinity struct {
	local  string
	routes []string
	owners int
}

// NewHashAffinity creates a hash based affinity. The local route is added to routes
// if missing. owners < 1 is treated as 1.
func NewHashAffinity(local string, routes []string, owners int) *HashAffinity {
	rs := make([]string, 0, len(routes)+1)
	seen := map[string]bool{}
	for _, r := range append([]string{local}, routes...) {
		if r != "" && !seen[r] {
			seen[r] = true
			rs = append(rs, r)
		}
	}
	sort.Strings(rs)
	return &HashAffinity{local: local, routes: rs, owners: max(owners, 1)}
}

// Owners returns the routes ordered by their rendezvous weight for realID.
func (h *HashAffinity) Owners(realID string) []string {
	type candidate struct {
		route  string
		weight uint64
	}
	cands := make([]candidate, len(h.routes))
	for i, r := range h.routes {
		cands[i] = candidate{route: r, weight: xxhash.Sum64String(r + "/" + realID)}
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].weight != cands[j].weight {
			return cands[i].weight > cands[j].weight
		}
		return cands[i].route < cands[j].route
	})
	out := make([]string, len(cands))
	for i, c := range cands {
		out[i] = c.route
	}
	return out
}

func (h *HashAffinity) Affinity(realID string) string {
	owners := h.Owners(realID)
	if len(owners) == 0 {
		return ""
	}
	for _, r := range owners[:min(h.owners, len(owners))] {
		if r == h.local {
			return r
		}
	}
	return owners[0]
}
