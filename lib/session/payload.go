package session

// Metadata is the replicated part of a session that is not an attribute.
type Metadata struct {
	ID                  string // external id including the route
	CreationTime        int64  // unix ms
	MaxInactiveInterval int    // seconds, <= 0 never expires
	IsNew               bool
	IsValid             bool
	Principal           string
}

// Payload is the unit pushed to and fetched from the distributed store.
type Payload struct {
	Version   uint64
	Timestamp int64 // last accessed time, unix ms
	Full      bool  // true if the payload carries the complete state
	Metadata  Metadata
	// Attributes is nil if the push did not include the attribute map.
	Attributes map[string]any
}

// Store is the boundary to the distributed store. Payloads are keyed by real id.
type Store interface {
	// Put stores the payload. Attributes are only written when the payload carries them.
	Put(realID string, p *Payload) error
	// Get returns the latest payload or nil if the session is unknown.
	Get(realID string) (*Payload, error)
	// Remove deletes the session from the cluster.
	Remove(realID string) error
	// RemoveLocal drops only this node's view of the session.
	RemoveLocal(realID string) error
}
