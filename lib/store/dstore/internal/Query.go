package internal

// QueryType defines the possible queries for the state machine.
type QueryType uint8

const (
	QueryTGet QueryType = iota // Retrieve an entry by key.
	QueryTHas                  // Check if a live entry exists.
)

func (q QueryType) String() string {
	switch q {
	case QueryTGet:
		return "Get"
	case QueryTHas:
		return "Has"
	default:
		return "Unknown"
	}
}

// Query defines the structure for lookup requests (read-only) sent via SyncRead.
// Queries are never written to the raft log, so they are passed to the state machine as values.
type Query struct {
	Type QueryType // The type of Query to perform.
	Key  string    // The key for the Query.
	Now  uint64    // Time (unix ms) at which ttls are evaluated.
}

// QueryResult is the result of a QueryTGet operation.
type QueryResult struct {
	Ok    bool
	Value []byte
}
