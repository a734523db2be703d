package internal

import (
	"github.com/ValentinKolb/dSess/lib/db/util"
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Entry Type (key-value pair with metadata)
// --------------------------------------------------------------------------

// Entry stores a value with its timing metadata
type Entry struct {
	Value    []byte // Stored data (nil for tombstones)
	DeleteAt uint64 // Time (unix ms) from which the entry is gone, 0 = never
	Written  uint64 // Time (unix ms) of the write that produced this entry
}

// Live returns whether the entry is visible at the given time
func (e Entry) Live(now uint64) bool {
	return e.DeleteAt == 0 || now < e.DeleteAt
}

// --------------------------------------------------------------------------
// Shard Type (partition of the database)
// --------------------------------------------------------------------------

// Shard represents a partition of the database
type Shard struct {
	Data *xsync.MapOf[string, Entry]
}

// NewShard creates a new, empty shard
func NewShard() *Shard {
	return &Shard{
		Data: xsync.NewMapOf[string, Entry](),
	}
}

// GetShard returns the appropriate shard for a given key
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func GetShard[T any](key string, seed uint64, shards []*T) *T {
	// Shift right by 7 bits to use higher-quality bits for distribution
	shiftedKey := uint64(util.HashString(key, seed)) >> 7
	return shards[shiftedKey%uint64(len(shards))]
}
