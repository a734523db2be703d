package util

import (
	"crypto/rand"
	"encoding/binary"
	"github.com/cespare/xxhash/v2"
	"time"
)

// --------------------------------------------------------------------------
// General Utility Functions
// --------------------------------------------------------------------------

// GenerateSeed creates a random seed for internal hash distribution
func GenerateSeed() uint64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return uint64(time.Now().UnixNano())
	}
	return binary.LittleEndian.Uint64(b[:])
}

// NowMillis returns the given time as unix milliseconds, the time unit used by all KVDB operations
func NowMillis(t time.Time) uint64 {
	ms := t.UnixMilli()
	if ms < 0 {
		return 0
	}
	return uint64(ms)
}

// --------------------------------------------------------------------------
// Hash Functions
// --------------------------------------------------------------------------

// UintKey is a hashed representation of a string key
type UintKey uint64

// HashString hashes s with xxhash, mixed with seed
func HashString(s string, seed uint64) UintKey {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], seed)
	d := xxhash.New()
	_, _ = d.Write(b[:])
	_, _ = d.WriteString(s)
	return UintKey(d.Sum64())
}
