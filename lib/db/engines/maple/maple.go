package maple

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"github.com/ValentinKolb/dSess/lib/db"
	"github.com/ValentinKolb/dSess/lib/db/engines/maple/internal"
	"github.com/ValentinKolb/dSess/lib/db/util"
	"io"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

// Constants for database behavior and structure
const (
	magicNum          = "MAPLEDB\x00"    // File format identifier
	mapleVersion      = 4                // Database version
	defaultGCInterval = 1 * time.Second  // Default interval between GC runs
	maxValueLen       = 64 * 1024 * 1024 // Upper bound for a single value when loading
)

// --------------------------------------------------------------------------
// Core Maple database structure
// --------------------------------------------------------------------------

// mapleImpl implements an in-memory database with sharded data
type mapleImpl struct {
	mu     sync.RWMutex      // guards shards and seed against Load
	seed   uint64            // Seed for hash function
	shards []*internal.Shard // Array of shards
	clock  atomic.Uint64     // Highest timestamp seen by any operation (unix ms)

	// garbage collection
	gcInterval time.Duration
	gcStop     chan struct{}
	gcDone     chan struct{}
	gcOnce     sync.Once
}

// DBOptions configures the mapleImpl behavior during initialization
type DBOptions struct {
	NumShards  int           // Number of shards (0 = auto)
	GCInterval time.Duration // Time between GC runs (0 = use default)
}

// DefaultOptions returns the default mapleImpl options
func DefaultOptions() *DBOptions {
	return &DBOptions{
		NumShards:  runtime.NumCPU(),
		GCInterval: defaultGCInterval,
	}
}

// --------------------------------------------------------------------------
// Initialization and Setup
// --------------------------------------------------------------------------

// NewMapleDB creates a new MapleDB instance with the specified options (optional)
func NewMapleDB(opts *DBOptions) db.KVDB {
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.NumShards <= 0 {
		opts.NumShards = runtime.NumCPU()
	}
	if opts.GCInterval <= 0 {
		opts.GCInterval = defaultGCInterval
	}

	newDB := &mapleImpl{
		seed:       util.GenerateSeed(),
		shards:     newShards(opts.NumShards),
		gcInterval: opts.GCInterval,
		gcStop:     make(chan struct{}),
		gcDone:     make(chan struct{}),
	}

	go newDB.garbageCollector()

	return newDB
}

func newShards(n int) []*internal.Shard {
	shards := make([]*internal.Shard, n)
	for i := range shards {
		shards[i] = internal.NewShard()
	}
	return shards
}

// shard returns the shard responsible for the key
//
// Thread-safety: The caller must hold maple.mu (read or write).
func (maple *mapleImpl) shard(key string) *internal.Shard {
	return internal.GetShard(key, maple.seed, maple.shards)
}

// observe advances the database clock to now if now is newer
func (maple *mapleImpl) observe(now uint64) {
	for {
		curr := maple.clock.Load()
		if now <= curr || maple.clock.CompareAndSwap(curr, now) {
			return
		}
	}
}

// --------------------------------------------------------------------------
// Core KVDB Interface Methods - Write Operations
// --------------------------------------------------------------------------

// Set inserts or updates an entry without ttl.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Set(key string, value []byte, now uint64) {
	maple.compute(key, value, now, 0, func(new, _ internal.Entry, _ bool) (internal.Entry, bool) {
		return new, false
	})
}

// SetE inserts or updates an entry that is deleted ttl milliseconds after now.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) SetE(key string, value []byte, now uint64, ttl uint64) {
	maple.compute(key, value, now, ttl, func(new, _ internal.Entry, _ bool) (internal.Entry, bool) {
		return new, false
	})
}

// SetEIfUnset inserts an entry only if there is no live entry for the key.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) SetEIfUnset(key string, value []byte, now uint64, ttl uint64) {
	maple.compute(key, value, now, ttl, func(new, old internal.Entry, loaded bool) (internal.Entry, bool) {
		if loaded {
			return old, false
		}
		return new, false
	})
}

// Delete removes an entry. A tombstone is kept until the next GC run so that
// delayed writes with an older timestamp cannot resurrect the key.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Delete(key string, now uint64) {
	maple.compute(key, nil, now, 0, func(_, old internal.Entry, loaded bool) (internal.Entry, bool) {
		if !loaded {
			return old, true
		}
		return internal.Entry{DeleteAt: now, Written: now}, false
	})
}

// compute is the shared implementation of all write operations.
//
// fn receives the new entry, the old entry and whether the old entry is live at now.
// It returns the entry to store and whether the key should be dropped instead.
// Writes older than the stored entry are ignored.
//
// Thread-safety: This function uses xsync's Compute to update entries atomically.
func (maple *mapleImpl) compute(key string, value []byte, now uint64, ttl uint64, fn func(new, old internal.Entry, loaded bool) (internal.Entry, bool)) {
	maple.observe(now)

	maple.mu.RLock()
	defer maple.mu.RUnlock()

	// Copy value to prevent memory corruption
	var valueCopy []byte
	if value != nil {
		valueCopy = make([]byte, len(value))
		copy(valueCopy, value)
	}

	var deleteAt uint64
	if ttl > 0 {
		deleteAt = now + ttl
	}

	maple.shard(key).Data.Compute(key, func(oldEntry internal.Entry, exists bool) (internal.Entry, bool) {
		// stale writes are ignored
		if exists && now < oldEntry.Written {
			return oldEntry, false
		}

		entry, del := fn(internal.Entry{
			Value:    valueCopy,
			DeleteAt: deleteAt,
			Written:  now,
		}, oldEntry, exists && oldEntry.Live(now))

		if del && !exists {
			return oldEntry, true
		}
		return entry, del
	})
}

// --------------------------------------------------------------------------
// Core KVDB Interface Methods - Read Operations
// --------------------------------------------------------------------------

// Get retrieves a copy of the value for a key.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Get(key string, now uint64) ([]byte, bool) {
	maple.observe(now)

	maple.mu.RLock()
	defer maple.mu.RUnlock()

	e, ok := maple.shard(key).Data.Load(key)
	if !ok || !e.Live(now) || e.Value == nil {
		return nil, false
	}

	data := make([]byte, len(e.Value))
	copy(data, e.Value)
	return data, true
}

// Has checks if a live entry exists for the key.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Has(key string, now uint64) bool {
	maple.observe(now)

	maple.mu.RLock()
	defer maple.mu.RUnlock()

	e, ok := maple.shard(key).Data.Load(key)
	return ok && e.Live(now) && e.Value != nil
}

// --------------------------------------------------------------------------
// Garbage Collection
// --------------------------------------------------------------------------

// garbageCollector periodically removes entries that are no longer live.
// It runs until Close is called.
func (maple *mapleImpl) garbageCollector() {
	defer close(maple.gcDone)

	ticker := time.NewTicker(maple.gcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-maple.gcStop:
			return
		case <-ticker.C:
			maple.sweep(maple.clock.Load())
		}
	}
}

// sweep drops every entry that is not live at now.
// The liveness check is repeated inside Compute because the entry may have been rewritten meanwhile.
func (maple *mapleImpl) sweep(now uint64) {
	maple.mu.RLock()
	defer maple.mu.RUnlock()

	for _, shard := range maple.shards {
		shard.Data.Range(func(key string, e internal.Entry) bool {
			if e.Live(now) {
				return true
			}
			shard.Data.Compute(key, func(curr internal.Entry, loaded bool) (internal.Entry, bool) {
				return curr, !loaded || !curr.Live(now)
			})
			return true
		})
	}
}

// --------------------------------------------------------------------------
// Persistence Operations
// --------------------------------------------------------------------------

// snapshotWriter writes little endian fields and keeps the first error
type snapshotWriter struct {
	w   *bufio.Writer
	err error
}

func (sw *snapshotWriter) put(v any) {
	if sw.err == nil {
		sw.err = binary.Write(sw.w, binary.LittleEndian, v)
	}
}

func (sw *snapshotWriter) bytes(b []byte) {
	sw.put(uint32(len(b)))
	if sw.err == nil {
		_, sw.err = sw.w.Write(b)
	}
}

// snapshotReader is the counterpart of snapshotWriter
type snapshotReader struct {
	r   *bufio.Reader
	err error
}

func (sr *snapshotReader) get(v any) {
	if sr.err == nil {
		sr.err = binary.Read(sr.r, binary.LittleEndian, v)
	}
}

func (sr *snapshotReader) bytes() []byte {
	var n uint32
	sr.get(&n)
	if sr.err != nil {
		return nil
	}
	if n > maxValueLen {
		sr.err = fmt.Errorf("snapshot field too large: %d bytes", n)
		return nil
	}
	b := make([]byte, n)
	_, sr.err = io.ReadFull(sr.r, b)
	return b
}

// Save persists all live entries to the writer.
// Concurrent writes are allowed while saving, the result is a fuzzy snapshot.
//
// Layout: magic, version (uint8), saved at (uint64), count (uint64), then per entry
// key, deleteAt (uint64), written (uint64) and value. Keys and values are prefixed
// with their uint32 length.
func (maple *mapleImpl) Save(w io.Writer) error {
	now := maple.clock.Load()

	keys := make([]string, 0)
	entries := make([]internal.Entry, 0)
	maple.mu.RLock()
	for _, shard := range maple.shards {
		shard.Data.Range(func(key string, e internal.Entry) bool {
			if e.Live(now) && e.Value != nil {
				keys = append(keys, key)
				entries = append(entries, internal.Entry{Value: append([]byte(nil), e.Value...), DeleteAt: e.DeleteAt, Written: e.Written})
			}
			return true
		})
	}
	maple.mu.RUnlock()

	sw := &snapshotWriter{w: bufio.NewWriterSize(w, 1024*1024)}
	if _, err := sw.w.WriteString(magicNum); err != nil {
		return err
	}
	sw.put(uint8(mapleVersion))
	sw.put(now)
	sw.put(uint64(len(entries)))
	for i, e := range entries {
		sw.bytes([]byte(keys[i]))
		sw.put(e.DeleteAt)
		sw.put(e.Written)
		sw.bytes(e.Value)
	}
	if sw.err != nil {
		return sw.err
	}
	return sw.w.Flush()
}

// Load replaces the database content with the snapshot read from r.
// It blocks all other operations until it is done.
func (maple *mapleImpl) Load(r io.Reader) error {
	sr := &snapshotReader{r: bufio.NewReaderSize(r, 1024*1024)}

	magic := make([]byte, len(magicNum))
	if _, err := io.ReadFull(sr.r, magic); err != nil {
		return err
	}
	if string(magic) != magicNum {
		return fmt.Errorf("invalid file format: magic number mismatch")
	}

	var (
		version uint8
		savedAt uint64
		count   uint64
	)
	sr.get(&version)
	if sr.err == nil && int(version) != mapleVersion {
		return fmt.Errorf("unsupported version: %d (expected %d)", version, mapleVersion)
	}
	sr.get(&savedAt)
	sr.get(&count)
	if sr.err != nil {
		return sr.err
	}

	maple.mu.Lock()
	defer maple.mu.Unlock()

	seed := util.GenerateSeed()
	shards := newShards(len(maple.shards))
	for i := uint64(0); i < count; i++ {
		key := string(sr.bytes())
		var e internal.Entry
		sr.get(&e.DeleteAt)
		sr.get(&e.Written)
		e.Value = sr.bytes()
		if sr.err != nil {
			return fmt.Errorf("entry %d: %w", i, sr.err)
		}
		internal.GetShard(key, seed, shards).Data.Store(key, e)
	}

	maple.seed = seed
	maple.shards = shards
	maple.observe(savedAt)
	return nil
}

// --------------------------------------------------------------------------
// KVDB Interface Implementation - Features
// --------------------------------------------------------------------------

// SupportsFeature checks if this implementation supports a specific KVDB feature
func (maple *mapleImpl) SupportsFeature(feature db.Feature) bool {
	supportedFeatures := db.FeatureSet |
		db.FeatureSetE |
		db.FeatureSetEIfUnset |
		db.FeatureGet |
		db.FeatureDelete |
		db.FeatureHas |
		db.FeatureSave |
		db.FeatureLoad |
		db.FeatureGarbageCollect
	return supportedFeatures&feature == feature
}

// Close stops the garbage collector
func (maple *mapleImpl) Close() error {
	maple.gcOnce.Do(func() {
		close(maple.gcStop)
		<-maple.gcDone
	})
	return nil
}
