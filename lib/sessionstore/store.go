package sessionstore

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"github.com/ValentinKolb/dSess/lib/session"
	"github.com/ValentinKolb/dSess/lib/store"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"time"
)

var log = logger.GetLogger("session")

const (
	keyPrefix  = "sess/"
	metaSuffix = "/meta"
	attrSuffix = "/attr"
)

// MetaKey returns the store key of the session metadata.
func MetaKey(realID string) string { return keyPrefix + realID + metaSuffix }

// AttrKey returns the store key of the session attributes.
func AttrKey(realID string) string { return keyPrefix + realID + attrSuffix }

// metaRecord is the value stored under MetaKey
type metaRecord struct {
	Version     uint64
	AttrVersion uint64 // version of the payload that last wrote the attributes, 0 = never
	Timestamp   int64
	Metadata    session.Metadata
}

// attrRecord is the value stored under AttrKey
type attrRecord struct {
	Version    uint64
	Attributes map[string]any
}

// cached is the near cache entry of one session
type cached struct {
	version uint64 // attrRecord.Version
	data    []byte // encoded attrRecord
	written time.Time
	ttl     time.Duration
}

// Store implements session.Store over a store.IStore.
type Store struct {
	kv    store.IStore
	cache *xsync.MapOf[string, cached]
	clock func() time.Time
}

// New creates a session store on top of kv.
func New(kv store.IStore) *Store {
	return NewWithClock(kv, time.Now)
}

// NewWithClock is like New but reads the time from clock.
func NewWithClock(kv store.IStore, clock func() time.Time) *Store {
	return &Store{
		kv:    kv,
		cache: xsync.NewMapOf[string, cached](),
		clock: clock,
	}
}

// TTL returns how long the store keeps a session with the given max inactive interval.
// Sessions that never expire are stored without ttl.
func TTL(maxInactiveInterval int) time.Duration {
	if maxInactiveInterval <= 0 {
		return 0
	}
	return 2 * time.Duration(maxInactiveInterval) * time.Second
}

func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decode(data []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}

// Put writes the attributes (if the payload carries them) before the metadata, so a reader
// that sees the new metadata never sees older attributes.
func (s *Store) Put(realID string, p *session.Payload) error {
	ttl := TTL(p.Metadata.MaxInactiveInterval)
	now := s.clock()

	var attrVersion uint64
	if p.Attributes != nil {
		data, err := encode(attrRecord{Version: p.Version, Attributes: p.Attributes})
		if err != nil {
			return fmt.Errorf("encode attributes of %s: %w", realID, err)
		}
		if err := s.kv.SetE(AttrKey(realID), data, ttl); err != nil {
			return err
		}
		s.cache.Store(realID, cached{version: p.Version, data: data, written: now, ttl: ttl})
		attrVersion = p.Version
	} else {
		v, err := s.previousAttrVersion(realID, ttl, now)
		if err != nil {
			return err
		}
		attrVersion = v
	}

	data, err := encode(metaRecord{
		Version:     p.Version,
		AttrVersion: attrVersion,
		Timestamp:   p.Timestamp,
		Metadata:    p.Metadata,
	})
	if err != nil {
		return fmt.Errorf("encode metadata of %s: %w", realID, err)
	}
	return s.kv.SetE(MetaKey(realID), data, ttl)
}

// previousAttrVersion finds the attribute version for a metadata only push.
// The attribute key is rewritten from the near cache when half of its ttl has passed,
// so it does not expire before the metadata.
func (s *Store) previousAttrVersion(realID string, ttl time.Duration, now time.Time) (uint64, error) {
	if c, ok := s.cache.Load(realID); ok {
		if c.ttl != ttl || (ttl > 0 && now.Sub(c.written) >= ttl/2) {
			if err := s.kv.SetE(AttrKey(realID), c.data, ttl); err != nil {
				return 0, err
			}
			c.written, c.ttl = now, ttl
			s.cache.Store(realID, c)
		}
		return c.version, nil
	}

	data, ok, err := s.kv.Get(MetaKey(realID))
	if err != nil || !ok {
		return 0, err
	}
	var old metaRecord
	if err := decode(data, &old); err != nil {
		return 0, fmt.Errorf("decode metadata of %s: %w", realID, err)
	}
	return old.AttrVersion, nil
}

// Get loads the latest payload of a session. It returns nil if the session is unknown.
// The returned payload always carries the attributes.
func (s *Store) Get(realID string) (*session.Payload, error) {
	data, ok, err := s.kv.Get(MetaKey(realID))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	var meta metaRecord
	if err := decode(data, &meta); err != nil {
		return nil, fmt.Errorf("decode metadata of %s: %w", realID, err)
	}

	attrs, err := s.attributes(realID, meta.AttrVersion)
	if err != nil {
		return nil, err
	}

	return &session.Payload{
		Version:    meta.Version,
		Timestamp:  meta.Timestamp,
		Full:       true,
		Metadata:   meta.Metadata,
		Attributes: attrs,
	}, nil
}

func (s *Store) attributes(realID string, version uint64) (map[string]any, error) {
	if version == 0 {
		return map[string]any{}, nil
	}

	raw, fromCache := []byte(nil), false
	if c, ok := s.cache.Load(realID); ok && c.version == version {
		raw, fromCache = c.data, true
	} else {
		data, ok, err := s.kv.Get(AttrKey(realID))
		if err != nil {
			return nil, err
		}
		if !ok {
			log.Warningf("attributes of session %s (version %d) are missing", realID, version)
			return map[string]any{}, nil
		}
		raw = data
	}

	var rec attrRecord
	if err := decode(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode attributes of %s: %w", realID, err)
	}
	if !fromCache {
		// ttl unknown, the next metadata only push rewrites the key
		s.cache.Store(realID, cached{version: rec.Version, data: raw, written: s.clock(), ttl: -1})
	}
	if rec.Attributes == nil {
		rec.Attributes = map[string]any{}
	}
	return rec.Attributes, nil
}

// Remove deletes the session from the cluster and from the near cache.
func (s *Store) Remove(realID string) error {
	s.cache.Delete(realID)
	if err := s.kv.Delete(MetaKey(realID)); err != nil {
		return err
	}
	return s.kv.Delete(AttrKey(realID))
}

// RemoveLocal evicts the session from the near cache only.
func (s *Store) RemoveLocal(realID string) error {
	s.cache.Delete(realID)
	return nil
}

// Cached returns the number of sessions in the near cache.
func (s *Store) Cached() int {
	return s.cache.Size()
}
