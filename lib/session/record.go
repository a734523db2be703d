package session

import (
	"fmt"
	"github.com/lni/dragonboat/v4/logger"
	"sort"
	"sync"
	"time"
)

var log = logger.GetLogger("session")

// DefaultFullReplicationWindow is the time after an ownership handoff during which
// every push carries the complete session state.
const DefaultFullReplicationWindow = 5 * time.Second

// Options configure a Record.
type Options struct {
	Tracker               DirtyTracker     // nil = OnSetAndNonPrimitiveGet
	Clock                 func() time.Time // nil = time.Now
	FullReplicationWindow time.Duration    // <= 0 = DefaultFullReplicationWindow
	MaxInactiveInterval   int              // seconds, <= 0 never expires
	// MaxUnreplicatedInterval is the time in ms after which an access alone causes the
	// timestamp to be replicated. -1 disables it, 0 replicates every access.
	MaxUnreplicatedInterval int64
	// Notify receives attribute events caused by Set and Remove. nil disables them.
	Notify func(Event)
}

// Record is the in-memory state of one session.
//
// All methods are safe for concurrent use. Mutations are only permitted on the node
// that holds ownership of the session, this is enforced by the caller.
type Record struct {
	mu     sync.Mutex
	pushMu sync.Mutex // serializes Replicate

	tracker DirtyTracker
	clock   func() time.Time
	window  time.Duration
	notify  func(Event)

	id     string
	realID string

	creationTime     int64
	lastAccessedTime int64
	thisAccessedTime int64

	maxInactiveInterval     int
	maxUnreplicatedInterval int64

	version   uint64
	isNew     bool
	isValid   bool
	principal string

	attributes map[string]any

	metadataDirty   bool
	attributesDirty bool
	mutations       uint64 // bumped on every change that must be replicated

	fullReplicationRequired bool
	fullReplicationUntil    int64

	lastReplicated      int64 // unix ms of the last successful push
	replicatedTimestamp int64 // Timestamp of the last successful push

	outdatedTime int64
}

func newRecord(id, realID string, opts Options) *Record {
	r := &Record{
		tracker:                 opts.Tracker,
		clock:                   opts.Clock,
		window:                  opts.FullReplicationWindow,
		notify:                  opts.Notify,
		id:                      id,
		realID:                  realID,
		maxInactiveInterval:     opts.MaxInactiveInterval,
		maxUnreplicatedInterval: max(opts.MaxUnreplicatedInterval, -1),
		attributes:              make(map[string]any),
	}
	if r.tracker == nil {
		r.tracker = OnSetAndNonPrimitiveGet
	}
	if r.clock == nil {
		r.clock = time.Now
	}
	if r.window <= 0 {
		r.window = DefaultFullReplicationWindow
	}
	return r
}

// New creates a brand new session. The metadata is dirty so the first push
// announces the session to the cluster.
func New(id, realID string, opts Options) *Record {
	r := newRecord(id, realID, opts)
	now := r.now()
	r.creationTime = now
	r.lastAccessedTime = now
	r.thisAccessedTime = now
	r.isNew = true
	r.isValid = true
	r.metadataDirty = true
	r.mutations = 1
	return r
}

// FromPayload materializes a session that was loaded from the distributed store.
func FromPayload(realID string, p *Payload, opts Options) *Record {
	r := newRecord(p.Metadata.ID, realID, opts)
	r.Update(p)
	return r
}

func (r *Record) now() int64 {
	return r.clock().UnixMilli()
}

// markMetadataDirty expects r.mu to be held
func (r *Record) markMetadataDirty() {
	r.metadataDirty = true
	r.mutations++
}

// markAttributesDirty expects r.mu to be held
func (r *Record) markAttributesDirty() {
	r.attributesDirty = true
	r.mutations++
}

// expired expects r.mu to be held
func (r *Record) expired(now int64) bool {
	if !r.isValid {
		return true
	}
	if r.maxInactiveInterval <= 0 {
		return false
	}
	return now-r.thisAccessedTime >= int64(r.maxInactiveInterval)*1000
}

// --------------------------------------------------------------------------
// Identity
// --------------------------------------------------------------------------

// ID returns the external id, including the route.
func (r *Record) ID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.id
}

// RealID returns the id without route. It never changes.
func (r *Record) RealID() string {
	return r.realID
}

// ResetID replaces the external id after the route changed.
func (r *Record) ResetID(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.id == id {
		return
	}
	r.id = id
	r.markMetadataDirty()
}

// Version returns the version of the last payload pushed or applied.
func (r *Record) Version() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.version
}

// --------------------------------------------------------------------------
// Attributes
// --------------------------------------------------------------------------

// Get returns the attribute value or nil.
func (r *Record) Get(name string) (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.expired(r.now()) {
		return nil, ErrExpiredSession
	}
	v, ok := r.attributes[name]
	if ok && r.tracker.DirtyOnGet(v) {
		r.markAttributesDirty()
	}
	return v, nil
}

// Set stores an attribute. A nil value removes it.
// Values that cannot be replicated are rejected with a *NonReplicableAttributeError.
func (r *Record) Set(name string, value any) error {
	if value == nil {
		return r.Remove(name)
	}
	if err := checkReplicable(value); err != nil {
		return &NonReplicableAttributeError{Name: name, Type: fmt.Sprintf("%T", value), Err: err}
	}

	r.mu.Lock()
	if r.expired(r.now()) {
		r.mu.Unlock()
		return ErrExpiredSession
	}
	old, replaced := r.attributes[name]
	r.attributes[name] = value
	r.markAttributesDirty()
	r.mu.Unlock()

	if replaced {
		r.emit(Event{Type: EventAttributeReplaced, Name: name, Value: value, OldValue: old})
	} else {
		r.emit(Event{Type: EventAttributeAdded, Name: name, Value: value})
	}
	return nil
}

// Remove deletes an attribute.
func (r *Record) Remove(name string) error {
	r.mu.Lock()
	if r.expired(r.now()) {
		r.mu.Unlock()
		return ErrExpiredSession
	}
	old, ok := r.attributes[name]
	if ok {
		delete(r.attributes, name)
		r.markAttributesDirty()
	}
	r.mu.Unlock()

	if ok {
		r.emit(Event{Type: EventAttributeRemoved, Name: name, OldValue: old})
	}
	return nil
}

// emit sends an attribute event caused by a request on this node. r.mu must not be held.
func (r *Record) emit(e Event) {
	if r.notify == nil {
		return
	}
	e.Cause = CauseModify
	e.Local = true
	e.RealID = r.realID
	r.notify(e)
}

// AttributeNames returns the sorted attribute names.
func (r *Record) AttributeNames() ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.expired(r.now()) {
		return nil, ErrExpiredSession
	}
	names := make([]string, 0, len(r.attributes))
	for name := range r.attributes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// --------------------------------------------------------------------------
// Metadata
// --------------------------------------------------------------------------

// CreationTime returns the creation time in unix ms.
func (r *Record) CreationTime() (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.expired(r.now()) {
		return 0, ErrExpiredSession
	}
	return r.creationTime, nil
}

// LastAccessedTime returns the start of the previous request in unix ms.
func (r *Record) LastAccessedTime() (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.expired(r.now()) {
		return 0, ErrExpiredSession
	}
	return r.lastAccessedTime, nil
}

func (r *Record) SetCreationTime(ms int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.creationTime != ms {
		r.creationTime = ms
		r.markMetadataDirty()
	}
}

// MaxInactiveInterval returns the idle timeout in seconds.
func (r *Record) MaxInactiveInterval() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.maxInactiveInterval
}

func (r *Record) SetMaxInactiveInterval(seconds int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.maxInactiveInterval != seconds {
		r.maxInactiveInterval = seconds
		r.markMetadataDirty()
	}
}

func (r *Record) Principal() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.principal
}

func (r *Record) SetPrincipal(principal string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.principal != principal {
		r.principal = principal
		r.markMetadataDirty()
	}
}

// IsNew reports whether the client has not yet joined the session.
func (r *Record) IsNew() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.isNew
}

// IsValid reports whether the session was not invalidated.
func (r *Record) IsValid() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.isValid
}

// IsExpired reports whether the session is invalid or timed out.
func (r *Record) IsExpired() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.expired(r.now())
}

// Invalidate marks the session invalid. Further accessors return ErrExpiredSession.
// It waits for a push in flight, later pushes are skipped.
func (r *Record) Invalidate() {
	r.pushMu.Lock()
	defer r.pushMu.Unlock()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.isValid {
		r.isValid = false
		r.markMetadataDirty()
	}
}

// --------------------------------------------------------------------------
// Request boundaries
// --------------------------------------------------------------------------

// Access marks the start of a request.
func (r *Record) Access() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if r.expired(now) {
		return ErrExpiredSession
	}
	r.lastAccessedTime = r.thisAccessedTime
	r.thisAccessedTime = max(now, r.thisAccessedTime)
	return nil
}

// EndAccess marks the end of a request. If the timestamp has to be replicated
// the metadata is marked dirty.
func (r *Record) EndAccess() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastAccessedTime = r.thisAccessedTime
	r.isNew = false
	if r.mustReplicateTimestamp(r.now()) {
		r.markMetadataDirty()
	}
}

// MustReplicateTimestamp reports whether the last access has to be pushed even if
// nothing else changed.
func (r *Record) MustReplicateTimestamp() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mustReplicateTimestamp(r.now())
}

func (r *Record) mustReplicateTimestamp(now int64) bool {
	if r.lastAccessedTime == r.replicatedTimestamp || r.maxUnreplicatedInterval < 0 {
		return false
	}
	if r.maxUnreplicatedInterval == 0 {
		return true
	}
	// the session would time out elsewhere before the interval elapses
	if r.maxInactiveInterval > 0 && r.maxUnreplicatedInterval > int64(r.maxInactiveInterval)*1000 {
		return true
	}
	return now-r.lastReplicated >= r.maxUnreplicatedInterval
}

// --------------------------------------------------------------------------
// Replication state
// --------------------------------------------------------------------------

// RequireFullReplication forces complete pushes until the full replication window elapsed.
func (r *Record) RequireFullReplication() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requireFullReplication(r.now())
}

func (r *Record) requireFullReplication(now int64) {
	r.fullReplicationRequired = true
	r.fullReplicationUntil = now + r.window.Milliseconds()
}

// fullReplicationNeeded expects r.mu to be held
func (r *Record) fullReplicationNeeded(now int64) bool {
	return r.fullReplicationRequired || (r.fullReplicationUntil > 0 && now < r.fullReplicationUntil)
}

// IsDirty reports whether the session has to be pushed.
func (r *Record) IsDirty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.metadataDirty || r.attributesDirty || r.fullReplicationNeeded(r.now())
}

// SetOutdatedVersion records that the store holds version v.
// Returns true if the local copy is behind.
func (r *Record) SetOutdatedVersion(v uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.version >= v {
		return false
	}
	r.outdatedTime = r.now()
	return true
}

// IsOutdated reports whether a newer version was announced after the last access.
func (r *Record) IsOutdated() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.outdatedTime > 0 && r.thisAccessedTime <= r.outdatedTime
}

// Update overwrites the local state with a payload from the distributed store.
// The next pushes carry the full state.
func (r *Record) Update(p *Payload) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()

	r.version = max(r.version, p.Version)
	r.lastAccessedTime = max(r.lastAccessedTime, p.Timestamp)
	r.thisAccessedTime = max(r.thisAccessedTime, p.Timestamp)
	r.replicatedTimestamp = p.Timestamp

	md := p.Metadata
	if md.ID != "" {
		r.id = md.ID
	}
	r.creationTime = md.CreationTime
	r.maxInactiveInterval = md.MaxInactiveInterval
	r.isNew = md.IsNew
	r.isValid = md.IsValid
	r.principal = md.Principal

	if p.Attributes != nil {
		r.attributes = make(map[string]any, len(p.Attributes))
		for k, v := range p.Attributes {
			r.attributes[k] = v
		}
	}

	// the push time is unknown, the creation time is a conservative guess
	r.lastReplicated = r.creationTime
	r.metadataDirty = false
	r.attributesDirty = false
	r.outdatedTime = 0

	r.requireFullReplication(now)
}

// snapshot builds the next payload. It expects r.mu to be held.
func (r *Record) snapshot(now int64) *Payload {
	full := r.fullReplicationNeeded(now)
	p := &Payload{
		Version:   r.version + 1,
		Timestamp: r.lastAccessedTime,
		Full:      full,
		Metadata: Metadata{
			ID:                  r.id,
			CreationTime:        r.creationTime,
			MaxInactiveInterval: r.maxInactiveInterval,
			IsNew:               r.isNew,
			IsValid:             r.isValid,
			Principal:           r.principal,
		},
	}
	if full || r.attributesDirty {
		p.Attributes = make(map[string]any, len(r.attributes))
		for k, v := range r.attributes {
			p.Attributes[k] = v
		}
	}
	return p
}

// Replicate pushes the session to store. The version is incremented on success.
// Changes made while the push is in flight keep the session dirty.
// On failure the session stays dirty and a *ReplicationPushError is returned.
// An invalidated session is never pushed, it may only be removed.
func (r *Record) Replicate(store Store) error {
	r.pushMu.Lock()
	defer r.pushMu.Unlock()

	r.mu.Lock()
	if !r.isValid {
		r.mu.Unlock()
		log.Debugf("skipped push of invalidated session %s", r.realID)
		return nil
	}
	p := r.snapshot(r.now())
	seen := r.mutations
	r.mu.Unlock()

	if err := store.Put(r.realID, p); err != nil {
		return &ReplicationPushError{RealID: r.realID, Err: err}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.version = max(r.version, p.Version)
	r.lastReplicated = now
	r.replicatedTimestamp = p.Timestamp
	if r.mutations == seen {
		r.metadataDirty = false
		r.attributesDirty = false
	}
	r.fullReplicationRequired = false
	if r.fullReplicationUntil > 0 && now > r.fullReplicationUntil {
		r.fullReplicationUntil = 0
	}

	log.Debugf("replicated session %s version=%d full=%v", r.realID, p.Version, p.Full)
	return nil
}
