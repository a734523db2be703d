package manager

import (
	"context"
	"errors"
	"github.com/ValentinKolb/dSess/lib/ownership"
	"github.com/ValentinKolb/dSess/lib/replication"
	"github.com/ValentinKolb/dSess/lib/routing"
	"github.com/ValentinKolb/dSess/lib/session"
	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"sort"
	"sync"
	"time"
)

var log = logger.GetLogger("manager")

// ErrTooManyActiveSessions is returned by CreateSession when MaxActiveSessions is reached.
var ErrTooManyActiveSessions = errors.New("too many active sessions")

var (
	createdTotal  = metrics.GetOrCreateCounter(`dsess_sessions_created_total`)
	expiredTotal  = metrics.GetOrCreateCounter(`dsess_sessions_expired_total`)
	rejectedTotal = metrics.GetOrCreateCounter(`dsess_sessions_rejected_total`)
	loadedTotal   = metrics.GetOrCreateCounter(`dsess_sessions_loaded_total`)
	activeGauge   = metrics.GetOrCreateCounter(`dsess_sessions_active`)

	passivatedTotal = metrics.GetOrCreateCounter(`dsess_sessions_passivated_total`)
	passivatedGauge = metrics.GetOrCreateCounter(`dsess_sessions_passivated`)
)

// Manager owns the sessions of one node and wires the engine together.
type Manager struct {
	cfg        Config
	store      session.Store
	coord      *ownership.Coordinator
	scheduler  replication.Scheduler
	codec      *routing.Codec
	reconciler *routing.Reconciler

	sessions   *xsync.MapOf[string, *session.Record]
	passivated *xsync.MapOf[string, int64] // realId -> unix ms of the passivation
	opts       session.Options

	policy      session.NotificationPolicy
	listenersMu sync.RWMutex
	listeners   []session.Listener

	mu     sync.Mutex
	opened bool
	stop   chan struct{}
	done   chan struct{}
}

// New creates a manager. locks is only used in distributed mode and may be nil otherwise.
// A nil affinity routes every session to cfg.Route.
func New(cfg Config, store session.Store, locks ownership.LockSupport, affinity routing.AffinityProvider) *Manager {
	def := DefaultConfig()
	if cfg.SnapshotInterval <= 0 {
		cfg.SnapshotInterval = def.SnapshotInterval
	}
	if cfg.FullReplicationWindow <= 0 {
		cfg.FullReplicationWindow = def.FullReplicationWindow
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = def.LockTimeout
	}
	if cfg.ExpirationInterval <= 0 {
		cfg.ExpirationInterval = def.ExpirationInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if !cfg.Distributed {
		locks = nil
	}
	if affinity == nil {
		affinity = routing.StaticAffinity(cfg.Route)
	}

	var sched replication.Scheduler
	if cfg.SnapshotMode == SnapshotModeInstant {
		sched = replication.NewInstantScheduler(store)
	} else {
		sched = replication.NewIntervalScheduler(store, cfg.SnapshotInterval)
	}

	policy := cfg.NotificationPolicy
	if policy == nil {
		policy = session.NotifyLocal
	}

	codec := routing.NewCodec(affinity)
	m := &Manager{
		cfg:        cfg,
		store:      store,
		coord:      ownership.NewCoordinator(locks, store, cfg.LockTimeout),
		scheduler:  sched,
		codec:      codec,
		reconciler: routing.NewReconciler(codec, cfg.Route),
		sessions:   xsync.NewMapOf[string, *session.Record](),
		passivated: xsync.NewMapOf[string, int64](),
		policy:     policy,
	}
	m.opts = cfg.sessionOptions()
	m.opts.Notify = m.notify
	return m
}

// Open starts replication and the expiration of idle sessions.
func (m *Manager) Open() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.opened {
		return
	}
	m.opened = true
	m.scheduler.Start()
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	go m.expirationLoop(m.stop, m.done)
	log.Infof("session manager opened (route=%q, distributed=%v)", m.cfg.Route, m.cfg.Distributed)
}

// Close stops background work and pushes every dirty session.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.opened {
		m.opened = false
		close(m.stop)
		<-m.done
	}
	m.mu.Unlock()

	m.scheduler.Flush()
	m.scheduler.Stop()

	var errs []error
	m.sessions.Range(func(_ string, rec *session.Record) bool {
		if rec.IsValid() && rec.IsDirty() {
			if err := rec.Replicate(m.store); err != nil {
				errs = append(errs, err)
			}
		}
		return true
	})
	log.Infof("session manager closed (%d sessions)", m.sessions.Size())
	return errors.Join(errs...)
}

func (m *Manager) expirationLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(m.cfg.ExpirationInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if n := m.ProcessExpires(context.Background()); n > 0 {
				log.Infof("expired %d sessions", n)
			}
			if n := m.ProcessPassivation(context.Background()); n > 0 {
				log.Infof("passivated %d sessions", n)
			}
		}
	}
}

// --------------------------------------------------------------------------
// Lookup
// --------------------------------------------------------------------------

// CreateSession creates a new session owned by this node. Its id carries the route of
// this node, the request that creates a session is always served here.
// If MaxActiveSessions is reached, idle sessions are passivated first.
// The caller has to Access it before use.
func (m *Manager) CreateSession(ctx context.Context) (*session.Record, error) {
	if m.full() && m.cfg.PassivationMinIdleTime > 0 {
		m.ProcessPassivation(ctx)
	}
	if m.full() {
		rejectedTotal.Inc()
		return nil, ErrTooManyActiveSessions
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	realID := uuid.NewString()
	id := m.codec.Encode(realID)
	if m.cfg.Route != "" {
		id = m.codec.EncodeWithRoute(realID, m.cfg.Route)
	}
	rec := session.New(id, realID, m.opts)
	m.sessions.Store(realID, rec)
	createdTotal.Inc()
	activeGauge.Inc()
	log.Debugf("created session %s", rec.ID())
	m.notify(session.Event{Type: session.EventCreated, Cause: session.CauseCreate, Local: true, RealID: realID})
	return rec, nil
}

func (m *Manager) full() bool {
	return m.cfg.MaxActiveSessions >= 0 && m.sessions.Size() >= m.cfg.MaxActiveSessions
}

// FindSession returns the session with the given external id, loading it from the
// distributed store if this node does not know it or its copy is outdated.
// It returns nil if the session does not exist.
func (m *Manager) FindSession(id string) (*session.Record, error) {
	realID := m.codec.Decode(id)
	if realID == "" {
		return nil, nil
	}

	if rec, ok := m.sessions.Load(realID); ok {
		if !rec.IsOutdated() {
			return rec, nil
		}
		p, err := m.store.Get(realID)
		if err != nil {
			return nil, err
		}
		if p == nil || !p.Metadata.IsValid {
			m.dropRemote(rec)
			return nil, nil
		}
		rec.Update(p)
		return rec, nil
	}

	p, err := m.store.Get(realID)
	if err != nil {
		return nil, err
	}
	if p == nil || !p.Metadata.IsValid {
		m.forgetPassivated(realID)
		return nil, nil
	}
	rec, loaded := m.sessions.LoadOrStore(realID, session.FromPayload(realID, p, m.opts))
	if !loaded {
		loadedTotal.Inc()
		activeGauge.Inc()
		m.notify(session.Event{Type: session.EventActivated, Cause: session.CauseActivation, Local: m.forgetPassivated(realID), RealID: realID})
	}
	return rec, nil
}

// --------------------------------------------------------------------------
// Request boundaries
// --------------------------------------------------------------------------

// Access acquires ownership of the session for a request (retrying once) and marks it
// accessed. An expired session is removed and ErrExpiredSession is returned. So is a
// session that another node removed, its local copy is dropped.
func (m *Manager) Access(ctx context.Context, rec *session.Record) (ownership.LockResult, error) {
	res, err := m.coord.AcquireWithRetry(ctx, rec)
	if err != nil {
		if errors.Is(err, session.ErrExpiredSession) {
			m.dropRemote(rec)
		}
		return res, err
	}
	if err := rec.Access(); err != nil {
		if errors.Is(err, session.ErrExpiredSession) {
			m.remove(rec, session.CauseTimeout)
		} else {
			_ = m.coord.Release(rec.RealID(), false)
		}
		return res, err
	}
	return res, nil
}

// EndAccess ends a request. Dirty sessions are scheduled for replication before the
// ownership is released.
func (m *Manager) EndAccess(rec *session.Record) {
	rec.EndAccess()
	if rec.IsValid() && rec.IsDirty() {
		m.scheduler.Enqueue(rec)
	}
	_ = m.coord.Release(rec.RealID(), false)
}

// Invalidate ends the session on the whole cluster. The caller must hold ownership,
// which is released.
func (m *Manager) Invalidate(rec *session.Record) error {
	rec.Invalidate()
	return m.remove(rec, session.CauseInvalidate)
}

// remove drops a session that this node owns from the cluster and releases ownership
func (m *Manager) remove(rec *session.Record, cause session.Cause) error {
	realID := rec.RealID()
	removed := m.removeLocal(realID)
	err := m.store.Remove(realID)
	if err != nil {
		log.Warningf("failed to remove session %s from the store: %v", realID, err)
	}
	_ = m.coord.Release(realID, true)
	if removed {
		m.notify(session.Event{Type: session.EventDestroyed, Cause: cause, Local: true, RealID: realID})
	}
	return err
}

// dropRemote drops the local copy of a session another node removed
func (m *Manager) dropRemote(rec *session.Record) {
	realID := rec.RealID()
	rec.Invalidate()
	removed := m.removeLocal(realID)
	_ = m.store.RemoveLocal(realID)
	if removed {
		log.Debugf("dropped session %s removed by another node", realID)
		m.notify(session.Event{Type: session.EventDestroyed, Cause: session.CauseInvalidate, RealID: realID})
	}
}

// removeLocal forgets the session and any push still pending for it
func (m *Manager) removeLocal(realID string) bool {
	m.scheduler.Cancel(realID)
	if _, ok := m.sessions.LoadAndDelete(realID); ok {
		activeGauge.Dec()
		return true
	}
	return false
}

// --------------------------------------------------------------------------
// Cluster notifications
// --------------------------------------------------------------------------

// NotifyRemoteInvalidation drops the local copy of a session another node removed.
func (m *Manager) NotifyRemoteInvalidation(realID string) {
	if rec, ok := m.sessions.Load(realID); ok {
		m.dropRemote(rec)
		return
	}
	_ = m.store.RemoveLocal(realID)
	m.forgetPassivated(realID)
}

// SessionChanged tells the manager that another node pushed version of a session.
// The local copy is reloaded on its next lookup.
func (m *Manager) SessionChanged(realID string, version uint64) {
	if rec, ok := m.sessions.Load(realID); ok {
		if rec.SetOutdatedVersion(version) {
			log.Debugf("session %s is outdated (remote version %d)", realID, version)
		}
	}
}

// ProcessExpires removes every local session that timed out. Each removal happens under
// ownership, a session another node accessed in the meantime survives.
func (m *Manager) ProcessExpires(ctx context.Context) int {
	var candidates []*session.Record
	m.sessions.Range(func(_ string, rec *session.Record) bool {
		if rec.IsExpired() {
			candidates = append(candidates, rec)
		}
		return true
	})

	removed := 0
	for _, rec := range candidates {
		realID := rec.RealID()
		if _, err := m.coord.AcquireWithRetry(ctx, rec); err != nil {
			if errors.Is(err, session.ErrExpiredSession) {
				m.dropRemote(rec)
				continue
			}
			log.Warningf("failed to expire session %s: %v", realID, err)
			continue
		}
		expired := rec.IsExpired()
		if expired {
			m.removeLocal(realID)
			if err := m.store.Remove(realID); err != nil {
				log.Warningf("failed to remove expired session %s: %v", realID, err)
			}
			removed++
			expiredTotal.Inc()
		}
		_ = m.coord.Release(realID, expired)
		if expired {
			m.notify(session.Event{Type: session.EventDestroyed, Cause: session.CauseTimeout, Local: true, RealID: realID})
		}
	}
	return removed
}

// --------------------------------------------------------------------------
// Passivation
// --------------------------------------------------------------------------

// ProcessPassivation evicts idle sessions from memory. Their state stays in the
// distributed store and is loaded again on the next lookup. A session idle for
// PassivationMaxIdleTime is always evicted. While MaxActiveSessions is reached, sessions
// idle for PassivationMinIdleTime are evicted too, the longest idle first.
func (m *Manager) ProcessPassivation(ctx context.Context) int {
	m.prunePassivated()

	maxIdle, minIdle := m.cfg.PassivationMaxIdleTime.Milliseconds(), m.cfg.PassivationMinIdleTime.Milliseconds()
	if maxIdle <= 0 && minIdle <= 0 {
		return 0
	}

	type candidate struct {
		rec  *session.Record
		idle int64
	}
	now := m.cfg.Clock().UnixMilli()
	var candidates []candidate
	m.sessions.Range(func(_ string, rec *session.Record) bool {
		if last, err := rec.LastAccessedTime(); err == nil {
			candidates = append(candidates, candidate{rec: rec, idle: now - last})
		}
		return true
	})
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].idle > candidates[j].idle })

	passivated := 0
	for _, c := range candidates {
		threshold := int64(-1)
		switch {
		case maxIdle > 0 && c.idle >= maxIdle:
			threshold = maxIdle
		case minIdle > 0 && c.idle >= minIdle && m.full():
			threshold = minIdle
		}
		if threshold < 0 {
			continue
		}
		if m.passivate(ctx, c.rec, threshold) {
			passivated++
		}
	}
	return passivated
}

// passivate evicts rec if it is still idle for threshold ms once ownership is held
func (m *Manager) passivate(ctx context.Context, rec *session.Record, threshold int64) bool {
	realID := rec.RealID()
	if _, err := m.coord.AcquireWithRetry(ctx, rec); err != nil {
		if errors.Is(err, session.ErrExpiredSession) {
			m.dropRemote(rec)
		} else {
			log.Warningf("failed to passivate session %s: %v", realID, err)
		}
		return false
	}
	defer m.coord.Release(realID, false)

	last, err := rec.LastAccessedTime()
	if err != nil || m.cfg.Clock().UnixMilli()-last < threshold {
		return false
	}
	if rec.IsDirty() {
		if err := rec.Replicate(m.store); err != nil {
			log.Warningf("failed to push session %s before passivation: %v", realID, err)
			return false
		}
	}
	if !m.removeLocal(realID) {
		return false
	}
	_ = m.store.RemoveLocal(realID)
	if _, loaded := m.passivated.LoadOrStore(realID, m.cfg.Clock().UnixMilli()); !loaded {
		passivatedGauge.Inc()
	}
	passivatedTotal.Inc()
	log.Debugf("passivated session %s", realID)
	m.notify(session.Event{Type: session.EventPassivated, Cause: session.CausePassivation, Local: true, RealID: realID})
	return true
}

// forgetPassivated reports whether realID was passivated by this node
func (m *Manager) forgetPassivated(realID string) bool {
	if _, ok := m.passivated.LoadAndDelete(realID); ok {
		passivatedGauge.Dec()
		return true
	}
	return false
}

// prunePassivated forgets passivated sessions that must have expired by now
func (m *Manager) prunePassivated() {
	if m.cfg.MaxInactiveInterval <= 0 {
		return
	}
	deadline := m.cfg.Clock().UnixMilli() - int64(m.cfg.MaxInactiveInterval)*1000
	m.passivated.Range(func(realID string, at int64) bool {
		if at < deadline {
			m.forgetPassivated(realID)
		}
		return true
	})
}

// --------------------------------------------------------------------------
// Events
// --------------------------------------------------------------------------

// AddListener registers a listener for session events. Events are filtered by the
// NotificationPolicy of the Config.
func (m *Manager) AddListener(l session.Listener) {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()
	listeners := make([]session.Listener, len(m.listeners), len(m.listeners)+1)
	copy(listeners, m.listeners)
	m.listeners = append(listeners, l)
}

func (m *Manager) notify(e session.Event) {
	if !m.policy.Allowed(e) {
		return
	}
	m.listenersMu.RLock()
	listeners := m.listeners
	m.listenersMu.RUnlock()
	for _, l := range listeners {
		l(e)
	}
}

// --------------------------------------------------------------------------
// Accessors
// --------------------------------------------------------------------------

// ActiveSessions returns the number of sessions known to this node.
func (m *Manager) ActiveSessions() int {
	return m.sessions.Size()
}

// PassivatedSessions returns the number of sessions this node evicted that were not
// loaded again yet.
func (m *Manager) PassivatedSessions() int {
	return m.passivated.Size()
}

func (m *Manager) Codec() *routing.Codec {
	return m.codec
}

func (m *Manager) Reconciler() *routing.Reconciler {
	return m.reconciler
}

func (m *Manager) Config() Config {
	return m.cfg
}
