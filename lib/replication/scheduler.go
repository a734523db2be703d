package replication

import (
	"github.com/ValentinKolb/dSess/lib/session"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
	"sync"
	"time"
)

var log = logger.GetLogger("replication")

var (
	pushTotal     = metrics.GetOrCreateCounter(`dsess_replication_push_total`)
	failureTotal  = metrics.GetOrCreateCounter(`dsess_replication_push_failures_total`)
	pushDuration  = metrics.GetOrCreateHistogram(`dsess_replication_push_duration_seconds`)
	batchSizeHist = metrics.GetOrCreateHistogram(`dsess_replication_batch_size`)
)

// DefaultInterval is the tick of the IntervalScheduler.
const DefaultInterval = time.Second

// Source is something that can push itself to the distributed store, usually a *session.Record.
type Source interface {
	RealID() string
	IsDirty() bool
	Replicate(store session.Store) error
}

// Scheduler decides when dirty sessions are pushed.
type Scheduler interface {
	// Start launches background work, if any.
	Start()
	// Stop ends background work and drops everything pending.
	Stop()
	// Enqueue schedules src for replication. Enqueueing the same session twice before
	// it is pushed results in a single push.
	Enqueue(src Source)
	// Cancel drops a pending push of the session, e.g. because it was removed.
	Cancel(realID string)
	// Flush pushes everything pending synchronously.
	Flush()
}

// push replicates src if it is still dirty and reports whether it failed
func push(store session.Store, src Source) bool {
	if !src.IsDirty() {
		return false
	}
	start := time.Now()
	err := src.Replicate(store)
	pushDuration.UpdateDuration(start)
	if err != nil {
		failureTotal.Inc()
		log.Warningf("%v", err)
		return true
	}
	pushTotal.Inc()
	return false
}

// --------------------------------------------------------------------------
// Interval Scheduler
// --------------------------------------------------------------------------

// IntervalScheduler pushes dirty sessions in batches from a single background goroutine.
type IntervalScheduler struct {
	store    session.Store
	interval time.Duration

	mu      sync.Mutex
	pending map[string]Source
	running bool
	stop    chan struct{}
	done    chan struct{}
}

// NewIntervalScheduler creates a stopped scheduler. An interval <= 0 selects DefaultInterval.
func NewIntervalScheduler(store session.Store, interval time.Duration) *IntervalScheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &IntervalScheduler{
		store:    store,
		interval: interval,
		pending:  make(map[string]Source),
	}
}

func (s *IntervalScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.loop(s.stop, s.done)
	log.Infof("replication scheduler started (interval=%s)", s.interval)
}

func (s *IntervalScheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.pending = make(map[string]Source)
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stop)
	done := s.done
	s.mu.Unlock()

	// wait for the current tick
	<-done

	s.mu.Lock()
	dropped := len(s.pending)
	s.pending = make(map[string]Source)
	s.mu.Unlock()
	log.Infof("replication scheduler stopped (%d pending dropped)", dropped)
}

func (s *IntervalScheduler) Enqueue(src Source) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[src.RealID()] = src
}

func (s *IntervalScheduler) Cancel(realID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, realID)
}

func (s *IntervalScheduler) Flush() {
	s.tick()
}

// Pending returns the number of sessions waiting for the next tick.
func (s *IntervalScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *IntervalScheduler) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

// tick swaps the pending set and pushes it without holding the lock.
// Failed sources are queued again unless a newer entry for the same session exists.
func (s *IntervalScheduler) tick() {
	s.mu.Lock()
	batch := s.pending
	s.pending = make(map[string]Source, len(batch))
	s.mu.Unlock()

	if len(batch) == 0 {
		return
	}
	batchSizeHist.Update(float64(len(batch)))

	var failed []Source
	for _, src := range batch {
		if push(s.store, src) {
			failed = append(failed, src)
		}
	}

	if len(failed) == 0 {
		return
	}
	s.mu.Lock()
	for _, src := range failed {
		if _, ok := s.pending[src.RealID()]; !ok {
			s.pending[src.RealID()] = src
		}
	}
	s.mu.Unlock()
}

// --------------------------------------------------------------------------
// Instant Scheduler
// --------------------------------------------------------------------------

// InstantScheduler pushes every session synchronously when it is enqueued.
type InstantScheduler struct {
	store session.Store
}

func NewInstantScheduler(store session.Store) *InstantScheduler {
	return &InstantScheduler{store: store}
}

func (s *InstantScheduler) Start() {}

func (s *InstantScheduler) Stop() {}

func (s *InstantScheduler) Flush() {}

func (s *InstantScheduler) Cancel(string) {}

func (s *InstantScheduler) Enqueue(src Source) {
	push(s.store, src)
}
