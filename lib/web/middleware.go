package web

import (
	"context"
	"errors"
	"github.com/ValentinKolb/dSess/lib/manager"
	"github.com/ValentinKolb/dSess/lib/ownership"
	"github.com/ValentinKolb/dSess/lib/routing"
	"github.com/ValentinKolb/dSess/lib/session"
	"github.com/lni/dragonboat/v4/logger"
	"net/http"
	"sync"
)

var log = logger.GetLogger("web")

// ErrNoSessionSupport is returned when a request did not pass through the Middleware.
var ErrNoSessionSupport = errors.New("request is not handled by the session middleware")

type stateKey struct{}

// requestState is the per request session bookkeeping
type requestState struct {
	m      *manager.Manager
	rc     *routing.Reconciler
	config SessionConfig
	w      http.ResponseWriter
	r      *http.Request

	mu          sync.Mutex
	requestedID string
	rec         *session.Record
	touched     []*session.Record
	rewritten   bool
}

// Middleware binds sessions to requests. The session presented by the client is
// acquired before next runs and released when it returns.
func Middleware(m *manager.Manager, rc *routing.Reconciler, config SessionConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			st := &requestState{m: m, rc: rc, config: config, w: w}
			defer st.end()

			st.requestedID = config.FindSessionID(r)
			if ps, ok := config.(pathStripper); ok && st.requestedID != "" {
				u := *r.URL
				u.Path = ps.StripSessionID(u.Path)
				u.RawPath = ""
				r2 := r.Clone(r.Context())
				r2.URL = &u
				r = r2
			}
			st.r = r

			if st.requestedID != "" {
				if !st.resume(r.Context()) {
					return
				}
			}

			r = r.WithContext(context.WithValue(r.Context(), stateKey{}, st))
			st.r = r
			next.ServeHTTP(w, r)
		})
	}
}

// resume attaches the session presented by the client. It returns false if an error
// response was written.
func (st *requestState) resume(ctx context.Context) bool {
	rec, err := st.m.FindSession(st.requestedID)
	if err != nil {
		log.Warningf("failed to load session %s: %v", st.requestedID, err)
		http.Error(st.w, "session store unavailable", http.StatusInternalServerError)
		return false
	}
	if rec == nil {
		return true
	}

	switch err := st.attach(ctx, rec); {
	case err == nil:
		return true
	case errors.Is(err, session.ErrExpiredSession):
		log.Debugf("session %s expired", rec.RealID())
		return true
	case errors.Is(err, ownership.ErrOwnershipFailed):
		log.Warningf("could not acquire session %s: %v", rec.RealID(), err)
		http.Error(st.w, "session is in use", http.StatusServiceUnavailable)
		return false
	default:
		log.Warningf("failed to access session %s: %v", rec.RealID(), err)
		http.Error(st.w, "session unavailable", http.StatusInternalServerError)
		return false
	}
}

// attach acquires rec for this request and sends a corrected id if needed.
// Expects st.mu not to be held.
func (st *requestState) attach(ctx context.Context, rec *session.Record) error {
	if _, err := st.m.Access(ctx, rec); err != nil {
		return err
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	st.touched = append(st.touched, rec)
	st.rec = rec

	codec := st.m.Codec()
	if st.requestedID == "" || st.rewritten || codec.Decode(st.requestedID) != rec.RealID() {
		return nil
	}
	out := st.rc.Reconcile(st.requestedID, rec)
	id, rewrite := out.ID, out.Rewrite
	if !rewrite {
		if enc, changed := codec.Reencode(st.requestedID); changed && codec.Route(enc) == st.rc.Route() {
			id, rewrite = enc, true
		}
	}
	if rewrite {
		st.rewritten = true
		st.config.SetSessionID(st.w, st.r, id)
	}
	return nil
}

// end releases every session the request touched
func (st *requestState) end() {
	st.mu.Lock()
	touched := st.touched
	st.touched = nil
	st.mu.Unlock()

	for _, rec := range touched {
		st.m.EndAccess(rec)
	}
}

func stateFrom(r *http.Request) (*requestState, error) {
	st, ok := r.Context().Value(stateKey{}).(*requestState)
	if !ok {
		return nil, ErrNoSessionSupport
	}
	return st, nil
}

// --------------------------------------------------------------------------
// Handler API
// --------------------------------------------------------------------------

// GetSession returns the session of the request. If the request has none and create
// is set a new session is created, acquired and sent to the client. Otherwise nil is
// returned.
func GetSession(r *http.Request, create bool) (*session.Record, error) {
	st, err := stateFrom(r)
	if err != nil {
		return nil, err
	}

	st.mu.Lock()
	rec := st.rec
	st.mu.Unlock()
	if rec != nil || !create {
		return rec, nil
	}

	rec, err = st.m.CreateSession(r.Context())
	if err != nil {
		return nil, err
	}
	if err := st.attach(r.Context(), rec); err != nil {
		return nil, err
	}
	st.config.SetSessionID(st.w, r, rec.ID())
	return rec, nil
}

// Invalidate ends the session of the request on the whole cluster and tells the
// client to forget it. It is a no-op if the request has no session.
func Invalidate(r *http.Request) error {
	st, err := stateFrom(r)
	if err != nil {
		return err
	}

	st.mu.Lock()
	rec := st.rec
	st.rec = nil
	if rec != nil {
		kept := st.touched[:0]
		for _, t := range st.touched {
			if t != rec {
				kept = append(kept, t)
			}
		}
		st.touched = kept
	}
	st.mu.Unlock()

	if rec == nil {
		return nil
	}
	st.config.ClearSession(st.w, r, rec.ID())
	return st.m.Invalidate(rec)
}

// EncodeURL returns url carrying the id of the request's session for configs
// that transport ids in urls.
func EncodeURL(r *http.Request, url string) string {
	st, err := stateFrom(r)
	if err != nil {
		return url
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.rec == nil {
		return url
	}
	return st.config.RewriteURL(url, st.rec.ID())
}
