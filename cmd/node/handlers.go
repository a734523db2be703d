package node

import (
	"encoding/json"
	"errors"
	"fmt"
	"github.com/ValentinKolb/dSess/lib/manager"
	"github.com/ValentinKolb/dSess/lib/session"
	"github.com/ValentinKolb/dSess/lib/web"
	"github.com/VictoriaMetrics/metrics"
	"github.com/gorilla/mux"
	"github.com/lni/dragonboat/v4/logger"
	"io"
	"net/http"
)

var log = logger.GetLogger("node")

// maxAttributeSize limits the body of PUT /session/{name}
const maxAttributeSize = 64 * 1024

// countEvent is the session listener of the node
func countEvent(e session.Event) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`dsess_session_events_total{type=%q}`, e.Type)).Inc()
	log.Debugf("session %s: %s (cause=%s, local=%v)", e.RealID, e.Type, e.Cause, e.Local)
}

// sessionView is the JSON form of a session
type sessionView struct {
	ID                  string         `json:"id"`
	RealID              string         `json:"realId"`
	Version             uint64         `json:"version"`
	IsNew               bool           `json:"isNew"`
	CreationTime        int64          `json:"creationTime"`
	LastAccessedTime    int64          `json:"lastAccessedTime"`
	MaxInactiveInterval int            `json:"maxInactiveInterval"`
	Attributes          map[string]any `json:"attributes"`
}

func newSessionView(rec *session.Record) (*sessionView, error) {
	created, err := rec.CreationTime()
	if err != nil {
		return nil, err
	}
	accessed, err := rec.LastAccessedTime()
	if err != nil {
		return nil, err
	}
	names, err := rec.AttributeNames()
	if err != nil {
		return nil, err
	}

	v := &sessionView{
		ID:                  rec.ID(),
		RealID:              rec.RealID(),
		Version:             rec.Version(),
		IsNew:               rec.IsNew(),
		CreationTime:        created,
		LastAccessedTime:    accessed,
		MaxInactiveInterval: rec.MaxInactiveInterval(),
		Attributes:          make(map[string]any, len(names)),
	}
	for _, name := range names {
		if v.Attributes[name], err = rec.Get(name); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// NewRouter returns the demo application of a node. Every route except /metrics
// works on the session of the request.
func NewRouter(m *manager.Manager, config web.SessionConfig) http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		metrics.WritePrometheus(w, true)
	}).Methods(http.MethodGet)
	router.HandleFunc("/session", getSession).Methods(http.MethodGet)
	router.HandleFunc("/session/{name}", putAttribute).Methods(http.MethodPut)
	router.HandleFunc("/session/{name}", deleteAttribute).Methods(http.MethodDelete)
	router.HandleFunc("/logout", logout).Methods(http.MethodPost)

	// the middleware wraps the router so path parameters are stripped before matching
	return web.Middleware(m, m.Reconciler(), config)(router)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf8")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warningf("failed to write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, code int, err error) {
	log.Warningf("%s %s: %v", r.Method, r.URL.Path, err)
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func getSession(w http.ResponseWriter, r *http.Request) {
	rec, err := web.GetSession(r, false)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	if rec == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no session"})
		return
	}
	v, err := newSessionView(rec)
	if err != nil {
		writeError(w, r, http.StatusGone, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func putAttribute(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxAttributeSize))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}

	rec, err := web.GetSession(r, true)
	if err != nil {
		if errors.Is(err, manager.ErrTooManyActiveSessions) {
			writeError(w, r, http.StatusServiceUnavailable, err)
		} else {
			writeError(w, r, http.StatusInternalServerError, err)
		}
		return
	}
	if err := rec.Set(mux.Vars(r)["name"], string(body)); err != nil {
		writeError(w, r, http.StatusConflict, err)
		return
	}
	v, err := newSessionView(rec)
	if err != nil {
		writeError(w, r, http.StatusGone, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func deleteAttribute(w http.ResponseWriter, r *http.Request) {
	rec, err := web.GetSession(r, false)
	if err != nil || rec == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no session"})
		return
	}
	if err := rec.Remove(mux.Vars(r)["name"]); err != nil {
		writeError(w, r, http.StatusGone, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func logout(w http.ResponseWriter, r *http.Request) {
	if err := web.Invalidate(r); err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
