package node

import (
	"encoding/json"
	"github.com/ValentinKolb/dSess/lib/db"
	"github.com/ValentinKolb/dSess/lib/db/engines/maple"
	"github.com/ValentinKolb/dSess/lib/manager"
	"github.com/ValentinKolb/dSess/lib/sessionstore"
	"github.com/ValentinKolb/dSess/lib/store/lstore"
	"github.com/ValentinKolb/dSess/lib/web"
	"github.com/VictoriaMetrics/metrics"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	cfg := manager.DefaultConfig()
	cfg.Route = "node1"
	cfg.SnapshotMode = manager.SnapshotModeInstant
	kv := lstore.NewLocalStore(func() db.KVDB { return maple.NewMapleDB(nil) })
	m := manager.New(cfg, sessionstore.New(kv), nil, nil)
	m.Open()
	t.Cleanup(func() { _ = m.Close() })
	return NewRouter(m, web.DefaultCookieConfig())
}

func serve(h http.Handler, method, path, body string, cookie *http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func sessionCookie(rr *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rr.Result().Cookies() {
		if c.Name == web.DefaultCookieName {
			return &http.Cookie{Name: c.Name, Value: c.Value}
		}
	}
	return nil
}

func TestDemoRoutes(t *testing.T) {
	h := newTestRouter(t)

	if rr := serve(h, http.MethodGet, "/session", "", nil); rr.Code != http.StatusNotFound {
		t.Errorf("GET /session without session = %d, want 404", rr.Code)
	}

	rr := serve(h, http.MethodPut, "/session/cart", "sku42", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("PUT /session/cart = %d: %s", rr.Code, rr.Body)
	}
	cookie := sessionCookie(rr)
	if cookie == nil || !strings.HasSuffix(cookie.Value, ".node1") {
		t.Fatalf("PUT did not set a routed session cookie: %v", cookie)
	}

	rr = serve(h, http.MethodGet, "/session", "", cookie)
	var v sessionView
	if err := json.NewDecoder(rr.Body).Decode(&v); err != nil {
		t.Fatalf("GET /session returned invalid json: %v", err)
	}
	if v.ID != cookie.Value || v.Attributes["cart"] != "sku42" || v.IsNew {
		t.Errorf("GET /session = %+v", v)
	}

	if rr := serve(h, http.MethodDelete, "/session/cart", "", cookie); rr.Code != http.StatusNoContent {
		t.Errorf("DELETE /session/cart = %d", rr.Code)
	}
	rr = serve(h, http.MethodGet, "/session", "", cookie)
	v = sessionView{}
	_ = json.NewDecoder(rr.Body).Decode(&v)
	if _, ok := v.Attributes["cart"]; ok {
		t.Errorf("cart still present after DELETE")
	}

	if rr := serve(h, http.MethodPost, "/logout", "", cookie); rr.Code != http.StatusNoContent {
		t.Errorf("POST /logout = %d", rr.Code)
	}
	if rr := serve(h, http.MethodGet, "/session", "", cookie); rr.Code != http.StatusNotFound {
		t.Errorf("GET /session after logout = %d, want 404", rr.Code)
	}
}

func TestMetricsRoute(t *testing.T) {
	h := newTestRouter(t)
	serve(h, http.MethodPut, "/session/a", "1", nil)

	rr := serve(h, http.MethodGet, "/metrics", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("GET /metrics = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "dsess_sessions_created_total") {
		t.Errorf("metrics do not contain the session counter")
	}
}

func TestEventsAreCounted(t *testing.T) {
	cfg := manager.DefaultConfig()
	cfg.Route = "node1"
	cfg.SnapshotMode = manager.SnapshotModeInstant
	kv := lstore.NewLocalStore(func() db.KVDB { return maple.NewMapleDB(nil) })
	m := manager.New(cfg, sessionstore.New(kv), nil, nil)
	m.AddListener(countEvent)
	m.Open()
	t.Cleanup(func() { _ = m.Close() })
	h := NewRouter(m, web.DefaultCookieConfig())

	created := metrics.GetOrCreateCounter(`dsess_session_events_total{type="created"}`)
	added := metrics.GetOrCreateCounter(`dsess_session_events_total{type="attribute_added"}`)
	createdBefore, addedBefore := created.Get(), added.Get()

	if rr := serve(h, http.MethodPut, "/session/cart", "sku42", nil); rr.Code != http.StatusOK {
		t.Fatalf("PUT /session/cart = %d: %s", rr.Code, rr.Body)
	}
	if got := created.Get() - createdBefore; got != 1 {
		t.Errorf("created events = %d, want 1", got)
	}
	if got := added.Get() - addedBefore; got != 1 {
		t.Errorf("attribute_added events = %d, want 1", got)
	}
}
