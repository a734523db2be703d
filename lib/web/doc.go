// Package web binds sessions to net/http requests.
//
// Middleware resolves the session id presented by the client (cookie or
// ;jsessionid= path parameter), acquires ownership of the session for the
// duration of the request and corrects the id when the session moved to this
// node. Handlers use GetSession and Invalidate:
//
//	h := web.Middleware(m, m.Reconciler(), web.DefaultCookieConfig())(router)
//
//	func handler(w http.ResponseWriter, r *http.Request) {
//		rec, err := web.GetSession(r, true)
//		...
//	}
//
// A request whose session cannot be acquired after one retry is answered with
// 503 Service Unavailable.
package web
