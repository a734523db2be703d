package web

import (
	"net/http"
	"strings"
)

// SessionConfig moves the session id between the client and the server.
type SessionConfig interface {
	// FindSessionID returns the id presented by the request or "".
	FindSessionID(r *http.Request) string
	// SetSessionID sends id to the client.
	SetSessionID(w http.ResponseWriter, r *http.Request, id string)
	// ClearSession tells the client to forget id.
	ClearSession(w http.ResponseWriter, r *http.Request, id string)
	// RewriteURL returns url carrying id, if the config transports ids in urls.
	RewriteURL(url string, id string) string
}

// pathStripper is implemented by configs that have to remove the id from the
// request path before the application routes it.
type pathStripper interface {
	StripSessionID(path string) string
}

// --------------------------------------------------------------------------
// Cookies
// --------------------------------------------------------------------------

const DefaultCookieName = "JSESSIONID"

// CookieConfig carries the session id in a cookie.
type CookieConfig struct {
	Name     string
	Path     string
	Domain   string
	Secure   bool
	HTTPOnly bool
	MaxAge   int // seconds, 0 = session cookie
	SameSite http.SameSite
}

func DefaultCookieConfig() *CookieConfig {
	return &CookieConfig{
		Name:     DefaultCookieName,
		Path:     "/",
		HTTPOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

func (c *CookieConfig) cookie(value string) *http.Cookie {
	return &http.Cookie{
		Name:     c.Name,
		Value:    value,
		Path:     c.Path,
		Domain:   c.Domain,
		Secure:   c.Secure,
		HttpOnly: c.HTTPOnly,
		MaxAge:   c.MaxAge,
		SameSite: c.SameSite,
	}
}

func (c *CookieConfig) FindSessionID(r *http.Request) string {
	ck, err := r.Cookie(c.Name)
	if err != nil {
		return ""
	}
	return ck.Value
}

func (c *CookieConfig) SetSessionID(w http.ResponseWriter, _ *http.Request, id string) {
	http.SetCookie(w, c.cookie(id))
}

func (c *CookieConfig) ClearSession(w http.ResponseWriter, _ *http.Request, _ string) {
	ck := c.cookie("")
	ck.MaxAge = -1
	http.SetCookie(w, ck)
}

// RewriteURL returns url unchanged, the cookie carries the id.
func (c *CookieConfig) RewriteURL(url string, _ string) string {
	return url
}

// --------------------------------------------------------------------------
// Path parameters
// --------------------------------------------------------------------------

const DefaultPathParameterName = "jsessionid"

// PathParameterConfig carries the session id as a path parameter, e.g.
// /cart;jsessionid=abc.nodeA?page=2
type PathParameterConfig struct {
	Name string
}

func DefaultPathParameterConfig() *PathParameterConfig {
	return &PathParameterConfig{Name: DefaultPathParameterName}
}

func (c *PathParameterConfig) marker() string {
	return ";" + c.Name + "="
}

// split returns the path without the parameter and the parameter value
func (c *PathParameterConfig) split(path string) (string, string) {
	i := strings.Index(path, c.marker())
	if i < 0 {
		return path, ""
	}
	rest := path[i+len(c.marker()):]
	end := strings.IndexAny(rest, ";/")
	if end < 0 {
		return path[:i], rest
	}
	return path[:i] + rest[end:], rest[:end]
}

func (c *PathParameterConfig) FindSessionID(r *http.Request) string {
	_, id := c.split(r.URL.Path)
	return id
}

// SetSessionID is a no-op. The application sends the id through RewriteURL.
func (c *PathParameterConfig) SetSessionID(http.ResponseWriter, *http.Request, string) {}

func (c *PathParameterConfig) ClearSession(http.ResponseWriter, *http.Request, string) {}

// StripSessionID removes the parameter from path.
func (c *PathParameterConfig) StripSessionID(path string) string {
	p, _ := c.split(path)
	return p
}

// RewriteURL appends the parameter to the path of url, replacing an existing one.
// Query and fragment are kept.
func (c *PathParameterConfig) RewriteURL(url string, id string) string {
	suffix := ""
	if i := strings.IndexAny(url, "?#"); i >= 0 {
		url, suffix = url[:i], url[i:]
	}
	url = c.StripSessionID(url)
	if id == "" {
		return url + suffix
	}
	return url + c.marker() + id + suffix
}
