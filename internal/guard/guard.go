// Package guard admits, holds or redirects navigation based on session state.
package guard

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/bookstore-admin/console/internal/platform/httpx"
	"github.com/bookstore-admin/console/internal/session"
)

// State is the guard's view of the session.
type State int

const (
	// StateChecking means the session is still being restored.
	StateChecking State = iota
	// StateAuthenticated means a token and user are present.
	StateAuthenticated
	// StateUnauthenticated means there is no usable session.
	StateUnauthenticated
)

func (s State) String() string {
	switch s {
	case StateChecking:
		return "checking"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unauthenticated"
	}
}

// Decision is what the guard does with a protected view.
type Decision int

const (
	// DecisionPlaceholder renders a neutral placeholder.
	DecisionPlaceholder Decision = iota
	// DecisionRender renders the protected view.
	DecisionRender
	// DecisionRedirect sends the client to the login entry point.
	DecisionRedirect
)

// SessionState is the part of the session the guard reads.
type SessionState interface {
	IsLoading() bool
	IsAuthenticated() bool
}

// Evaluate maps session state to a guard State.
func Evaluate(s SessionState) State {
	switch {
	case s == nil:
		return StateUnauthenticated
	case s.IsLoading():
		return StateChecking
	case s.IsAuthenticated():
		return StateAuthenticated
	default:
		return StateUnauthenticated
	}
}

// Decide maps a State to a Decision.
func Decide(state State) Decision {
	switch state {
	case StateChecking:
		return DecisionPlaceholder
	case StateAuthenticated:
		return DecisionRender
	default:
		return DecisionRedirect
	}
}

// Guard protects handlers behind the session.
type Guard struct {
	LoginPath string
	Logger    *slog.Logger
}

// Require admits the request only when the session in context is authenticated.
func (g Guard) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var state SessionState
		if store := session.FromContext(r.Context()); store != nil {
			state = store
		}
		switch Decide(Evaluate(state)) {
		case DecisionRender:
			next.ServeHTTP(w, r)
		case DecisionPlaceholder:
			w.Header().Set("Retry-After", "1")
			w.Header().Set("Cache-Control", "no-store")
			http.Error(w, "Loading", http.StatusServiceUnavailable)
		default:
			if g.Logger != nil {
				g.Logger.Debug("guard redirect", slog.String("path", r.URL.Path))
			}
			RedirectToLogin(w, r, g.LoginPath)
		}
	})
}

// RedirectToLogin sends the client to loginPath. JSON clients receive a 401
// problem document instead of a redirect. GET requests keep the attempted
// path in the next parameter.
func RedirectToLogin(w http.ResponseWriter, r *http.Request, loginPath string) {
	if wantsJSON(r) {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
		return
	}
	target := loginPath
	if r.Method == http.MethodGet && r.URL.Path != loginPath {
		target += "?" + url.Values{"next": {r.URL.RequestURI()}}.Encode()
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// SafeNext returns next when it is a local absolute path, otherwise fallback.
func SafeNext(next, fallback string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.Contains(next, `\`) {
		return fallback
	}
	return next
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}
