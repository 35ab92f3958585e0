package guard

import (
	"context"
	"net/http"
	"sync"
)

// Navigation records that the current request must end at the login view.
type Navigation struct {
	mu     sync.Mutex
	forced bool
}

// ForceLogin marks the request for a login redirect.
func (n *Navigation) ForceLogin() {
	if n == nil {
		return
	}
	n.mu.Lock()
	n.forced = true
	n.mu.Unlock()
}

// Forced reports whether ForceLogin was called.
func (n *Navigation) Forced() bool {
	if n == nil {
		return false
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.forced
}

type navigationContextKey struct{}

// ContextWithNavigation stores nav in ctx.
func ContextWithNavigation(ctx context.Context, nav *Navigation) context.Context {
	return context.WithValue(ctx, navigationContextKey{}, nav)
}

// NavigationFromContext extracts the request's Navigation, or nil.
func NavigationFromContext(ctx context.Context) *Navigation {
	nav, _ := ctx.Value(navigationContextKey{}).(*Navigation)
	return nav
}

// NavigationMiddleware installs a Navigation per request. Once it is forced,
// the first status the handler writes is replaced by a single login redirect
// and the handler's body is discarded.
func NavigationMiddleware(loginPath string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			nav := &Navigation{}
			r = r.WithContext(ContextWithNavigation(r.Context(), nav))
			nw := &navigationWriter{ResponseWriter: w, nav: nav, req: r, loginPath: loginPath}
			next.ServeHTTP(nw, r)
			if !nw.decided && nav.Forced() && r.URL.Path != loginPath {
				nw.decided = true
				nw.redirected = true
				RedirectToLogin(nw.ResponseWriter, r, loginPath)
			}
		})
	}
}

type navigationWriter struct {
	http.ResponseWriter
	nav        *Navigation
	req        *http.Request
	loginPath  string
	decided    bool
	redirected bool
}

func (w *navigationWriter) WriteHeader(status int) {
	if w.decided {
		if !w.redirected {
			w.ResponseWriter.WriteHeader(status)
		}
		return
	}
	w.decided = true
	if w.nav.Forced() && w.req.URL.Path != w.loginPath {
		w.redirected = true
		h := w.ResponseWriter.Header()
		h.Del("Content-Type")
		h.Del("Content-Length")
		RedirectToLogin(w.ResponseWriter, w.req, w.loginPath)
		return
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *navigationWriter) Write(data []byte) (int, error) {
	if !w.decided {
		w.WriteHeader(http.StatusOK)
	}
	if w.redirected {
		return len(data), nil
	}
	return w.ResponseWriter.Write(data)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *navigationWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
