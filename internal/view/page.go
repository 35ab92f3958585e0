package view

import (
	"net/http"

	"github.com/bookstore-admin/console/internal/session"
	"github.com/bookstore-admin/console/internal/shared"
)

// PageData builds TemplateData for r: CSRF token, pending flash and the
// signed-in user's name.
func PageData(r *http.Request, csrf *shared.CSRFManager, title string, data any) TemplateData {
	ctx := r.Context()
	sess := shared.SessionFromContext(ctx)
	var token string
	if csrf != nil {
		token, _ = csrf.EnsureToken(ctx, sess)
	}
	out := TemplateData{
		Title:       title,
		CSRFToken:   token,
		Flash:       sess.PopFlash(),
		CurrentPath: r.URL.Path,
		Data:        data,
	}
	if store := session.FromContext(ctx); store != nil {
		if user, ok := store.User(); ok {
			out.UserName = user.Name
		}
	}
	return out
}
