package rbac

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/bookstore-admin/console/internal/platform/httpx"
	"github.com/bookstore-admin/console/internal/shared"
	"github.com/bookstore-admin/console/internal/view"
)

// PermissionsHandler serves the read-only permission listing.
type PermissionsHandler struct {
	logger    *slog.Logger
	templates *view.Engine
	csrf      *shared.CSRFManager
}

// NewPermissionsHandler builds PermissionsHandler instance.
func NewPermissionsHandler(logger *slog.Logger, templates *view.Engine, csrf *shared.CSRFManager) *PermissionsHandler {
	return &PermissionsHandler{logger: logger, templates: templates, csrf: csrf}
}

// MountRoutes registers permission routes.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Get("/", h.listPermissions)
}

type formErrors map[string]string

func (h *PermissionsHandler) listPermissions(w http.ResponseWriter, r *http.Request) {
	catalog := CatalogFromContext(r.Context())
	if catalog == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	perms, err := catalog.FetchAll(r.Context())
	if err != nil {
		h.logger.Warn("load permissions", slog.Any("error", err))
		h.render(w, r, map[string]any{
			"Groups": []Group{},
			"Total":  0,
			"Query":  query,
			"Errors": formErrors{"general": httpx.UserMessage(err, "Unable to load permissions.")},
		}, httpx.StatusFor(err))
		return
	}
	h.render(w, r, map[string]any{
		"Groups": GroupByCategory(Filter(perms, query)),
		"Total":  len(perms),
		"Query":  query,
	}, http.StatusOK)
}

func (h *PermissionsHandler) render(w http.ResponseWriter, r *http.Request, data map[string]any, status int) {
	viewData := view.PageData(r, h.csrf, "Permissions", data)
	if err := h.templates.RenderStatus(w, status, "pages/permissions/list.html", viewData); err != nil {
		h.logger.Error("render template", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}
