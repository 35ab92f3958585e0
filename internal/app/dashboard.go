package app

import (
	"log/slog"
	"net/http"

	"github.com/bookstore-admin/console/internal/bookstore"
	"github.com/bookstore-admin/console/internal/platform/httpx"
	"github.com/bookstore-admin/console/internal/shared"
	"github.com/bookstore-admin/console/internal/view"
)

// DashboardHandler renders the home page stat cards.
type DashboardHandler struct {
	logger    *slog.Logger
	templates *view.Engine
	csrf      *shared.CSRFManager
}

// NewDashboardHandler builds DashboardHandler instance.
func NewDashboardHandler(logger *slog.Logger, templates *view.Engine, csrf *shared.CSRFManager) *DashboardHandler {
	return &DashboardHandler{logger: logger, templates: templates, csrf: csrf}
}

// ServeHTTP renders the dashboard. A failed stats call still renders the page
// with zeroed cards and a notice.
func (h *DashboardHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	data := map[string]any{"Stats": bookstore.DashboardStats{}}
	if client := bookstore.ClientFromContext(r.Context()); client != nil {
		stats, err := client.DashboardStats(r.Context())
		if err != nil {
			h.logger.Warn("load dashboard stats", slog.Any("error", err))
			data["Notice"] = httpx.UserMessage(err, "Dashboard figures are unavailable right now.")
		} else {
			data["Stats"] = stats
		}
	}
	viewData := view.PageData(r, h.csrf, "Dashboard", data)
	if err := h.templates.Render(w, "pages/home.html", viewData); err != nil {
		h.logger.Error("render home", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}
