package app

import (
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/bookstore-admin/console/internal/auth"
	"github.com/bookstore-admin/console/internal/gateway"
	"github.com/bookstore-admin/console/internal/guard"
	"github.com/bookstore-admin/console/internal/observability"
	"github.com/bookstore-admin/console/internal/rbac"
	"github.com/bookstore-admin/console/internal/roles"
	"github.com/bookstore-admin/console/internal/session"
	"github.com/bookstore-admin/console/internal/shared"
	"github.com/bookstore-admin/console/internal/users"
	"github.com/bookstore-admin/console/internal/view"
	"github.com/bookstore-admin/console/jobs"
	"github.com/bookstore-admin/console/web"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	Templates      *view.Engine
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	API            *gateway.Client
	Revoker        session.Revoker
	Metrics        *observability.Metrics

	AuthHandler        *auth.Handler
	DashboardHandler   *DashboardHandler
	PermissionsHandler *rbac.PermissionsHandler
	RolesHandler       *roles.Handler
	UsersHandler       *users.Handler
	JobHandler         *jobs.Handler
	// AccessLog enables chi's request logger.
	AccessLog bool
}

// NewRouter constructs the chi.Router with console defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()
	mwConfig := MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
		API:            params.API,
		Revoker:        params.Revoker,
	}
	for _, mw := range BaseMiddleware(mwConfig) {
		r.Use(mw)
	}
	if params.AccessLog {
		r.Use(chimw.Logger)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	staticFS, err := fs.Sub(web.Static, "static")
	if err != nil {
		params.Logger.Error("create static sub filesystem", slog.Any("error", err))
	} else {
		fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))
		r.Handle("/static/*", staticCacheHandler(fileServer))
	}

	r.Group(func(r chi.Router) {
		for _, mw := range MiddlewareStack(mwConfig) {
			r.Use(mw)
		}

		if params.AuthHandler != nil {
			params.AuthHandler.SetLoginLimiter(LoginRateLimit(params.Config))
			r.Route("/auth", params.AuthHandler.MountRoutes)
		}

		r.Group(func(r chi.Router) {
			r.Use(guard.Guard{LoginPath: LoginPath, Logger: params.Logger}.Require)

			if params.DashboardHandler != nil {
				r.Method(http.MethodGet, "/", params.DashboardHandler)
			}
			if params.PermissionsHandler != nil {
				r.Route("/permissions", params.PermissionsHandler.MountRoutes)
			}
			if params.RolesHandler != nil {
				r.Route("/roles", params.RolesHandler.MountRoutes)
			}
			if params.UsersHandler != nil {
				r.Route("/users", params.UsersHandler.MountRoutes)
			}
			if params.JobHandler != nil {
				r.Route("/jobs", params.JobHandler.MountRoutes)
			}
		})
	})

	return r
}

// staticCacheHandler sets a one hour browser cache on embedded assets.
func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}
