package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/bookstore-admin/console/internal/bookstore"
	"github.com/bookstore-admin/console/internal/gateway"
	"github.com/bookstore-admin/console/internal/guard"
	"github.com/bookstore-admin/console/internal/platform/httpx"
	"github.com/bookstore-admin/console/internal/session"
	"github.com/bookstore-admin/console/internal/shared"
	"github.com/bookstore-admin/console/internal/view"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	templates      *view.Engine
	sessionManager *shared.SessionManager
	csrfManager    *shared.CSRFManager
	audit          shared.AuditRecorder
	validator      *validator.Validate
	loginLimit     func(http.Handler) http.Handler
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, templates *view.Engine, sessions *shared.SessionManager, csrf *shared.CSRFManager, audit shared.AuditRecorder) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		return field.Tag.Get("form")
	})
	return &Handler{
		logger:         logger,
		templates:      templates,
		sessionManager: sessions,
		csrfManager:    csrf,
		audit:          audit,
		validator:      v,
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/login", h.showLogin)
	if h.loginLimit != nil {
		r.With(h.loginLimit).Post("/login", h.handleLogin)
	} else {
		r.Post("/login", h.handleLogin)
	}
	r.Post("/logout", h.handleLogout)
}

// SetLoginLimiter throttles credential submissions. Must be called before
// MountRoutes.
func (h *Handler) SetLoginLimiter(limit func(http.Handler) http.Handler) {
	h.loginLimit = limit
}

func (h *Handler) showLogin(w http.ResponseWriter, r *http.Request) {
	next := guard.SafeNext(r.URL.Query().Get("next"), "/")
	if store := session.FromContext(r.Context()); store != nil && store.IsAuthenticated() {
		http.Redirect(w, r, next, http.StatusSeeOther)
		return
	}
	h.renderLogin(w, r, loginPageData{Next: next, Errors: map[string]string{}}, http.StatusOK)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := loginForm{
		Email:    strings.TrimSpace(r.PostFormValue("email")),
		Password: r.PostFormValue("password"),
	}
	data := loginPageData{Form: form, Next: guard.SafeNext(r.PostFormValue("next"), "/"), Errors: map[string]string{}}

	if err := h.validator.Struct(form); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			for _, fieldErr := range fieldErrs {
				if msg, ok := loginMessages[fieldErr.Field()+"."+fieldErr.Tag()]; ok {
					data.Errors[fieldErr.Field()] = msg
				} else {
					data.Errors[fieldErr.Field()] = fieldErr.Error()
				}
			}
		}
		h.renderLogin(w, r, data, http.StatusUnprocessableEntity)
		return
	}

	store := session.FromContext(r.Context())
	client := bookstore.ClientFromContext(r.Context())
	if store == nil || client == nil {
		h.logger.Error("login without session wiring")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	result, err := store.Login(context.WithoutCancel(r.Context()), client, bookstore.Credentials{Email: form.Email, Password: form.Password})
	if err != nil {
		status := http.StatusUnauthorized
		if errors.Is(err, bookstore.ErrInvalidCredentials) {
			if fields, ok := gateway.FieldErrors(err); ok {
				for field, msg := range fields {
					data.Errors[field] = msg
				}
				status = http.StatusUnprocessableEntity
			} else {
				data.Errors["general"] = httpx.UserMessage(err, msgInvalidCredentials)
			}
		} else {
			h.logger.Warn("login failed", slog.Any("error", err))
			data.Errors["general"] = httpx.UserMessage(err, msgLoginUnavailable)
			status = httpx.StatusFor(err)
		}
		data.Form.Password = ""
		h.renderLogin(w, r, data, status)
		return
	}

	sess := shared.SessionFromContext(r.Context())
	h.sessionManager.Regenerate(sess)
	h.csrfManager.Rotate(sess)
	if sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: "success", Message: "Welcome back, " + result.User.Name})
	}
	h.recordAudit(r, "auth.login", result.User.ID)
	h.logger.Info("administrator signed in", slog.Int64("user_id", result.User.ID), slog.String("token", store.Fingerprint()))
	http.Redirect(w, r, data.Next, http.StatusSeeOther)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	store := session.FromContext(r.Context())
	client := bookstore.ClientFromContext(r.Context())
	if store != nil && client != nil {
		var actor int64
		if user, ok := store.User(); ok {
			actor = user.ID
		}
		if err := store.Logout(context.WithoutCancel(r.Context()), client); err != nil {
			h.logger.Warn("backend logout failed", slog.Any("error", err))
		}
		if actor != 0 {
			h.recordAudit(r, "auth.logout", actor)
		}
	}
	sess := shared.SessionFromContext(r.Context())
	h.sessionManager.Regenerate(sess)
	h.csrfManager.Rotate(sess)
	if sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: "info", Message: "You have been signed out."})
	}
	http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
}

func (h *Handler) renderLogin(w http.ResponseWriter, r *http.Request, data loginPageData, status int) {
	viewData := view.PageData(r, h.csrfManager, "Sign in", data)
	if err := h.templates.RenderStatus(w, status, "pages/login.html", viewData); err != nil {
		h.logger.Error("render login", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (h *Handler) recordAudit(r *http.Request, action string, userID int64) {
	if h.audit == nil {
		return
	}
	entry := shared.AuditLog{
		ActorID:  userID,
		Action:   action,
		Entity:   "session",
		EntityID: strconv.FormatInt(userID, 10),
		Meta:     map[string]any{"ip": r.RemoteAddr, "user_agent": r.UserAgent()},
	}
	if err := h.audit.Record(context.WithoutCancel(r.Context()), entry); err != nil {
		h.logger.Error("record audit", slog.String("action", action), slog.Any("error", err))
	}
}
