package users

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/bookstore-admin/console/internal/bookstore"
	"github.com/bookstore-admin/console/internal/platform/httpx"
	"github.com/bookstore-admin/console/internal/session"
	"github.com/bookstore-admin/console/internal/shared"
	"github.com/bookstore-admin/console/internal/view"
)

const usersPerPage = 20

// Handler manages user management endpoints.
type Handler struct {
	logger    *slog.Logger
	templates *view.Engine
	csrf      *shared.CSRFManager
	locks     *shared.FormLocks
	audit     shared.AuditRecorder
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, templates *view.Engine, csrf *shared.CSRFManager, locks *shared.FormLocks, audit shared.AuditRecorder) *Handler {
	return &Handler{logger: logger, templates: templates, csrf: csrf, locks: locks, audit: audit}
}

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listUsers)
	r.Get("/new", h.showCreateForm)
	r.Post("/", h.createUser)
	r.Get("/{id}/edit", h.showEditForm)
	r.Post("/{id}", h.updateUser)
	r.Post("/{id}/delete", h.deleteUser)
}

type formErrors map[string]string

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	client := bookstore.ClientFromContext(r.Context())
	if client == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	search := strings.TrimSpace(r.URL.Query().Get("q"))
	rows, err := NewService(client).List(r.Context(), search)
	if err != nil {
		h.logger.Warn("list users", slog.Any("error", err))
		h.render(w, r, "pages/users/list.html", "Users", map[string]any{
			"Users":  []Row{},
			"Search": search,
			"Errors": formErrors{FieldGeneral: httpx.UserMessage(err, "Unable to load users.")},
		}, httpx.StatusFor(err))
		return
	}
	pagination := shared.NewPagination(shared.PageFromRequest(r), usersPerPage, len(rows))
	h.render(w, r, "pages/users/list.html", "Users", map[string]any{
		"Users":      shared.Paginate(rows, pagination),
		"Search":     search,
		"Pagination": pagination,
		"CurrentID":  currentUserID(r),
	}, http.StatusOK)
}

func (h *Handler) showCreateForm(w http.ResponseWriter, r *http.Request) {
	client := bookstore.ClientFromContext(r.Context())
	if client == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	roles, rolesErr := h.fetchRoles(r.Context(), client)
	h.renderForm(w, r, NewCreateForm(roles, rolesErr), http.StatusOK)
}

func (h *Handler) showEditForm(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	client := bookstore.ClientFromContext(r.Context())
	if client == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var (
		roles    []bookstore.Role
		rolesErr error
	)
	form := NewEditForm(id, nil, nil)
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		roles, rolesErr = h.fetchRoles(ctx, client)
		return nil
	})
	g.Go(func() error {
		return form.Load(ctx, client)
	})
	if err := g.Wait(); err != nil {
		h.logger.Warn("load user", slog.Int64("user_id", id), slog.Any("error", err))
		h.renderLoadFailed(w, r, form)
		return
	}
	form.SetRoles(roles, rolesErr)
	h.renderForm(w, r, form, http.StatusOK)
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, ModeCreate, 0)
}

func (h *Handler) updateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	h.submit(w, r, ModeEdit, id)
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request, mode Mode, id int64) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	client := bookstore.ClientFromContext(r.Context())
	if client == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	roles, rolesErr := h.fetchRoles(r.Context(), client)
	roleID, _ := strconv.ParseInt(strings.TrimSpace(r.PostFormValue("roles")), 10, 64)
	form := FromSubmission(mode, id, Values{
		Name:                 r.PostFormValue("name"),
		Email:                r.PostFormValue("email"),
		Password:             r.PostFormValue("password"),
		PasswordConfirmation: r.PostFormValue("password_confirmation"),
		RoleID:               roleID,
	}, roles, rolesErr)

	release, err := h.locks.Acquire(r.Context(), sessionID(r), formKey(mode, id))
	if err != nil {
		if errors.Is(err, shared.ErrFormBusy) {
			form.SetGeneralError("This form is already being submitted.")
			h.renderForm(w, r, form, http.StatusConflict)
			return
		}
		h.logger.Error("acquire form lock", slog.Any("error", err))
	}

	passwordChanged := mode == ModeCreate || r.PostFormValue("password") != ""
	result, err := shared.RunDetached(r.Context(), form.Detach,
		func(ctx context.Context) (SubmitResult, error) {
			return form.Submit(ctx, client)
		},
		func(result SubmitResult, err error) {
			defer release()
			if err == nil {
				h.auditSave(r, result, roleID, passwordChanged)
			}
		})
	if errors.Is(err, shared.ErrClientGone) {
		h.logger.Info("client left before user save finished", slog.Int64("user_id", id))
		return
	}
	defer release()

	switch {
	case errors.Is(err, ErrValidation):
		h.renderForm(w, r, form, http.StatusUnprocessableEntity)
		return
	case err != nil:
		h.logger.Warn("save user", slog.Int64("user_id", id), slog.Any("error", err))
		h.renderForm(w, r, form, httpx.StatusFor(err))
		return
	}

	message := "User updated"
	if result.Created {
		message = "User created"
	}
	h.auditSave(r, result, roleID, passwordChanged)
	h.redirectWithFlash(w, r, "/users", "success", message)
}

func (h *Handler) auditSave(r *http.Request, result SubmitResult, roleID int64, passwordChanged bool) {
	action := "user.update"
	if result.Created {
		action = "user.create"
	}
	h.recordAudit(r, action, result.User.ID, map[string]any{
		"email":            result.User.Email,
		"role_id":          roleID,
		"password_changed": passwordChanged,
	})
}

func (h *Handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	if id == currentUserID(r) {
		h.redirectWithFlash(w, r, "/users", "error", "You cannot delete your own account.")
		return
	}
	client := bookstore.ClientFromContext(r.Context())
	if client == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	if err := NewService(client).Delete(context.WithoutCancel(r.Context()), id); err != nil {
		h.logger.Warn("delete user", slog.Int64("user_id", id), slog.Any("error", err))
		h.redirectWithFlash(w, r, "/users", "error", httpx.UserMessage(err, "Unable to delete the user."))
		return
	}
	h.recordAudit(r, "user.delete", id, nil)
	h.redirectWithFlash(w, r, "/users", "success", "User deleted")
}

func (h *Handler) fetchRoles(ctx context.Context, client *bookstore.Client) ([]bookstore.Role, error) {
	roles, err := client.AssignableRoles(ctx)
	if err != nil {
		h.logger.Warn("load assignable roles", slog.Any("error", err))
	}
	return roles, err
}

func (h *Handler) renderForm(w http.ResponseWriter, r *http.Request, form *Form, status int) {
	title := "New user"
	if form.IsEdit() {
		title = "Edit user"
	}
	h.render(w, r, "pages/users/form.html", title, map[string]any{
		"Form":   form,
		"Values": form.Values(),
		"Errors": formErrors(form.Errors()),
	}, status)
}

func (h *Handler) renderLoadFailed(w http.ResponseWriter, r *http.Request, form *Form) {
	status := http.StatusBadGateway
	if form.NotFound() {
		status = http.StatusNotFound
	}
	h.render(w, r, "pages/users/load_failed.html", "Edit user", map[string]any{
		"Form":    form,
		"Message": httpx.UserMessage(form.LoadError(), "The user could not be loaded."),
	}, status)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, template, title string, data map[string]any, status int) {
	viewData := view.PageData(r, h.csrf, title, data)
	if err := h.templates.RenderStatus(w, status, template, viewData); err != nil {
		h.logger.Error("render template", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (h *Handler) redirectWithFlash(w http.ResponseWriter, r *http.Request, location, kind, message string) {
	shared.Flash(r.Context(), kind, message)
	http.Redirect(w, r, location, http.StatusSeeOther)
}

func (h *Handler) recordAudit(r *http.Request, action string, id int64, meta map[string]any) {
	if h.audit == nil {
		return
	}
	entry := shared.AuditLog{
		ActorID:  currentUserID(r),
		Action:   action,
		Entity:   "user",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
	}
	if err := h.audit.Record(context.WithoutCancel(r.Context()), entry); err != nil {
		h.logger.Error("record audit", slog.String("action", action), slog.Any("error", err))
	}
}

func currentUserID(r *http.Request) int64 {
	if store := session.FromContext(r.Context()); store != nil {
		if user, ok := store.User(); ok {
			return user.ID
		}
	}
	return 0
}

func userID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

func sessionID(r *http.Request) string {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		return sess.ID
	}
	return ""
}

func formKey(mode Mode, id int64) string {
	if mode == ModeCreate {
		return "user:new"
	}
	return "user:" + strconv.FormatInt(id, 10)
}
