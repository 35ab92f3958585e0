package roles

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
	"github.com/bookstore-admin/console/internal/rbac"
	"github.com/bookstore-admin/console/internal/session"
	"github.com/bookstore-admin/console/internal/shared"
	"github.com/bookstore-admin/console/internal/view"
)

const (
	intentSelectAll   = "select_all"
	intentDeselectAll = "deselect_all"

	rolesPerPage = 20
)

// Handler manages role management endpoints.
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

// MountRoutes registers role routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listRoles)
	r.Get("/new", h.showCreateForm)
	r.Post("/", h.createRole)
	r.Get("/{id}/edit", h.showEditForm)
	r.Post("/{id}", h.updateRole)
	r.Post("/{id}/delete", h.deleteRole)
}

type formErrors map[string]string

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	client := bookstore.ClientFromContext(r.Context())
	if client == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	search := strings.TrimSpace(r.URL.Query().Get("q"))
	roles, err := NewService(client).List(r.Context(), search)
	if err != nil {
		h.logger.Warn("list roles", slog.Any("error", err))
		h.render(w, r, "pages/roles/list.html", "Roles", map[string]any{
			"Roles":  []bookstore.Role{},
			"Search": search,
			"Errors": formErrors{FieldGeneral: httpx.UserMessage(err, "Unable to load roles.")},
		}, httpx.StatusFor(err))
		return
	}
	pagination := shared.NewPagination(shared.PageFromRequest(r), rolesPerPage, len(roles))
	h.render(w, r, "pages/roles/list.html", "Roles", map[string]any{
		"Roles":      shared.Paginate(roles, pagination),
		"Search":     search,
		"Pagination": pagination,
	}, http.StatusOK)
}

func (h *Handler) showCreateForm(w http.ResponseWriter, r *http.Request) {
	catalog, catalogErr := h.fetchCatalog(r.Context())
	h.renderForm(w, r, NewCreateEditor(catalog, catalogErr), http.StatusOK)
}

func (h *Handler) showEditForm(w http.ResponseWriter, r *http.Request) {
	id, ok := roleID(r)
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
		catalog    []rbac.Permission
		catalogErr error
	)
	editor := NewEditor(id, nil, nil)
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		catalog, catalogErr = h.fetchCatalog(ctx)
		return nil
	})
	g.Go(func() error {
		return editor.Load(ctx, client)
	})
	if err := g.Wait(); err != nil {
		h.logger.Warn("load role", slog.Int64("role_id", id), slog.Any("error", err))
		h.renderLoadFailed(w, r, editor)
		return
	}
	editor.SetCatalog(catalog, catalogErr)
	h.renderForm(w, r, editor, http.StatusOK)
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, ModeCreate, 0)
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	id, ok := roleID(r)
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
	catalog, catalogErr := h.fetchCatalog(r.Context())
	editor := FromSubmission(mode, id, r.PostFormValue("name"), parseIDs(r.PostForm["permissions"]), catalog, catalogErr)

	switch r.PostFormValue("intent") {
	case intentSelectAll:
		_ = editor.SelectAll()
		h.renderForm(w, r, editor, http.StatusOK)
		return
	case intentDeselectAll:
		_ = editor.DeselectAll()
		h.renderForm(w, r, editor, http.StatusOK)
		return
	}

	release, err := h.locks.Acquire(r.Context(), sessionID(r), formKey(mode, id))
	if err != nil {
		if errors.Is(err, shared.ErrFormBusy) {
			editor.SetGeneralError("This form is already being submitted.")
			h.renderForm(w, r, editor, http.StatusConflict)
			return
		}
		h.logger.Error("acquire form lock", slog.Any("error", err))
	}

	result, err := shared.RunDetached(r.Context(), editor.Detach,
		func(ctx context.Context) (SubmitResult, error) {
			return editor.Submit(ctx, client)
		},
		func(result SubmitResult, err error) {
			defer release()
			if err == nil {
				h.auditSave(r, editor, result)
			}
		})
	if errors.Is(err, shared.ErrClientGone) {
		h.logger.Info("client left before role save finished", slog.Int64("role_id", id))
		return
	}
	defer release()

	switch {
	case errors.Is(err, ErrValidation):
		h.renderForm(w, r, editor, http.StatusUnprocessableEntity)
		return
	case err != nil:
		h.logger.Warn("save role", slog.Int64("role_id", id), slog.Any("error", err))
		h.renderForm(w, r, editor, httpx.StatusFor(err))
		return
	}

	message := "Role updated"
	if result.Created {
		message = "Role created"
	}
	h.auditSave(r, editor, result)
	h.redirectWithFlash(w, r, "/roles", "success", message)
}

func (h *Handler) auditSave(r *http.Request, editor *Editor, result SubmitResult) {
	action := "role.update"
	if result.Created {
		action = "role.create"
	}
	h.recordAudit(r, action, result.Role.ID, map[string]any{
		"name":        result.Role.Name,
		"permissions": editor.Selected(),
	})
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	id, ok := roleID(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	client := bookstore.ClientFromContext(r.Context())
	if client == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	if err := NewService(client).Delete(context.WithoutCancel(r.Context()), id); err != nil {
		h.logger.Warn("delete role", slog.Int64("role_id", id), slog.Any("error", err))
		h.redirectWithFlash(w, r, "/roles", "error", httpx.UserMessage(err, "Unable to delete the role."))
		return
	}
	h.recordAudit(r, "role.delete", id, nil)
	h.redirectWithFlash(w, r, "/roles", "success", "Role deleted")
}

func (h *Handler) fetchCatalog(ctx context.Context) ([]rbac.Permission, error) {
	catalog := rbac.CatalogFromContext(ctx)
	if catalog == nil {
		return nil, &rbac.FetchError{Err: errors.New("no api client in context")}
	}
	perms, err := catalog.FetchAll(ctx)
	if err != nil {
		h.logger.Warn("load permission catalog", slog.Any("error", err))
	}
	return perms, err
}

func (h *Handler) renderForm(w http.ResponseWriter, r *http.Request, editor *Editor, status int) {
	title := "New role"
	if editor.IsEdit() {
		title = "Edit role"
	}
	h.render(w, r, "pages/roles/form.html", title, map[string]any{
		"Editor": editor,
		"Errors": formErrors(editor.Errors()),
	}, status)
}

func (h *Handler) renderLoadFailed(w http.ResponseWriter, r *http.Request, editor *Editor) {
	status := http.StatusBadGateway
	if editor.NotFound() {
		status = http.StatusNotFound
	}
	h.render(w, r, "pages/roles/load_failed.html", "Edit role", map[string]any{
		"Editor":  editor,
		"Message": httpx.UserMessage(editor.LoadError(), "The role could not be loaded."),
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
	entry := shared.AuditLog{Action: action, Entity: "role", EntityID: strconv.FormatInt(id, 10), Meta: meta}
	if store := session.FromContext(r.Context()); store != nil {
		if user, ok := store.User(); ok {
			entry.ActorID = user.ID
		}
	}
	if err := h.audit.Record(context.WithoutCancel(r.Context()), entry); err != nil {
		h.logger.Error("record audit", slog.String("action", action), slog.Any("error", err))
	}
}

func roleID(r *http.Request) (int64, bool) {
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
		return "role:new"
	}
	return "role:" + strconv.FormatInt(id, 10)
}

func parseIDs(values []string) []int64 {
	ids := make([]int64, 0, len(values))
	for _, value := range values {
		id, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err == nil && id > 0 {
			ids = append(ids, id)
		}
	}
	return ids
}
