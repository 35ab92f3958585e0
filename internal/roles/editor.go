package roles

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"
	"sync"

	"github.com/bookstore-admin/console/internal/bookstore"
	"github.com/bookstore-admin/console/internal/gateway"
	"github.com/bookstore-admin/console/internal/platform/httpx"
	"github.com/bookstore-admin/console/internal/rbac"
)

// TogglePermission returns ids with id added when absent or removed when
// present. ids is not modified.
func TogglePermission(ids []int64, id int64) []int64 {
	out := make([]int64, 0, len(ids)+1)
	found := false
	for _, existing := range ids {
		if existing == id {
			found = true
			continue
		}
		out = append(out, existing)
	}
	if !found {
		out = append(out, id)
	}
	return out
}

// Editor holds one role form: the fields, the permission catalog it was
// rendered with and its submission state. Methods are safe for concurrent use.
type Editor struct {
	mu         sync.Mutex
	mode       Mode
	id         int64
	status     Status
	processing bool
	detached   bool

	name     string
	selected []int64
	errors   map[string]string

	catalog    []rbac.Permission
	catalogErr error
	loadErr    error
}

// NewCreateEditor returns an empty editor in create mode. catalogErr is the
// failure, if any, of loading the permission catalog.
func NewCreateEditor(catalog []rbac.Permission, catalogErr error) *Editor {
	return &Editor{
		mode:       ModeCreate,
		status:     StatusEditing,
		errors:     map[string]string{},
		catalog:    catalog,
		catalogErr: catalogErr,
	}
}

// NewEditor returns an edit-mode editor for role id that waits for Load.
func NewEditor(id int64, catalog []rbac.Permission, catalogErr error) *Editor {
	return &Editor{
		mode:       ModeEdit,
		id:         id,
		status:     StatusLoading,
		errors:     map[string]string{},
		catalog:    catalog,
		catalogErr: catalogErr,
	}
}

// FromSubmission rebuilds an editor from posted form values.
func FromSubmission(mode Mode, id int64, name string, permissionIDs []int64, catalog []rbac.Permission, catalogErr error) *Editor {
	e := &Editor{
		mode:       mode,
		id:         id,
		status:     StatusEditing,
		name:       name,
		selected:   dedupe(permissionIDs),
		errors:     map[string]string{},
		catalog:    catalog,
		catalogErr: catalogErr,
	}
	return e
}

// SetCatalog attaches the permission catalog fetched alongside the role.
func (e *Editor) SetCatalog(catalog []rbac.Permission, catalogErr error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.catalog = catalog
	e.catalogErr = catalogErr
}

// Load fetches the role and populates the form. Only valid while loading.
func (e *Editor) Load(ctx context.Context, api API) error {
	e.mu.Lock()
	if e.status != StatusLoading {
		e.mu.Unlock()
		return ErrNotEditable
	}
	id := e.id
	e.mu.Unlock()

	role, err := api.GetRole(ctx, id)
	if err != nil {
		e.fail(err)
		return err
	}
	e.populate(role)
	return nil
}

func (e *Editor) populate(role bookstore.Role) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.name = role.Name
	e.selected = dedupe(role.Permissions)
	e.status = StatusEditing
	e.loadErr = nil
}

func (e *Editor) fail(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.status = StatusLoadFailed
	e.loadErr = err
	e.name = ""
	e.selected = nil
}

// SetName updates the name and clears its error.
func (e *Editor) SetName(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.editableLocked(); err != nil {
		return err
	}
	e.name = name
	delete(e.errors, FieldName)
	return nil
}

// Toggle adds or removes one permission.
func (e *Editor) Toggle(id int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.editableLocked(); err != nil {
		return err
	}
	e.selected = TogglePermission(e.selected, id)
	delete(e.errors, FieldPermissions)
	return nil
}

// SelectAll selects every permission of the catalog.
func (e *Editor) SelectAll() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.editableLocked(); err != nil {
		return err
	}
	e.selected = rbac.IDs(e.catalog)
	delete(e.errors, FieldPermissions)
	return nil
}

// DeselectAll clears the selection.
func (e *Editor) DeselectAll() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.editableLocked(); err != nil {
		return err
	}
	e.selected = []int64{}
	delete(e.errors, FieldPermissions)
	return nil
}

func (e *Editor) editableLocked() error {
	if e.status != StatusEditing {
		return ErrNotEditable
	}
	if e.processing {
		return ErrSubmitInProgress
	}
	return nil
}

// Validate returns the field errors of the current values, at most one per
// field. It does not change the editor's error map.
func (e *Editor) Validate() map[string]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.validateLocked()
}

func (e *Editor) validateLocked() map[string]string {
	errs := map[string]string{}
	if strings.TrimSpace(e.name) == "" {
		errs[FieldName] = MsgNameRequired
	}
	switch {
	case e.catalogErr != nil || len(e.catalog) == 0:
		errs[FieldPermissions] = MsgNoPermissions
	case len(e.selected) == 0:
		errs[FieldPermissions] = MsgPermissionsRequired
	default:
		known := make(map[int64]struct{}, len(e.catalog))
		for _, perm := range e.catalog {
			known[perm.ID] = struct{}{}
		}
		for _, id := range e.selected {
			if _, ok := known[id]; !ok {
				errs[FieldPermissions] = MsgUnknownPermission
				break
			}
		}
	}
	return errs
}

// Submit validates and sends the role. Client-side failures set the error
// map and return ErrValidation without calling api. A 422 from the backend
// merges its field errors into the same map; any other failure sets the
// general error. The form stays editable after every failure.
func (e *Editor) Submit(ctx context.Context, api API) (SubmitResult, error) {
	e.mu.Lock()
	if e.status != StatusEditing {
		e.mu.Unlock()
		return SubmitResult{}, ErrNotEditable
	}
	if e.processing {
		e.mu.Unlock()
		return SubmitResult{}, ErrSubmitInProgress
	}
	if errs := e.validateLocked(); len(errs) > 0 {
		e.errors = errs
		e.mu.Unlock()
		return SubmitResult{}, ErrValidation
	}
	e.errors = map[string]string{}
	e.processing = true
	mode, id := e.mode, e.id
	payload := bookstore.RolePayload{Name: strings.TrimSpace(e.name), Permissions: slices.Clone(e.selected)}
	e.mu.Unlock()

	var (
		role bookstore.Role
		err  error
	)
	if mode == ModeCreate {
		role, err = api.CreateRole(ctx, payload)
	} else {
		role, err = api.UpdateRole(ctx, id, payload)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.processing = false
	if e.detached {
		return SubmitResult{Role: role, Created: mode == ModeCreate}, err
	}
	if err != nil {
		if fields, ok := gateway.FieldErrors(err); ok {
			for field, msg := range fields {
				e.errors[field] = msg
			}
			return SubmitResult{}, err
		}
		e.errors[FieldGeneral] = httpx.UserMessage(err, MsgSaveFailed)
		return SubmitResult{}, err
	}
	e.status = StatusSaved
	if role.ID != 0 {
		e.id = role.ID
	}
	return SubmitResult{Role: role, Created: mode == ModeCreate}, nil
}

// Detach marks the form as gone. A submission still in flight completes but
// no longer updates the editor.
func (e *Editor) Detach() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.detached = true
}

// SetGeneralError records a failure that is not tied to a field.
func (e *Editor) SetGeneralError(msg string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errors[FieldGeneral] = msg
}

// Mode reports create or edit.
func (e *Editor) Mode() Mode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mode
}

// IsEdit reports whether the editor targets an existing role.
func (e *Editor) IsEdit() bool { return e.Mode() == ModeEdit }

// ID is the role id, zero in create mode until saved.
func (e *Editor) ID() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.id
}

// Status reports the lifecycle state.
func (e *Editor) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Editable reports whether interaction and submit are allowed.
func (e *Editor) Editable() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.editableLocked() == nil
}

// Processing reports whether a submit is in flight.
func (e *Editor) Processing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.processing
}

// Name returns the current name.
func (e *Editor) Name() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.name
}

// Selected returns the selected permission ids.
func (e *Editor) Selected() []int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.selected)
}

// IsSelected reports whether permission id is selected.
func (e *Editor) IsSelected(id int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Contains(e.selected, id)
}

// Groups returns the catalog grouped by category.
func (e *Editor) Groups() []rbac.Group {
	e.mu.Lock()
	defer e.mu.Unlock()
	return rbac.GroupByCategory(e.catalog)
}

// CatalogAvailable reports whether permissions can be chosen.
func (e *Editor) CatalogAvailable() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.catalogErr == nil && len(e.catalog) > 0
}

// Errors returns a copy of the error map.
func (e *Editor) Errors() map[string]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]string, len(e.errors))
	for k, v := range e.errors {
		out[k] = v
	}
	return out
}

// LoadError is the failure that put the editor in StatusLoadFailed.
func (e *Editor) LoadError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loadErr
}

// NotFound reports whether the load failed because the role does not exist.
func (e *Editor) NotFound() bool {
	var apiErr *gateway.APIError
	return errors.As(e.LoadError(), &apiErr) && apiErr.Status == http.StatusNotFound
}

func dedupe(ids []int64) []int64 {
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id != 0 && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}
