package users

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/bookstore-admin/console/internal/bookstore"
	"github.com/bookstore-admin/console/internal/gateway"
	"github.com/bookstore-admin/console/internal/platform/httpx"
)

type createInput struct {
	Name                 string `form:"name" validate:"required"`
	Email                string `form:"email" validate:"required,email"`
	Password             string `form:"password" validate:"required"`
	PasswordConfirmation string `form:"password_confirmation" validate:"eqfield=Password"`
	RoleID               int64  `form:"roles" validate:"gt=0"`
}

type updateInput struct {
	Name                 string `form:"name" validate:"required"`
	Email                string `form:"email" validate:"omitempty,email"`
	Password             string `form:"password"`
	PasswordConfirmation string `form:"password_confirmation" validate:"eqfield=Password"`
	RoleID               int64  `form:"roles" validate:"gt=0"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		return field.Tag.Get("form")
	})
	return v
}

var fieldMessages = map[string]string{
	FieldName + ".required":                MsgNameRequired,
	FieldEmail + ".required":               MsgEmailRequired,
	FieldEmail + ".email":                  MsgEmailInvalid,
	FieldPassword + ".required":            MsgPasswordRequired,
	FieldPasswordConfirmation + ".eqfield": MsgPasswordMismatch,
	FieldRoles + ".gt":                     MsgRoleRequired,
}

// Form holds one user form with a single selected role. Methods are safe for
// concurrent use.
type Form struct {
	mu         sync.Mutex
	mode       Mode
	id         int64
	status     Status
	processing bool
	detached   bool

	values Values
	errors map[string]string

	roles    []bookstore.Role
	rolesErr error
	loadErr  error
}

// NewCreateForm returns an empty create-mode form. roles are the assignable
// roles; rolesErr is the failure, if any, of loading them.
func NewCreateForm(roles []bookstore.Role, rolesErr error) *Form {
	return &Form{mode: ModeCreate, status: StatusEditing, errors: map[string]string{}, roles: roles, rolesErr: rolesErr}
}

// NewEditForm returns an edit-mode form for user id that waits for Load.
func NewEditForm(id int64, roles []bookstore.Role, rolesErr error) *Form {
	return &Form{mode: ModeEdit, id: id, status: StatusLoading, errors: map[string]string{}, roles: roles, rolesErr: rolesErr}
}

// FromSubmission rebuilds a form from posted values.
func FromSubmission(mode Mode, id int64, values Values, roles []bookstore.Role, rolesErr error) *Form {
	return &Form{mode: mode, id: id, status: StatusEditing, values: values, errors: map[string]string{}, roles: roles, rolesErr: rolesErr}
}

// SetRoles attaches the assignable roles fetched alongside the user.
func (f *Form) SetRoles(roles []bookstore.Role, rolesErr error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roles = roles
	f.rolesErr = rolesErr
}

// Load fetches the user and populates the form. Only valid while loading.
func (f *Form) Load(ctx context.Context, api API) error {
	f.mu.Lock()
	if f.status != StatusLoading {
		f.mu.Unlock()
		return ErrNotEditable
	}
	id := f.id
	f.mu.Unlock()

	user, err := api.GetUser(ctx, id)
	if err != nil {
		f.fail(err)
		return err
	}
	f.populate(user)
	return nil
}

func (f *Form) populate(user bookstore.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values = Values{Name: user.Name, Email: user.Email}
	if len(user.Roles) > 0 {
		f.values.RoleID = user.Roles[0]
	}
	f.status = StatusEditing
	f.loadErr = nil
}

func (f *Form) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = StatusLoadFailed
	f.loadErr = err
	f.values = Values{}
}

// SelectRole replaces the selection with role id.
func (f *Form) SelectRole(id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.editableLocked(); err != nil {
		return err
	}
	f.values.RoleID = id
	delete(f.errors, FieldRoles)
	return nil
}

// SetValues replaces every field, clearing errors of fields that changed.
func (f *Form) SetValues(values Values) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.editableLocked(); err != nil {
		return err
	}
	old := f.values
	f.values = values
	if old.Name != values.Name {
		delete(f.errors, FieldName)
	}
	if old.Email != values.Email {
		delete(f.errors, FieldEmail)
	}
	if old.Password != values.Password || old.PasswordConfirmation != values.PasswordConfirmation {
		delete(f.errors, FieldPassword)
		delete(f.errors, FieldPasswordConfirmation)
	}
	if old.RoleID != values.RoleID {
		delete(f.errors, FieldRoles)
	}
	return nil
}

func (f *Form) editableLocked() error {
	if f.status != StatusEditing {
		return ErrNotEditable
	}
	if f.processing {
		return ErrSubmitInProgress
	}
	return nil
}

// Validate returns the field errors of the current values, at most one per
// field.
func (f *Form) Validate() map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.validateLocked()
}

func (f *Form) validateLocked() map[string]string {
	v := trimmed(f.values)
	var input any
	if f.mode == ModeCreate {
		input = createInput(v)
	} else {
		input = updateInput(v)
	}

	errs := map[string]string{}
	if err := validate.Struct(input); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			for _, fe := range fieldErrs {
				if _, seen := errs[fe.Field()]; seen {
					continue
				}
				if msg, ok := fieldMessages[fe.Field()+"."+fe.Tag()]; ok {
					errs[fe.Field()] = msg
				} else {
					errs[fe.Field()] = fe.Error()
				}
			}
		}
	}

	if _, has := errs[FieldRoles]; !has {
		switch {
		case f.rolesErr != nil || len(f.roles) == 0:
			errs[FieldRoles] = MsgNoRoles
		case !f.knownRoleLocked(v.RoleID):
			errs[FieldRoles] = MsgUnknownRole
		}
	}
	return errs
}

func (f *Form) knownRoleLocked(id int64) bool {
	for _, role := range f.roles {
		if role.ID == id {
			return true
		}
	}
	return false
}

// Payload builds the outbound request. Create mode yields a
// bookstore.CreateUserRequest; edit mode a bookstore.UpdateUserRequest whose
// password keys are absent when no new password was entered.
func (f *Form) Payload() any {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.mode == ModeCreate {
		return f.createPayloadLocked()
	}
	return f.updatePayloadLocked()
}

func (f *Form) createPayloadLocked() bookstore.CreateUserRequest {
	v := trimmed(f.values)
	return bookstore.CreateUserRequest{
		Name:                 v.Name,
		Email:                v.Email,
		Password:             v.Password,
		PasswordConfirmation: v.PasswordConfirmation,
		Roles:                []int64{v.RoleID},
	}
}

func (f *Form) updatePayloadLocked() bookstore.UpdateUserRequest {
	v := trimmed(f.values)
	req := bookstore.UpdateUserRequest{Name: v.Name, Email: v.Email, Roles: []int64{v.RoleID}}
	if v.Password != "" {
		req.PasswordChange = &bookstore.PasswordChange{
			Password:             v.Password,
			PasswordConfirmation: v.PasswordConfirmation,
		}
	}
	return req
}

// Submit validates and sends the user, with the same error handling as the
// role editor.
func (f *Form) Submit(ctx context.Context, api API) (SubmitResult, error) {
	f.mu.Lock()
	if f.status != StatusEditing {
		f.mu.Unlock()
		return SubmitResult{}, ErrNotEditable
	}
	if f.processing {
		f.mu.Unlock()
		return SubmitResult{}, ErrSubmitInProgress
	}
	if errs := f.validateLocked(); len(errs) > 0 {
		f.errors = errs
		f.mu.Unlock()
		return SubmitResult{}, ErrValidation
	}
	f.errors = map[string]string{}
	f.processing = true
	mode, id := f.mode, f.id
	var (
		createReq bookstore.CreateUserRequest
		updateReq bookstore.UpdateUserRequest
	)
	if mode == ModeCreate {
		createReq = f.createPayloadLocked()
	} else {
		updateReq = f.updatePayloadLocked()
	}
	f.mu.Unlock()

	var (
		user bookstore.User
		err  error
	)
	if mode == ModeCreate {
		user, err = api.CreateUser(ctx, createReq)
	} else {
		user, err = api.UpdateUser(ctx, id, updateReq)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.processing = false
	if f.detached {
		return SubmitResult{User: user, Created: mode == ModeCreate}, err
	}
	if err != nil {
		if fields, ok := gateway.FieldErrors(err); ok {
			for field, msg := range fields {
				f.errors[field] = msg
			}
			return SubmitResult{}, err
		}
		f.errors[FieldGeneral] = httpx.UserMessage(err, MsgSaveFailed)
		return SubmitResult{}, err
	}
	f.status = StatusSaved
	f.values.Password, f.values.PasswordConfirmation = "", ""
	if user.ID != 0 {
		f.id = user.ID
	}
	return SubmitResult{User: user, Created: mode == ModeCreate}, nil
}

// Detach marks the form as gone; a late result no longer updates it.
func (f *Form) Detach() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detached = true
}

// SetGeneralError records a failure that is not tied to a field.
func (f *Form) SetGeneralError(msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors[FieldGeneral] = msg
}

// IsEdit reports whether the form targets an existing user.
func (f *Form) IsEdit() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mode == ModeEdit
}

// ID is the user id, zero in create mode until saved.
func (f *Form) ID() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.id
}

// Status reports the lifecycle state.
func (f *Form) Status() Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

// Editable reports whether interaction and submit are allowed.
func (f *Form) Editable() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.editableLocked() == nil
}

// Processing reports whether a submit is in flight.
func (f *Form) Processing() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.processing
}

// Values returns the current values. Passwords are included; templates must
// not echo them.
func (f *Form) Values() Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.values
}

// Roles returns the assignable roles.
func (f *Form) Roles() []bookstore.Role {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.roles
}

// RolesAvailable reports whether a role can be chosen.
func (f *Form) RolesAvailable() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rolesErr == nil && len(f.roles) > 0
}

// Errors returns a copy of the error map.
func (f *Form) Errors() map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]string, len(f.errors))
	for k, v := range f.errors {
		out[k] = v
	}
	return out
}

// LoadError is the failure that put the form in StatusLoadFailed.
func (f *Form) LoadError() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loadErr
}

// NotFound reports whether the load failed because the user does not exist.
func (f *Form) NotFound() bool {
	var apiErr *gateway.APIError
	return errors.As(f.LoadError(), &apiErr) && apiErr.Status == http.StatusNotFound
}

func trimmed(v Values) Values {
	v.Name = strings.TrimSpace(v.Name)
	v.Email = strings.TrimSpace(v.Email)
	return v
}
