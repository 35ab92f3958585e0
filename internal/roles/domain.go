package roles

import (
	"context"
	"errors"

	"github.com/bookstore-admin/console/internal/bookstore"
)

// Mode distinguishes creating a role from editing an existing one.
type Mode int

const (
	// ModeCreate submits without an id.
	ModeCreate Mode = iota
	// ModeEdit submits against an existing id.
	ModeEdit
)

// Status is the lifecycle state of an Editor.
type Status int

const (
	// StatusEditing accepts interaction and submit.
	StatusEditing Status = iota
	// StatusLoading waits for the role to load. Not interactive.
	StatusLoading
	// StatusLoadFailed means the role could not be loaded. Not interactive.
	StatusLoadFailed
	// StatusSaved is terminal.
	StatusSaved
)

func (s Status) String() string {
	switch s {
	case StatusEditing:
		return "editing"
	case StatusLoading:
		return "loading"
	case StatusLoadFailed:
		return "load_failed"
	case StatusSaved:
		return "saved"
	default:
		return "unknown"
	}
}

// Error map keys.
const (
	FieldName        = "name"
	FieldPermissions = "permissions"
	FieldGeneral     = "general"
)

// Validation messages.
const (
	MsgNameRequired        = "Role name is required"
	MsgPermissionsRequired = "Please select at least one permission"
	MsgNoPermissions       = "No permissions available"
	MsgUnknownPermission   = "Selected permissions are no longer available"
	MsgSaveFailed          = "An error occurred while saving the role"
)

var (
	// ErrValidation reports that the form has field errors.
	ErrValidation = errors.New("roles: validation failed")
	// ErrSubmitInProgress reports a second submit while one is in flight.
	ErrSubmitInProgress = errors.New("roles: submit already in progress")
	// ErrNotEditable reports interaction with an editor that is loading,
	// failed to load or already saved.
	ErrNotEditable = errors.New("roles: editor is not editable")
)

// API is the slice of the bookstore client the editor needs.
type API interface {
	GetRole(ctx context.Context, id int64) (bookstore.Role, error)
	CreateRole(ctx context.Context, payload bookstore.RolePayload) (bookstore.Role, error)
	UpdateRole(ctx context.Context, id int64, payload bookstore.RolePayload) (bookstore.Role, error)
}

// SubmitResult is returned by a successful Submit.
type SubmitResult struct {
	Role    bookstore.Role
	Created bool
}
