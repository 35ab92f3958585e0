package users

import (
	"context"
	"errors"

	"github.com/bookstore-admin/console/internal/bookstore"
)

// Mode distinguishes creating a user from editing an existing one.
type Mode int

const (
	// ModeCreate requires email and password.
	ModeCreate Mode = iota
	// ModeEdit leaves the password optional.
	ModeEdit
)

// Status is the lifecycle state of a Form.
type Status int

const (
	// StatusEditing accepts interaction and submit.
	StatusEditing Status = iota
	// StatusLoading waits for the user to load.
	StatusLoading
	// StatusLoadFailed means the user could not be loaded.
	StatusLoadFailed
	// StatusSaved is terminal.
	StatusSaved
)

// Error map keys. They match the backend's field names.
const (
	FieldName                 = "name"
	FieldEmail                = "email"
	FieldPassword             = "password"
	FieldPasswordConfirmation = "password_confirmation"
	FieldRoles                = "roles"
	FieldGeneral              = "general"
)

// Validation messages.
const (
	MsgNameRequired     = "Name is required"
	MsgEmailRequired    = "Email is required"
	MsgEmailInvalid     = "Please enter a valid email address"
	MsgPasswordRequired = "Password is required"
	MsgPasswordMismatch = "Passwords do not match"
	MsgRoleRequired     = "Please select a role"
	MsgNoRoles          = "No roles available"
	MsgUnknownRole      = "The selected role is no longer available"
	MsgSaveFailed       = "An error occurred while saving the user"
)

var (
	// ErrValidation reports that the form has field errors.
	ErrValidation = errors.New("users: validation failed")
	// ErrSubmitInProgress reports a second submit while one is in flight.
	ErrSubmitInProgress = errors.New("users: submit already in progress")
	// ErrNotEditable reports interaction with a form that is loading,
	// failed to load or already saved.
	ErrNotEditable = errors.New("users: form is not editable")
)

// API is the slice of the bookstore client the form needs.
type API interface {
	GetUser(ctx context.Context, id int64) (bookstore.User, error)
	CreateUser(ctx context.Context, req bookstore.CreateUserRequest) (bookstore.User, error)
	UpdateUser(ctx context.Context, id int64, req bookstore.UpdateUserRequest) (bookstore.User, error)
}

// Values are the editable fields of the user form.
type Values struct {
	Name                 string `form:"name"`
	Email                string `form:"email"`
	Password             string `form:"password"`
	PasswordConfirmation string `form:"password_confirmation"`
	RoleID               int64  `form:"roles"`
}

// SubmitResult is returned by a successful Submit.
type SubmitResult struct {
	User    bookstore.User
	Created bool
}
