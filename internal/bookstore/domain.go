// Package bookstore is a typed client for the bookstore admin REST API.
package bookstore

import (
	"bytes"
	"encoding/json"
	"errors"
	"time"
)

// ErrInvalidCredentials indicates the backend refused the login attempt.
var ErrInvalidCredentials = errors.New("bookstore: invalid credentials")

// Credentials are submitted to the login endpoint.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// User is a staff account as returned by the API.
type User struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	Roles     IDList     `json:"roles,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

// LoginResult is the body of a successful login.
type LoginResult struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// Role is a named permission set.
type Role struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Permissions IDList     `json:"permissions"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
}

// RolePayload is the body sent when creating or updating a role.
type RolePayload struct {
	Name        string  `json:"name"`
	Permissions []int64 `json:"permissions"`
}

// CreateUserRequest is the body sent when creating a user.
type CreateUserRequest struct {
	Name                 string  `json:"name"`
	Email                string  `json:"email"`
	Password             string  `json:"password"`
	PasswordConfirmation string  `json:"password_confirmation"`
	Roles                []int64 `json:"roles"`
}

// PasswordChange carries a new password on update.
type PasswordChange struct {
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
}

// UpdateUserRequest is the body sent when editing a user. The password keys
// are only present when PasswordChange is set.
type UpdateUserRequest struct {
	Name  string  `json:"name"`
	Email string  `json:"email,omitempty"`
	Roles []int64 `json:"roles"`
	*PasswordChange
}

// RecentOrder is a row of the dashboard's recent order table.
type RecentOrder struct {
	ID          int64      `json:"id"`
	OrderNumber string     `json:"order_number"`
	TotalAmount float64    `json:"total_amount"`
	Status      string     `json:"status"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
	User        *User      `json:"user,omitempty"`
}

// DashboardStats feeds the home page cards.
type DashboardStats struct {
	TotalBooks      int64         `json:"total_books"`
	TotalCategories int64         `json:"total_categories"`
	TotalOrders     int64         `json:"total_orders"`
	TotalCustomers  int64         `json:"total_customers"`
	TotalRevenue    float64       `json:"total_revenue"`
	PendingOrders   int64         `json:"pending_orders"`
	RecentOrders    []RecentOrder `json:"recent_orders"`
}

// IDList decodes either a list of ids or a list of objects carrying an id.
type IDList []int64

// UnmarshalJSON implements json.Unmarshaler.
func (l *IDList) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*l = nil
		return nil
	}
	var ids []int64
	if err := json.Unmarshal(data, &ids); err == nil {
		*l = ids
		return nil
	}
	var objects []struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(data, &objects); err != nil {
		return err
	}
	out := make([]int64, 0, len(objects))
	for _, obj := range objects {
		out = append(out, obj.ID)
	}
	*l = out
	return nil
}
