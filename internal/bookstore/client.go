package bookstore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/bookstore-admin/console/internal/gateway"
)

// Client exposes the bookstore endpoints used by the console.
type Client struct {
	doer gateway.Doer
}

// New constructs a Client issuing calls through doer.
func New(doer gateway.Doer) *Client {
	return &Client{doer: doer}
}

// Doer returns the underlying gateway so sibling packages can share it.
func (c *Client) Doer() gateway.Doer {
	return c.doer
}

// Login exchanges credentials for a token.
func (c *Client) Login(ctx context.Context, creds Credentials) (LoginResult, error) {
	resp, err := c.doer.Do(ctx, gateway.Request{Method: http.MethodPost, Path: "/admin/login", Body: creds, Anonymous: true})
	if err != nil {
		var apiErr *gateway.APIError
		if errors.As(err, &apiErr) && (apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusUnprocessableEntity) {
			return LoginResult{}, fmt.Errorf("%w: %w", ErrInvalidCredentials, err)
		}
		return LoginResult{}, err
	}
	var result LoginResult
	if err := resp.Decode(&result); err != nil {
		return LoginResult{}, fmt.Errorf("bookstore: decode login: %w", err)
	}
	if result.Token == "" {
		return LoginResult{}, fmt.Errorf("bookstore: login response without token: %w", gateway.ErrMalformed)
	}
	return result, nil
}

// Logout invalidates the current token on the backend.
func (c *Client) Logout(ctx context.Context) error {
	_, err := c.doer.Do(ctx, gateway.Request{Method: http.MethodPost, Path: "/admin/logout"})
	return err
}

// CurrentUser returns the account that owns the current token.
func (c *Client) CurrentUser(ctx context.Context) (User, error) {
	var user User
	if err := c.get(ctx, "/admin/user", &user); err != nil {
		return User{}, err
	}
	if user.ID == 0 {
		return User{}, fmt.Errorf("bookstore: current user without id: %w", gateway.ErrMalformed)
	}
	return user, nil
}

// DashboardStats returns the totals shown on the home page.
func (c *Client) DashboardStats(ctx context.Context) (DashboardStats, error) {
	var stats DashboardStats
	err := c.get(ctx, "/admin/dashboard/stats", &stats)
	return stats, err
}

// ListRoles returns every role visible to the administrator.
func (c *Client) ListRoles(ctx context.Context) ([]Role, error) {
	var roles []Role
	if err := c.get(ctx, "/admin/roles", &roles); err != nil {
		return nil, err
	}
	return roles, nil
}

// GetRole loads a role by id.
func (c *Client) GetRole(ctx context.Context, id int64) (Role, error) {
	var role Role
	err := c.get(ctx, rolePath(id), &role)
	return role, err
}

// CreateRole creates a role.
func (c *Client) CreateRole(ctx context.Context, payload RolePayload) (Role, error) {
	var role Role
	err := c.send(ctx, http.MethodPost, "/admin/roles", payload, &role)
	return role, err
}

// UpdateRole replaces the name and permission set of role id.
func (c *Client) UpdateRole(ctx context.Context, id int64, payload RolePayload) (Role, error) {
	var role Role
	err := c.send(ctx, http.MethodPut, rolePath(id), payload, &role)
	return role, err
}

// DeleteRole removes role id.
func (c *Client) DeleteRole(ctx context.Context, id int64) error {
	_, err := c.doer.Do(ctx, gateway.Request{Method: http.MethodDelete, Path: rolePath(id)})
	return err
}

// AssignableRoles lists the roles offered on the user form.
func (c *Client) AssignableRoles(ctx context.Context) ([]Role, error) {
	var roles []Role
	if err := c.get(ctx, "/roles", &roles); err != nil {
		return nil, err
	}
	return roles, nil
}

// ListUsers returns staff accounts.
func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	var users []User
	if err := c.get(ctx, "/users", &users); err != nil {
		return nil, err
	}
	return users, nil
}

// GetUser loads a user by id.
func (c *Client) GetUser(ctx context.Context, id int64) (User, error) {
	var user User
	err := c.get(ctx, userPath(id), &user)
	return user, err
}

// CreateUser creates a user.
func (c *Client) CreateUser(ctx context.Context, req CreateUserRequest) (User, error) {
	var user User
	err := c.send(ctx, http.MethodPost, "/users", req, &user)
	return user, err
}

// UpdateUser updates user id.
func (c *Client) UpdateUser(ctx context.Context, id int64, req UpdateUserRequest) (User, error) {
	var user User
	err := c.send(ctx, http.MethodPut, userPath(id), req, &user)
	return user, err
}

// DeleteUser removes user id.
func (c *Client) DeleteUser(ctx context.Context, id int64) error {
	_, err := c.doer.Do(ctx, gateway.Request{Method: http.MethodDelete, Path: userPath(id)})
	return err
}

func (c *Client) get(ctx context.Context, path string, target any) error {
	resp, err := c.doer.Do(ctx, gateway.Request{Method: http.MethodGet, Path: path})
	if err != nil {
		return err
	}
	if err := resp.Decode(target); err != nil {
		return fmt.Errorf("bookstore: decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, body, target any) error {
	resp, err := c.doer.Do(ctx, gateway.Request{Method: method, Path: path, Body: body})
	if err != nil {
		return err
	}
	if err := resp.Decode(target); err != nil {
		return fmt.Errorf("bookstore: decode %s %s: %w", method, path, err)
	}
	return nil
}

func rolePath(id int64) string {
	return "/admin/roles/" + strconv.FormatInt(id, 10)
}

func userPath(id int64) string {
	return "/users/" + strconv.FormatInt(id, 10)
}
