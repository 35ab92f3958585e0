package users

import (
	"context"
	"sort"
	"strings"

	"github.com/bookstore-admin/console/internal/bookstore"
)

// ListAPI defines the user listing calls.
type ListAPI interface {
	ListUsers(ctx context.Context) ([]bookstore.User, error)
	AssignableRoles(ctx context.Context) ([]bookstore.Role, error)
	DeleteUser(ctx context.Context, id int64) error
}

// Row is a user with its role names resolved for display.
type Row struct {
	bookstore.User
	RoleNames []string
}

// Service handles the user list page.
type Service struct {
	api ListAPI
}

// NewService builds Service instance.
func NewService(api ListAPI) *Service {
	return &Service{api: api}
}

// List returns users sorted by name, keeping those whose name or email
// contains search, ignoring case. Role names are resolved when the role list
// is available.
func (s *Service) List(ctx context.Context, search string) ([]Row, error) {
	users, err := s.api.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	names := map[int64]string{}
	if roles, err := s.api.AssignableRoles(ctx); err == nil {
		for _, role := range roles {
			names[role.ID] = role.Name
		}
	}

	needle := strings.ToLower(strings.TrimSpace(search))
	rows := make([]Row, 0, len(users))
	for _, user := range users {
		if needle != "" &&
			!strings.Contains(strings.ToLower(user.Name), needle) &&
			!strings.Contains(strings.ToLower(user.Email), needle) {
			continue
		}
		row := Row{User: user}
		for _, id := range user.Roles {
			if name, ok := names[id]; ok {
				row.RoleNames = append(row.RoleNames, name)
			}
		}
		rows = append(rows, row)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return strings.ToLower(rows[i].Name) < strings.ToLower(rows[j].Name)
	})
	return rows, nil
}

// Delete removes user id.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.api.DeleteUser(ctx, id)
}
