package roles

import (
	"context"
	"sort"
	"strings"

	"github.com/bookstore-admin/console/internal/bookstore"
)

// ListAPI defines the role listing calls.
type ListAPI interface {
	ListRoles(ctx context.Context) ([]bookstore.Role, error)
	DeleteRole(ctx context.Context, id int64) error
}

// Service handles the role list page.
type Service struct {
	api ListAPI
}

// NewService builds Service instance.
func NewService(api ListAPI) *Service {
	return &Service{api: api}
}

// List returns roles sorted by name, keeping those whose name or description
// contains search, ignoring case.
func (s *Service) List(ctx context.Context, search string) ([]bookstore.Role, error) {
	roles, err := s.api.ListRoles(ctx)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(strings.TrimSpace(search))
	out := make([]bookstore.Role, 0, len(roles))
	for _, role := range roles {
		if needle == "" ||
			strings.Contains(strings.ToLower(role.Name), needle) ||
			strings.Contains(strings.ToLower(role.Description), needle) {
			out = append(out, role)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out, nil
}

// Delete removes role id.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.api.DeleteRole(ctx, id)
}
