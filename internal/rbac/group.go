package rbac

import "strings"

const (
	// Separator splits a permission name into category and action.
	Separator = "-"
	// OtherCategory collects names without a usable category prefix.
	OtherCategory = "other"
)

// ParseName splits name at the first separator. Names without one, or with an
// empty prefix, belong to OtherCategory and keep the whole name as action.
func ParseName(name string) (category, action string) {
	name = strings.TrimSpace(name)
	prefix, rest, found := strings.Cut(name, Separator)
	if !found || prefix == "" {
		return OtherCategory, name
	}
	return prefix, rest
}

// GroupByCategory partitions perms by category. Categories appear in the
// order they are first seen; permissions keep their input order.
func GroupByCategory(perms []Permission) []Group {
	index := make(map[string]int)
	groups := make([]Group, 0)
	for _, perm := range perms {
		category := perm.Category()
		pos, ok := index[category]
		if !ok {
			pos = len(groups)
			index[category] = pos
			groups = append(groups, Group{Category: category})
		}
		groups[pos].Permissions = append(groups[pos].Permissions, perm)
	}
	return groups
}

// IDs lists the ids of perms in order.
func IDs(perms []Permission) []int64 {
	ids := make([]int64, 0, len(perms))
	for _, perm := range perms {
		ids = append(ids, perm.ID)
	}
	return ids
}

// Filter keeps permissions whose name contains query, ignoring case.
func Filter(perms []Permission, query string) []Permission {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return perms
	}
	out := make([]Permission, 0, len(perms))
	for _, perm := range perms {
		if strings.Contains(strings.ToLower(perm.Name), query) {
			out = append(out, perm)
		}
	}
	return out
}
