package rbac

// Permission is an atomic capability defined by the backend. Names follow the
// "<category>-<action>" convention.
type Permission struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Category returns the grouping key derived from the name.
func (p Permission) Category() string {
	category, _ := ParseName(p.Name)
	return category
}

// Action returns the part of the name after the category.
func (p Permission) Action() string {
	_, action := ParseName(p.Name)
	return action
}

// Group is a category with its permissions in catalog order.
type Group struct {
	Category    string
	Permissions []Permission
}
