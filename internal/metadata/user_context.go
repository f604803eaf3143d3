package metadata

import "strings"

// UserContext represents the authenticated host-application user, set by
// the auth middleware.
type UserContext struct {
	ID       int64    `json:"id"`
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
}

// HasRole checks whether the user holds a role, case-insensitively.
func (u *UserContext) HasRole(role string) bool {
	for _, r := range u.Roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}
