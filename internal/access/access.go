package access

import (
	"context"
	"log"
	"strings"

	"dataentry-backend/internal/metadata"
	"dataentry-backend/internal/store"
)

// rolesByUsernameSQL loads role names from the host application's
// role-assignment tables. Used when the identity carries no role list.
const rolesByUsernameSQL = `
SELECT ar.name FROM ab_role ar
INNER JOIN ab_user_role aur ON aur.role_id = ar.id
INNER JOIN ab_user au ON au.id = aur.user_id
WHERE au.username = $1`

// Resolver decides form-level rights: entry/view via ownership or the
// form's role allow-list, configuration via ownership only. This is
// independent of the RLS location scope; both gates apply.
type Resolver struct {
	store *store.Store
}

func NewResolver(s *store.Store) *Resolver {
	return &Resolver{store: s}
}

// IsOwner reports whether the user created the form. Ownership is
// permanent and non-transferable.
func (r *Resolver) IsOwner(user *metadata.UserContext, form *metadata.FormConfig) bool {
	if user == nil || form == nil {
		return false
	}
	return user.Username != "" && form.CreatedBy == user.Username
}

// CanEnter reports whether the user may view the form and enter data:
// the owner always may; anyone else needs a case-insensitive role
// intersection with the form's allow-list. An empty allow-list denies
// all non-owners.
func (r *Resolver) CanEnter(ctx context.Context, user *metadata.UserContext, form *metadata.FormConfig) bool {
	if user == nil || form == nil {
		return false
	}
	if r.IsOwner(user, form) {
		return true
	}
	allowed := normalizeRoleSet(form.AllowedRoleNames)
	if len(allowed) == 0 {
		return false
	}

	roleNames := user.Roles
	if len(roleNames) == 0 {
		roleNames = r.roleNamesFromDB(ctx, user.Username)
	}
	for _, role := range roleNames {
		if _, ok := allowed[normalizeRole(role)]; ok {
			return true
		}
	}
	return false
}

// CanConfigure reports whether the user may edit the form definition,
// its fields and its allow-list: owner only, unconditionally. Role
// allow-listing never grants configuration rights.
func (r *Resolver) CanConfigure(user *metadata.UserContext, form *metadata.FormConfig) bool {
	return r.IsOwner(user, form)
}

// AvailableRoleNames lists every role name known to the host, for the
// form builder's allow-list picker.
func (r *Resolver) AvailableRoleNames(ctx context.Context) ([]string, error) {
	rows, err := store.QueryRows(ctx, r.store.DB, "SELECT name FROM ab_role ORDER BY name")
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(rows))
	for _, row := range rows {
		if name, _ := row["name"].(string); name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

// roleNamesFromDB is the fallback role lookup by username. A failing
// query degrades to an empty list rather than an error.
func (r *Resolver) roleNamesFromDB(ctx context.Context, username string) []string {
	if username == "" {
		return nil
	}
	rows, err := store.QueryRows(ctx, r.store.DB, rolesByUsernameSQL, username)
	if err != nil {
		log.Printf("WARN: could not load roles for user %s: %v", username, err)
		return nil
	}
	names := make([]string, 0, len(rows))
	for _, row := range rows {
		if name, _ := row["name"].(string); name != "" {
			names = append(names, name)
		}
	}
	return names
}

func normalizeRole(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func normalizeRoleSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		if norm := normalizeRole(n); norm != "" {
			set[norm] = struct{}{}
		}
	}
	return set
}
