package rls

import (
	"context"
	"log"
	"regexp"
	"sort"
	"strings"

	"dataentry-backend/internal/metadata"
	"dataentry-backend/internal/store"
)

// filterClausesSQL collects every row-level-security filter clause bound,
// through the user's roles, to the user. The table names are the host
// application's security tables.
const filterClausesSQL = `
SELECT DISTINCT rlsf.clause
FROM ab_user_role aur
JOIN rls_filter_roles rfr ON aur.role_id = rfr.role_id
JOIN row_level_security_filters rlsf ON rfr.filter_id = rlsf.id
WHERE aur.user_id = $1
  AND rlsf.clause IS NOT NULL
  AND rlsf.clause != ''`

var (
	equalityClauseRe   = regexp.MustCompile(`(?i)location_id\s*=\s*['"]([^'"]+)['"]`)
	membershipClauseRe = regexp.MustCompile(`(?i)location_id\s+IN\s*\(([^)]+)\)`)
	quotedValueRe      = regexp.MustCompile(`['"]([^'"]+)['"]`)
)

// Resolver derives a user's location Scope from the host application's
// RLS filter clauses.
type Resolver struct {
	store     *store.Store
	adminRole string
}

func NewResolver(s *store.Store, adminRole string) *Resolver {
	if adminRole == "" {
		adminRole = "Admin"
	}
	return &Resolver{store: s, adminRole: adminRole}
}

// AllowedLocations resolves the location scope for a user:
//   - the administrative role yields Unrestricted;
//   - otherwise the user's RLS filter clauses are parsed for location ids
//     and the union is returned, sorted and deduplicated;
//   - no user, no roles, no matching clauses, or a failing security-table
//     query all yield NoneAllowed (fail closed).
func (r *Resolver) AllowedLocations(ctx context.Context, user *metadata.UserContext) Scope {
	if user == nil || len(user.Roles) == 0 {
		return NoneAllowed()
	}
	if user.HasRole(r.adminRole) {
		return Unrestricted()
	}

	rows, err := store.QueryRows(ctx, r.store.DB, filterClausesSQL, user.ID)
	if err != nil {
		log.Printf("WARN: RLS: could not fetch filters for user %d: %v", user.ID, err)
		return NoneAllowed()
	}

	seen := make(map[string]struct{})
	for _, row := range rows {
		clause, _ := row["clause"].(string)
		for _, id := range ParseClauseLocations(clause) {
			seen[id] = struct{}{}
		}
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return Allowed(ids)
}

// ParseClauseLocations extracts location identifiers from one textual RLS
// clause. Two shapes are recognized: an equality clause
// (location_id = 'X') and a membership clause (location_id IN ('A','B')).
func ParseClauseLocations(clause string) []string {
	if clause == "" {
		return nil
	}

	var ids []string
	for _, m := range equalityClauseRe.FindAllStringSubmatch(clause, -1) {
		ids = append(ids, strings.TrimSpace(m[1]))
	}
	if m := membershipClauseRe.FindStringSubmatch(clause); m != nil {
		for _, v := range quotedValueRe.FindAllStringSubmatch(m[1], -1) {
			ids = append(ids, strings.TrimSpace(v[1]))
		}
	}
	return ids
}
