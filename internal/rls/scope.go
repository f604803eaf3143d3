package rls

import (
	"fmt"
	"strings"

	"dataentry-backend/internal/store"
)

type scopeKind int

const (
	kindUnrestricted scopeKind = iota
	kindNoneAllowed
	kindAllowed
)

// Scope is the three-valued location filter a user operates under.
// "Unrestricted" and "no locations allowed" have opposite effects, so the
// distinction is carried as an explicit tag rather than a nilable slice.
type Scope struct {
	kind scopeKind
	ids  []string
}

// Unrestricted applies no location filter at all.
func Unrestricted() Scope {
	return Scope{kind: kindUnrestricted}
}

// NoneAllowed matches zero rows in every location-filtered query.
func NoneAllowed() Scope {
	return Scope{kind: kindNoneAllowed}
}

// Allowed restricts visibility to the given location ids (plus untagged
// rows). An empty list collapses to NoneAllowed.
func Allowed(ids []string) Scope {
	if len(ids) == 0 {
		return NoneAllowed()
	}
	return Scope{kind: kindAllowed, ids: ids}
}

func (s Scope) IsUnrestricted() bool { return s.kind == kindUnrestricted }
func (s Scope) AllowsNothing() bool  { return s.kind == kindNoneAllowed }

// LocationIDs returns the explicit allow-list, or nil for the other two
// variants.
func (s Scope) LocationIDs() []string {
	if s.kind != kindAllowed {
		return nil
	}
	return s.ids
}

// Contains reports whether a row or form tagged with the given location
// is visible under this scope. Untagged (nil) is visible to everyone.
func (s Scope) Contains(locationID *string) bool {
	if s.kind == kindUnrestricted || locationID == nil {
		return true
	}
	if s.kind == kindNoneAllowed {
		return false
	}
	for _, id := range s.ids {
		if id == *locationID {
			return true
		}
	}
	return false
}

// SQLFilter renders the scope as a WHERE-clause fragment over the given
// column, appending parameters to pb. Unrestricted yields "", NoneAllowed
// a clause matching zero rows, and an allow-list an IN clause that also
// admits untagged rows.
func (s Scope) SQLFilter(column string, pb *store.ParamBuilder) string {
	switch s.kind {
	case kindUnrestricted:
		return ""
	case kindNoneAllowed:
		return "1 = 0"
	default:
		placeholders := make([]string, len(s.ids))
		for i, id := range s.ids {
			placeholders[i] = pb.Add(id)
		}
		return fmt.Sprintf("(%s IN (%s) OR %s IS NULL)",
			column, strings.Join(placeholders, ", "), column)
	}
}
