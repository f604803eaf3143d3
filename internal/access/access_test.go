package access

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"dataentry-backend/internal/metadata"
	"dataentry-backend/internal/store"
)

func newMockResolver(t *testing.T) (*Resolver, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewResolver(store.NewFromDB(db)), mock
}

func form(createdBy string, allowed ...string) *metadata.FormConfig {
	return &metadata.FormConfig{
		ID:               1,
		Name:             "shift_log",
		CreatedBy:        createdBy,
		AllowedRoleNames: allowed,
	}
}

func TestIsOwner(t *testing.T) {
	r, _ := newMockResolver(t)

	owner := &metadata.UserContext{ID: 1, Username: "alice"}
	other := &metadata.UserContext{ID: 2, Username: "bob"}
	f := form("alice")

	if !r.IsOwner(owner, f) {
		t.Fatal("expected creator to be owner")
	}
	if r.IsOwner(other, f) {
		t.Fatal("expected non-creator to not be owner")
	}
	if r.IsOwner(nil, f) || r.IsOwner(owner, nil) {
		t.Fatal("nil inputs must not grant ownership")
	}
	// Anonymous forms have no owner.
	if r.IsOwner(&metadata.UserContext{}, form("")) {
		t.Fatal("empty usernames must not match each other")
	}
}

func TestCanEnter_OwnerBypassesAllowList(t *testing.T) {
	r, _ := newMockResolver(t)
	owner := &metadata.UserContext{ID: 1, Username: "alice", Roles: []string{"Viewer"}}

	// Even with an empty allow-list the owner gets in.
	if !r.CanEnter(context.Background(), owner, form("alice")) {
		t.Fatal("expected owner to enter regardless of allow-list")
	}
}

func TestCanEnter_RoleIntersection(t *testing.T) {
	r, _ := newMockResolver(t)
	f := form("alice", "Nurse", "Clerk")

	match := &metadata.UserContext{ID: 2, Username: "bob", Roles: []string{"clerk"}}
	if !r.CanEnter(context.Background(), match, f) {
		t.Fatal("expected case-insensitive role match to grant entry")
	}

	noMatch := &metadata.UserContext{ID: 3, Username: "carol", Roles: []string{"Viewer"}}
	if r.CanEnter(context.Background(), noMatch, f) {
		t.Fatal("expected non-listed role to be denied")
	}
}

func TestCanEnter_EmptyAllowListDeniesNonOwners(t *testing.T) {
	r, _ := newMockResolver(t)
	user := &metadata.UserContext{ID: 2, Username: "bob", Roles: []string{"Admin"}}

	if r.CanEnter(context.Background(), user, form("alice")) {
		t.Fatal("expected empty allow-list to deny non-owner")
	}
}

func TestCanEnter_FallsBackToDBRoles(t *testing.T) {
	r, mock := newMockResolver(t)
	f := form("alice", "Clerk")
	user := &metadata.UserContext{ID: 2, Username: "bob"}

	mock.ExpectQuery(regexp.QuoteMeta("SELECT ar.name FROM ab_role ar")).
		WithArgs("bob").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("Clerk"))

	require.True(t, r.CanEnter(context.Background(), user, f))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCanEnter_DBRoleLookupFailureDenies(t *testing.T) {
	r, mock := newMockResolver(t)
	f := form("alice", "Clerk")
	user := &metadata.UserContext{ID: 2, Username: "bob"}

	mock.ExpectQuery(regexp.QuoteMeta("SELECT ar.name FROM ab_role ar")).
		WithArgs("bob").
		WillReturnError(errors.New("connection reset"))

	require.False(t, r.CanEnter(context.Background(), user, f))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCanConfigure_OwnerOnly(t *testing.T) {
	r, _ := newMockResolver(t)
	f := form("alice", "Clerk")

	owner := &metadata.UserContext{ID: 1, Username: "alice"}
	if !r.CanConfigure(owner, f) {
		t.Fatal("expected owner to configure")
	}

	// Allow-listed roles grant entry, never configuration.
	listed := &metadata.UserContext{ID: 2, Username: "bob", Roles: []string{"Clerk"}}
	if r.CanConfigure(listed, f) {
		t.Fatal("expected allow-listed non-owner to be denied configuration")
	}
}

func TestAvailableRoleNames(t *testing.T) {
	r, mock := newMockResolver(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT name FROM ab_role ORDER BY name")).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).
			AddRow("Admin").AddRow("Clerk").AddRow("Nurse"))

	names, err := r.AvailableRoleNames(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"Admin", "Clerk", "Nurse"}, names)
	require.NoError(t, mock.ExpectationsWereMet())
}
