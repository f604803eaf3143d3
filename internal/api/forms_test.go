package api

import (
	"encoding/json"
	"io"
	"net/http"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"dataentry-backend/internal/access"
	"dataentry-backend/internal/entry"
	"dataentry-backend/internal/forms"
	"dataentry-backend/internal/metadata"
	"dataentry-backend/internal/rls"
	"dataentry-backend/internal/schema"
	"dataentry-backend/internal/store"
	"dataentry-backend/internal/validation"
)

var formCols = []string{
	"id", "name", "title", "description", "table_name", "is_active",
	"allow_edit", "allow_delete", "created_by", "allowed_role_names",
	"location_id", "created_at", "updated_at",
}

var fieldCols = []string{
	"id", "form_id", "field_name", "field_label", "field_type",
	"field_order", "is_required", "default_value", "placeholder",
	"help_text", "validation_rules", "options",
}

// newTestApp wires the full handler stack over one mocked database and
// injects the given user the way the auth middleware would.
func newTestApp(t *testing.T, user *metadata.UserContext) (*fiber.App, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	st := store.NewFromDB(db)
	h := NewHandler(
		forms.NewStore(st),
		entry.NewStore(st, 100),
		schema.NewManager(st),
		validation.NewEngine(validation.DefaultRegistry()),
		rls.NewResolver(st, "Admin"),
		access.NewResolver(st),
		"test",
	)

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	RegisterRoutes(app, h, func(c *fiber.Ctx) error {
		if user != nil {
			c.Locals("user", user)
		}
		return c.Next()
	})
	return app, mock
}

func expectFormByID(mock sqlmock.Sqlmock, id int64, isActive bool, createdBy string, roles string) {
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM form_configurations WHERE id = $1")).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(formCols).AddRow(
			id, "shift_log", "Shift Log", "", "shift_log_entries", isActive,
			true, false, createdBy, []byte(roles), nil, now, now))
	mock.ExpectQuery(regexp.QuoteMeta("FROM form_fields WHERE form_id = $1")).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(fieldCols).AddRow(
			10, id, "hours", "Hours", "integer", 1, true, "", "", "",
			[]byte(`{"min_value":1,"max_value":24}`), []byte(`[]`)))
}

func doJSON(t *testing.T, app *fiber.App, method, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, path, reader)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var decoded map[string]any
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &decoded))
	}
	return resp, decoded
}

func TestGetForm_Owner(t *testing.T) {
	owner := &metadata.UserContext{ID: 1, Username: "alice", Roles: []string{"Admin"}}
	app, mock := newTestApp(t, owner)

	expectFormByID(mock, 1, true, "alice", `[]`)

	resp, body := doJSON(t, app, "GET", "/api/v1/data-entry/forms/1", "")
	require.Equal(t, 200, resp.StatusCode)
	data := body["data"].(map[string]any)
	require.Equal(t, "shift_log", data["name"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetForm_NotFound(t *testing.T) {
	admin := &metadata.UserContext{ID: 1, Username: "alice", Roles: []string{"Admin"}}
	app, mock := newTestApp(t, admin)

	mock.ExpectQuery(regexp.QuoteMeta("FROM form_configurations WHERE id = $1")).
		WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows(formCols))

	resp, body := doJSON(t, app, "GET", "/api/v1/data-entry/forms/99", "")
	require.Equal(t, 404, resp.StatusCode)
	errObj := body["error"].(map[string]any)
	require.Equal(t, "NOT_FOUND", errObj["code"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetForm_InvalidID(t *testing.T) {
	admin := &metadata.UserContext{ID: 1, Username: "alice", Roles: []string{"Admin"}}
	app, _ := newTestApp(t, admin)

	resp, body := doJSON(t, app, "GET", "/api/v1/data-entry/forms/banana", "")
	require.Equal(t, 400, resp.StatusCode)
	errObj := body["error"].(map[string]any)
	require.Equal(t, "INVALID_ID", errObj["code"])
}

func TestGetForm_NonOwnerWithoutRoleDenied(t *testing.T) {
	// Admin role makes the scope unrestricted but grants no form entry
	// rights by itself.
	user := &metadata.UserContext{ID: 2, Username: "bob", Roles: []string{"Admin"}}
	app, mock := newTestApp(t, user)

	expectFormByID(mock, 1, true, "alice", `["Nurse"]`)

	resp, body := doJSON(t, app, "GET", "/api/v1/data-entry/forms/1", "")
	require.Equal(t, 403, resp.StatusCode)
	errObj := body["error"].(map[string]any)
	require.Equal(t, "FORBIDDEN", errObj["code"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateEntry_InactiveFormRejected(t *testing.T) {
	owner := &metadata.UserContext{ID: 1, Username: "alice", Roles: []string{"Admin"}}
	app, mock := newTestApp(t, owner)

	expectFormByID(mock, 1, false, "alice", `[]`)

	resp, _ := doJSON(t, app, "POST", "/api/v1/data-entry/forms/1/entries",
		`{"hours": 8}`)
	require.Equal(t, 403, resp.StatusCode)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateEntry_ValidationFailureBlocksWrite(t *testing.T) {
	owner := &metadata.UserContext{ID: 1, Username: "alice", Roles: []string{"Admin"}}
	app, mock := newTestApp(t, owner)

	expectFormByID(mock, 1, true, "alice", `[]`)
	// No INSERT expectation: an invalid payload must never reach the
	// data table.

	resp, body := doJSON(t, app, "POST", "/api/v1/data-entry/forms/1/entries",
		`{"hours": 99}`)
	require.Equal(t, 400, resp.StatusCode)
	errObj := body["error"].(map[string]any)
	require.Equal(t, "VALIDATION_FAILED", errObj["code"])
	fieldErrs := errObj["errors"].(map[string]any)
	require.Contains(t, fieldErrs, "hours")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestValidateEntry_DryRun(t *testing.T) {
	owner := &metadata.UserContext{ID: 1, Username: "alice", Roles: []string{"Admin"}}
	app, mock := newTestApp(t, owner)

	expectFormByID(mock, 1, true, "alice", `[]`)

	resp, body := doJSON(t, app, "POST", "/api/v1/data-entry/forms/1/validate",
		`{"hours": 99}`)
	require.Equal(t, 200, resp.StatusCode)
	data := body["data"].(map[string]any)
	require.Equal(t, false, data["valid"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateForm_NonOwnerDenied(t *testing.T) {
	user := &metadata.UserContext{ID: 2, Username: "bob", Roles: []string{"Admin"}}
	app, mock := newTestApp(t, user)

	expectFormByID(mock, 1, true, "alice", `["Nurse"]`)

	resp, _ := doJSON(t, app, "PUT", "/api/v1/data-entry/forms/1",
		`{"title": "Hijacked"}`)
	require.Equal(t, 403, resp.StatusCode)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHealth_Open(t *testing.T) {
	app, _ := newTestApp(t, nil)

	resp, body := doJSON(t, app, "GET", "/api/v1/data-entry/health", "")
	require.Equal(t, 200, resp.StatusCode)
	require.Equal(t, "ok", body["status"])
}
