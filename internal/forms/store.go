package forms

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"dataentry-backend/internal/metadata"
	"dataentry-backend/internal/rls"
	"dataentry-backend/internal/store"
)

// ErrTableNameTaken signals that another form already claims the
// backing table name. table_name is the uniqueness anchor; the display
// name may repeat.
var ErrTableNameTaken = errors.New("table name already in use by another form")

const formColumns = `id, name, title, description, table_name, is_active,
	allow_edit, allow_delete, created_by, allowed_role_names, location_id,
	created_at, updated_at`

const fieldColumns = `id, form_id, field_name, field_label, field_type,
	field_order, is_required, default_value, placeholder, help_text,
	validation_rules, options`

// FormStore persists form definitions and their field lists.
type FormStore struct {
	store *store.Store
}

func NewStore(s *store.Store) *FormStore {
	return &FormStore{store: s}
}

// FormPatch carries a partial form update. Nil pointers leave the
// corresponding column untouched; a present AllowedRoleNames replaces
// the whole allow-list, and a present empty LocationID clears the
// location. Name, table name and ownership are not patchable.
type FormPatch struct {
	Title            *string
	Description      *string
	IsActive         *bool
	AllowEdit        *bool
	AllowDelete      *bool
	AllowedRoleNames *[]string
	LocationID       *string
}

// ListActive returns active forms visible within the location scope,
// ordered by title. Forms without a location are visible to everyone.
func (fs *FormStore) ListActive(ctx context.Context, scope rls.Scope) ([]*metadata.FormConfig, error) {
	if scope.AllowsNothing() {
		return []*metadata.FormConfig{}, nil
	}
	pb := &store.ParamBuilder{}
	query := fmt.Sprintf("SELECT %s FROM form_configurations WHERE is_active = TRUE", formColumns)
	if filter := scope.SQLFilter("location_id", pb); filter != "" {
		query += " AND " + filter
	}
	query += " ORDER BY title"

	rows, err := fs.store.DB.QueryContext(ctx, query, pb.Params()...)
	if err != nil {
		return nil, fmt.Errorf("list forms: %w", err)
	}
	defer rows.Close()

	var forms []*metadata.FormConfig
	for rows.Next() {
		form, err := scanForm(rows)
		if err != nil {
			return nil, err
		}
		forms = append(forms, form)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, form := range forms {
		if err := fs.loadFields(ctx, form); err != nil {
			return nil, err
		}
	}
	if forms == nil {
		forms = []*metadata.FormConfig{}
	}
	return forms, nil
}

// GetByID loads one form with its fields, honoring the location scope.
// A form outside the scope is reported as absent, not as denied.
func (fs *FormStore) GetByID(ctx context.Context, id int64, scope rls.Scope) (*metadata.FormConfig, error) {
	if scope.AllowsNothing() {
		return nil, store.ErrNotFound
	}
	pb := &store.ParamBuilder{}
	query := fmt.Sprintf("SELECT %s FROM form_configurations WHERE id = %s", formColumns, pb.Add(id))
	if filter := scope.SQLFilter("location_id", pb); filter != "" {
		query += " AND " + filter
	}
	return fs.queryOne(ctx, query, pb.Params()...)
}

// GetByName loads the newest active form with the given display name.
// Names are not unique; the most recently created match wins.
func (fs *FormStore) GetByName(ctx context.Context, name string, scope rls.Scope) (*metadata.FormConfig, error) {
	if scope.AllowsNothing() {
		return nil, store.ErrNotFound
	}
	pb := &store.ParamBuilder{}
	query := fmt.Sprintf(
		"SELECT %s FROM form_configurations WHERE name = %s AND is_active = TRUE",
		formColumns, pb.Add(name))
	if filter := scope.SQLFilter("location_id", pb); filter != "" {
		query += " AND " + filter
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT 1"
	return fs.queryOne(ctx, query, pb.Params()...)
}

// GetByTableName loads the form bound to a physical table, without
// scope filtering. Used for uniqueness checks and internal lookups.
func (fs *FormStore) GetByTableName(ctx context.Context, tableName string) (*metadata.FormConfig, error) {
	pb := &store.ParamBuilder{}
	query := fmt.Sprintf("SELECT %s FROM form_configurations WHERE table_name = %s",
		formColumns, pb.Add(tableName))
	return fs.queryOne(ctx, query, pb.Params()...)
}

// Create persists a new form and its fields in one transaction.
// created_by is always the authenticated caller, never client input.
func (fs *FormStore) Create(ctx context.Context, form *metadata.FormConfig, createdBy string) (*metadata.FormConfig, error) {
	if err := metadata.CheckIdentifier(form.TableName); err != nil {
		return nil, err
	}
	if existing, err := fs.GetByTableName(ctx, form.TableName); err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	} else if existing != nil {
		return nil, ErrTableNameTaken
	}

	roleJSON, err := encodeRoleNames(form.AllowedRoleNames)
	if err != nil {
		return nil, err
	}

	tx, err := fs.store.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	row := tx.QueryRowContext(ctx, `
		INSERT INTO form_configurations
			(name, title, description, table_name, is_active, allow_edit,
			 allow_delete, created_by, allowed_role_names, location_id,
			 created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
		RETURNING id`,
		form.Name, form.Title, form.Description, form.TableName,
		form.IsActive, form.AllowEdit, form.AllowDelete, createdBy,
		roleJSON, form.LocationID, now)
	if err := row.Scan(&form.ID); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrTableNameTaken
		}
		return nil, fmt.Errorf("create form: %w", err)
	}

	for i := range form.Fields {
		form.Fields[i].FormID = form.ID
		if err := insertField(ctx, tx, &form.Fields[i]); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	form.CreatedBy = createdBy
	form.CreatedAt = now
	form.UpdatedAt = now
	return form, nil
}

// Update applies a partial update and returns the fresh form.
func (fs *FormStore) Update(ctx context.Context, id int64, patch FormPatch) (*metadata.FormConfig, error) {
	pb := &store.ParamBuilder{}
	var sets []string
	if patch.Title != nil {
		sets = append(sets, "title = "+pb.Add(*patch.Title))
	}
	if patch.Description != nil {
		sets = append(sets, "description = "+pb.Add(*patch.Description))
	}
	if patch.IsActive != nil {
		sets = append(sets, "is_active = "+pb.Add(*patch.IsActive))
	}
	if patch.AllowEdit != nil {
		sets = append(sets, "allow_edit = "+pb.Add(*patch.AllowEdit))
	}
	if patch.AllowDelete != nil {
		sets = append(sets, "allow_delete = "+pb.Add(*patch.AllowDelete))
	}
	if patch.AllowedRoleNames != nil {
		roleJSON, err := encodeRoleNames(*patch.AllowedRoleNames)
		if err != nil {
			return nil, err
		}
		sets = append(sets, "allowed_role_names = "+pb.Add(roleJSON))
	}
	if patch.LocationID != nil {
		if *patch.LocationID == "" {
			sets = append(sets, "location_id = NULL")
		} else {
			sets = append(sets, "location_id = "+pb.Add(*patch.LocationID))
		}
	}
	if len(sets) > 0 {
		sets = append(sets, "updated_at = "+pb.Add(time.Now().UTC()))
		query := fmt.Sprintf("UPDATE form_configurations SET %s WHERE id = %s",
			strings.Join(sets, ", "), pb.Add(id))
		affected, err := store.Exec(ctx, fs.store.DB, query, pb.Params()...)
		if err != nil {
			return nil, fmt.Errorf("update form: %w", err)
		}
		if affected == 0 {
			return nil, store.ErrNotFound
		}
	}
	return fs.GetByID(ctx, id, rls.Unrestricted())
}

// ReplaceFields swaps the form's entire field list in one transaction.
func (fs *FormStore) ReplaceFields(ctx context.Context, formID int64, fields []metadata.FormField) error {
	tx, err := fs.store.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM form_fields WHERE form_id = $1", formID); err != nil {
		return fmt.Errorf("replace fields: %w", err)
	}
	for i := range fields {
		fields[i].FormID = formID
		if err := insertField(ctx, tx, &fields[i]); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE form_configurations SET updated_at = $1 WHERE id = $2",
		time.Now().UTC(), formID); err != nil {
		return err
	}
	return tx.Commit()
}

// AddField appends a single field to an existing form.
func (fs *FormStore) AddField(ctx context.Context, formID int64, field *metadata.FormField) error {
	field.FormID = formID
	tx, err := fs.store.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := insertField(ctx, tx, field); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE form_configurations SET updated_at = $1 WHERE id = $2",
		time.Now().UTC(), formID); err != nil {
		return err
	}
	return tx.Commit()
}

// Delete removes the form definition; fields cascade at the database
// level. The physical data table is the schema manager's concern.
func (fs *FormStore) Delete(ctx context.Context, id int64) error {
	affected, err := store.Exec(ctx, fs.store.DB,
		"DELETE FROM form_configurations WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete form: %w", err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (fs *FormStore) queryOne(ctx context.Context, query string, args ...any) (*metadata.FormConfig, error) {
	rows, err := fs.store.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load form: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, store.ErrNotFound
	}
	form, err := scanForm(rows)
	if err != nil {
		return nil, err
	}
	if err := fs.loadFields(ctx, form); err != nil {
		return nil, err
	}
	return form, nil
}

func (fs *FormStore) loadFields(ctx context.Context, form *metadata.FormConfig) error {
	query := fmt.Sprintf(
		"SELECT %s FROM form_fields WHERE form_id = $1 ORDER BY field_order, id",
		fieldColumns)
	rows, err := fs.store.DB.QueryContext(ctx, query, form.ID)
	if err != nil {
		return fmt.Errorf("load fields: %w", err)
	}
	defer rows.Close()

	form.Fields = []metadata.FormField{}
	for rows.Next() {
		field, err := scanField(rows)
		if err != nil {
			return err
		}
		form.Fields = append(form.Fields, *field)
	}
	return rows.Err()
}

func insertField(ctx context.Context, tx *sql.Tx, field *metadata.FormField) error {
	if err := metadata.CheckIdentifier(field.FieldName); err != nil {
		return err
	}
	if !field.FieldType.Valid() {
		return fmt.Errorf("unknown field type %q", field.FieldType)
	}
	rulesJSON, err := json.Marshal(field.Rules)
	if err != nil {
		return err
	}
	optionsJSON, err := json.Marshal(field.Options)
	if err != nil {
		return err
	}
	row := tx.QueryRowContext(ctx, `
		INSERT INTO form_fields
			(form_id, field_name, field_label, field_type, field_order,
			 is_required, default_value, placeholder, help_text,
			 validation_rules, options)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`,
		field.FormID, field.FieldName, field.FieldLabel, string(field.FieldType),
		field.FieldOrder, field.IsRequired, field.DefaultValue,
		field.Placeholder, field.HelpText, rulesJSON, optionsJSON)
	if err := row.Scan(&field.ID); err != nil {
		return fmt.Errorf("insert field %s: %w", field.FieldName, err)
	}
	return nil
}

func scanForm(rows *sql.Rows) (*metadata.FormConfig, error) {
	var (
		form      metadata.FormConfig
		descr     sql.NullString
		roleJSON  []byte
		location  sql.NullString
		createdAt time.Time
		updatedAt time.Time
	)
	err := rows.Scan(&form.ID, &form.Name, &form.Title, &descr, &form.TableName,
		&form.IsActive, &form.AllowEdit, &form.AllowDelete, &form.CreatedBy,
		&roleJSON, &location, &createdAt, &updatedAt)
	if err != nil {
		return nil, fmt.Errorf("scan form: %w", err)
	}
	form.Description = descr.String
	form.AllowedRoleNames = decodeRoleNames(roleJSON)
	if location.Valid {
		form.LocationID = &location.String
	}
	form.CreatedAt = createdAt
	form.UpdatedAt = updatedAt
	return &form, nil
}

func scanField(rows *sql.Rows) (*metadata.FormField, error) {
	var (
		field       metadata.FormField
		fieldType   string
		defVal      sql.NullString
		placeholder sql.NullString
		helpText    sql.NullString
		rulesJSON   []byte
		optionsJSON []byte
	)
	err := rows.Scan(&field.ID, &field.FormID, &field.FieldName, &field.FieldLabel,
		&fieldType, &field.FieldOrder, &field.IsRequired, &defVal,
		&placeholder, &helpText, &rulesJSON, &optionsJSON)
	if err != nil {
		return nil, fmt.Errorf("scan field: %w", err)
	}
	field.FieldType = metadata.FieldType(fieldType)
	field.DefaultValue = defVal.String
	field.Placeholder = placeholder.String
	field.HelpText = helpText.String
	if len(rulesJSON) > 0 {
		if err := json.Unmarshal(rulesJSON, &field.Rules); err != nil {
			return nil, fmt.Errorf("field %s: bad validation rules: %w", field.FieldName, err)
		}
	}
	if len(optionsJSON) > 0 {
		if err := json.Unmarshal(optionsJSON, &field.Options); err != nil {
			return nil, fmt.Errorf("field %s: bad options: %w", field.FieldName, err)
		}
	}
	return &field, nil
}

func encodeRoleNames(names []string) ([]byte, error) {
	if names == nil {
		names = []string{}
	}
	return json.Marshal(names)
}

func decodeRoleNames(raw []byte) []string {
	if len(raw) == 0 {
		return []string{}
	}
	var names []string
	if err := json.Unmarshal(raw, &names); err != nil || names == nil {
		return []string{}
	}
	return names
}

// isUniqueViolation matches PostgreSQL's unique_violation without
// depending on driver error types (23505 is the SQLSTATE).
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "23505")
}
