package entry

import (
	"context"
	"fmt"
	"strings"
	"time"

	"dataentry-backend/internal/metadata"
	"dataentry-backend/internal/rls"
	"dataentry-backend/internal/store"
)

const (
	defaultPerPage = 25
	maxPerPage     = 100
)

// auditKeys are server-owned columns. Client payloads may not set them;
// any attempt is silently discarded before insert or update.
var auditKeys = map[string]struct{}{
	"id":          {},
	"created_by":  {},
	"created_at":  {},
	"updated_at":  {},
	"location_id": {},
}

// EntryStore reads and writes rows of the dynamic per-form tables. It
// only ever touches columns the form declares plus the audit columns,
// and re-validates every identifier before interpolating it.
type EntryStore struct {
	store         *store.Store
	maxExportRows int
}

func NewStore(s *store.Store, maxExportRows int) *EntryStore {
	if maxExportRows <= 0 {
		maxExportRows = 50000
	}
	return &EntryStore{store: s, maxExportRows: maxExportRows}
}

// Page is one page of entries plus the scope-filtered total.
type Page struct {
	Entries []map[string]any `json:"entries"`
	Total   int64            `json:"total"`
	Page    int              `json:"page"`
	PerPage int              `json:"per_page"`
}

// List returns a page of the form's entries, newest first, restricted
// to the location scope. Page numbers start at 1; per-page is capped.
func (es *EntryStore) List(ctx context.Context, form *metadata.FormConfig, scope rls.Scope, page, perPage int) (*Page, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}
	result := &Page{Entries: []map[string]any{}, Page: page, PerPage: perPage}
	if scope.AllowsNothing() {
		return result, nil
	}
	if err := metadata.CheckIdentifier(form.TableName); err != nil {
		return nil, err
	}

	pb := &store.ParamBuilder{}
	where := ""
	if filter := scope.SQLFilter("location_id", pb); filter != "" {
		where = " WHERE " + filter
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM %s%s", form.TableName, where)
	if err := es.store.DB.QueryRowContext(ctx, countQuery, pb.Params()...).Scan(&result.Total); err != nil {
		return nil, fmt.Errorf("count entries: %w", err)
	}

	query := fmt.Sprintf("SELECT * FROM %s%s ORDER BY created_at DESC, id DESC LIMIT %s OFFSET %s",
		form.TableName, where, pb.Add(perPage), pb.Add((page-1)*perPage))
	rows, err := store.QueryRows(ctx, es.store.DB, query, pb.Params()...)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	result.Entries = rows
	return result, nil
}

// Export returns all scoped entries in stable id order, capped at the
// configured export limit.
func (es *EntryStore) Export(ctx context.Context, form *metadata.FormConfig, scope rls.Scope) ([]map[string]any, error) {
	if scope.AllowsNothing() {
		return []map[string]any{}, nil
	}
	if err := metadata.CheckIdentifier(form.TableName); err != nil {
		return nil, err
	}
	pb := &store.ParamBuilder{}
	where := ""
	if filter := scope.SQLFilter("location_id", pb); filter != "" {
		where = " WHERE " + filter
	}
	query := fmt.Sprintf("SELECT * FROM %s%s ORDER BY id ASC LIMIT %s",
		form.TableName, where, pb.Add(es.maxExportRows))
	rows, err := store.QueryRows(ctx, es.store.DB, query, pb.Params()...)
	if err != nil {
		return nil, fmt.Errorf("export entries: %w", err)
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	return rows, nil
}

// GetByID loads one entry within the scope, or store.ErrNotFound. An
// out-of-scope row is indistinguishable from an absent one.
func (es *EntryStore) GetByID(ctx context.Context, form *metadata.FormConfig, scope rls.Scope, recordID int64) (map[string]any, error) {
	if scope.AllowsNothing() {
		return nil, store.ErrNotFound
	}
	if err := metadata.CheckIdentifier(form.TableName); err != nil {
		return nil, err
	}
	pb := &store.ParamBuilder{}
	query := fmt.Sprintf("SELECT * FROM %s WHERE id = %s", form.TableName, pb.Add(recordID))
	if filter := scope.SQLFilter("location_id", pb); filter != "" {
		query += " AND " + filter
	}
	row, err := store.QueryRow(ctx, es.store.DB, query, pb.Params()...)
	if err != nil {
		return nil, err
	}
	return row, nil
}

// Insert creates an entry from the client payload. Only declared
// fields are written; audit columns are always server-populated, with
// location_id inherited from the form. Returns the new row id.
func (es *EntryStore) Insert(ctx context.Context, form *metadata.FormConfig, user *metadata.UserContext, values map[string]any) (int64, error) {
	if err := metadata.CheckIdentifier(form.TableName); err != nil {
		return 0, err
	}
	pb := &store.ParamBuilder{}
	var columns, placeholders []string
	for _, field := range form.OrderedFields() {
		v, ok := values[field.FieldName]
		if !ok {
			continue
		}
		if err := metadata.CheckIdentifier(field.FieldName); err != nil {
			return 0, err
		}
		columns = append(columns, field.FieldName)
		placeholders = append(placeholders, pb.Add(normalizeInput(v)))
	}

	now := time.Now().UTC()
	columns = append(columns, "created_by", "created_at", "updated_at")
	placeholders = append(placeholders, pb.Add(user.Username), pb.Add(now), pb.Add(now))
	if form.LocationID != nil {
		columns = append(columns, "location_id")
		placeholders = append(placeholders, pb.Add(*form.LocationID))
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING id",
		form.TableName, strings.Join(columns, ", "), strings.Join(placeholders, ", "))
	var id int64
	if err := es.store.DB.QueryRowContext(ctx, query, pb.Params()...).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert entry: %w", err)
	}
	return id, nil
}

// Update modifies declared-field columns of one scoped entry and
// refreshes updated_at. Audit columns in the payload are ignored.
func (es *EntryStore) Update(ctx context.Context, form *metadata.FormConfig, scope rls.Scope, recordID int64, values map[string]any) error {
	if scope.AllowsNothing() {
		return store.ErrNotFound
	}
	if err := metadata.CheckIdentifier(form.TableName); err != nil {
		return err
	}
	pb := &store.ParamBuilder{}
	var sets []string
	for _, field := range form.OrderedFields() {
		v, ok := values[field.FieldName]
		if !ok {
			continue
		}
		if err := metadata.CheckIdentifier(field.FieldName); err != nil {
			return err
		}
		sets = append(sets, field.FieldName+" = "+pb.Add(normalizeInput(v)))
	}
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = "+pb.Add(time.Now().UTC()))

	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = %s",
		form.TableName, strings.Join(sets, ", "), pb.Add(recordID))
	if filter := scope.SQLFilter("location_id", pb); filter != "" {
		query += " AND " + filter
	}
	affected, err := store.Exec(ctx, es.store.DB, query, pb.Params()...)
	if err != nil {
		return fmt.Errorf("update entry: %w", err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Delete removes one scoped entry.
func (es *EntryStore) Delete(ctx context.Context, form *metadata.FormConfig, scope rls.Scope, recordID int64) error {
	if scope.AllowsNothing() {
		return store.ErrNotFound
	}
	if err := metadata.CheckIdentifier(form.TableName); err != nil {
		return err
	}
	pb := &store.ParamBuilder{}
	query := fmt.Sprintf("DELETE FROM %s WHERE id = %s", form.TableName, pb.Add(recordID))
	if filter := scope.SQLFilter("location_id", pb); filter != "" {
		query += " AND " + filter
	}
	affected, err := store.Exec(ctx, es.store.DB, query, pb.Params()...)
	if err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// StripAudit returns a copy of the payload without the server-owned
// keys. Handlers call this before validation so clients cannot smuggle
// audit values in or trip validation on columns they do not own.
func StripAudit(values map[string]any) map[string]any {
	clean := make(map[string]any, len(values))
	for k, v := range values {
		if _, reserved := auditKeys[strings.ToLower(k)]; reserved {
			continue
		}
		clean[k] = v
	}
	return clean
}

// normalizeInput converts JSON-decoded values into driver-friendly
// ones. Empty strings become NULL so optional columns stay unset.
func normalizeInput(v any) any {
	switch val := v.(type) {
	case string:
		if strings.TrimSpace(val) == "" {
			return nil
		}
		return val
	default:
		return v
	}
}
