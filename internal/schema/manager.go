package schema

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"dataentry-backend/internal/metadata"
	"dataentry-backend/internal/store"
)

// ErrTableExists is returned by CreateTable when the physical table is
// already present.
var ErrTableExists = errors.New("table already exists")

// auditColumns are appended to every data table after the form's own
// columns. They are server-managed and never settable by clients.
var auditColumns = []string{
	"created_by VARCHAR(255)",
	"created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP",
	"updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP",
	"location_id VARCHAR(100)",
}

// requiredColumns must exist on every data table for it to be considered
// healthy.
var requiredColumns = []string{"id", "created_by", "created_at", "updated_at", "location_id"}

// Manager creates and additively migrates the physical tables backing
// form configurations. Columns are only ever added, never renamed,
// retyped or dropped.
type Manager struct {
	store *store.Store
}

func NewManager(s *store.Store) *Manager {
	return &Manager{store: s}
}

// CreateTable builds the backing table for a form: identity column, one
// column per field in field_order, audit columns, and a descending index
// on created_at. Table and index are created in a single transaction.
// Returns ErrTableExists when a table of that name is already present.
func (m *Manager) CreateTable(ctx context.Context, form *metadata.FormConfig) error {
	if err := metadata.CheckIdentifier(form.TableName); err != nil {
		return err
	}

	exists, err := m.TableExists(ctx, form.TableName)
	if err != nil {
		return fmt.Errorf("check table exists: %w", err)
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrTableExists, form.TableName)
	}

	cols := []string{"id SERIAL PRIMARY KEY"}
	for _, f := range form.OrderedFields() {
		def, err := columnDef(&f)
		if err != nil {
			return err
		}
		cols = append(cols, def)
	}
	cols = append(cols, auditColumns...)

	createSQL := fmt.Sprintf("CREATE TABLE %s (\n    %s\n)", form.TableName, strings.Join(cols, ",\n    "))
	indexSQL := fmt.Sprintf("CREATE INDEX idx_%s_created_at ON %s (created_at DESC)", form.TableName, form.TableName)

	tx, err := m.store.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, createSQL); err != nil {
		return fmt.Errorf("create table %s: %w", form.TableName, err)
	}
	if _, err := tx.ExecContext(ctx, indexSQL); err != nil {
		return fmt.Errorf("create index on %s: %w", form.TableName, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	log.Printf("Created table: %s", form.TableName)
	return nil
}

// MigrateSchema brings the physical table in line with the form: missing
// columns are added, nothing is removed or altered. Each ALTER is
// attempted individually; a failed addition (including a concurrent
// duplicate add) is logged and skipped so the rest of the batch proceeds.
// Returns the names of the columns that were added.
func (m *Manager) MigrateSchema(ctx context.Context, form *metadata.FormConfig) ([]string, error) {
	if err := metadata.CheckIdentifier(form.TableName); err != nil {
		return nil, err
	}

	exists, err := m.TableExists(ctx, form.TableName)
	if err != nil {
		return nil, fmt.Errorf("check table exists: %w", err)
	}
	if !exists {
		if err := m.CreateTable(ctx, form); err != nil {
			return nil, err
		}
		return form.FieldNames(), nil
	}

	existing, err := m.TableColumns(ctx, form.TableName)
	if err != nil {
		return nil, fmt.Errorf("get columns for %s: %w", form.TableName, err)
	}

	var added []string
	for _, f := range form.OrderedFields() {
		if _, ok := existing[f.FieldName]; ok {
			continue
		}
		def, err := columnDef(&f)
		if err != nil {
			log.Printf("WARN: skipping column %s.%s: %v", form.TableName, f.FieldName, err)
			continue
		}
		alterSQL := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", form.TableName, def)
		if _, err := m.store.DB.ExecContext(ctx, alterSQL); err != nil {
			log.Printf("WARN: failed to add column %s.%s: %v", form.TableName, f.FieldName, err)
			continue
		}
		log.Printf("Added column %s to %s", f.FieldName, form.TableName)
		added = append(added, f.FieldName)
	}
	return added, nil
}

// Report is the result of ValidateSchema.
type Report struct {
	Valid  bool     `json:"valid"`
	Issues []string `json:"issues"`
}

// ValidateSchema checks that the physical table exists, carries a column
// for every declared field, and has all audit columns.
func (m *Manager) ValidateSchema(ctx context.Context, form *metadata.FormConfig) (*Report, error) {
	if err := metadata.CheckIdentifier(form.TableName); err != nil {
		return nil, err
	}

	exists, err := m.TableExists(ctx, form.TableName)
	if err != nil {
		return nil, fmt.Errorf("check table exists: %w", err)
	}
	if !exists {
		return &Report{
			Valid:  false,
			Issues: []string{fmt.Sprintf("Table %s does not exist", form.TableName)},
		}, nil
	}

	existing, err := m.TableColumns(ctx, form.TableName)
	if err != nil {
		return nil, fmt.Errorf("get columns for %s: %w", form.TableName, err)
	}

	issues := []string{}

	var missing []string
	for _, name := range form.FieldNames() {
		if _, ok := existing[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		issues = append(issues, "Missing columns: "+strings.Join(missing, ", "))
	}

	var missingAudit []string
	for _, name := range requiredColumns {
		if _, ok := existing[name]; !ok {
			missingAudit = append(missingAudit, name)
		}
	}
	if len(missingAudit) > 0 {
		issues = append(issues, "Missing audit columns: "+strings.Join(missingAudit, ", "))
	}

	return &Report{Valid: len(issues) == 0, Issues: issues}, nil
}

// DropTable irreversibly drops a data table and its dependent objects.
// Administrative use only; never called from normal request flow.
func (m *Manager) DropTable(ctx context.Context, tableName string) error {
	if err := metadata.CheckIdentifier(tableName); err != nil {
		return err
	}
	if _, err := m.store.DB.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", tableName)); err != nil {
		return fmt.Errorf("drop table %s: %w", tableName, err)
	}
	log.Printf("WARN: dropped table: %s", tableName)
	return nil
}

// TableExists checks whether a table exists in the public schema.
func (m *Manager) TableExists(ctx context.Context, tableName string) (bool, error) {
	var exists bool
	err := m.store.DB.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM information_schema.tables WHERE table_name = $1 AND table_schema = 'public')`,
		tableName,
	).Scan(&exists)
	return exists, err
}

// TableColumns returns the existing column names and data types.
func (m *Manager) TableColumns(ctx context.Context, tableName string) (map[string]string, error) {
	rows, err := m.store.DB.QueryContext(ctx,
		`SELECT column_name, data_type FROM information_schema.columns WHERE table_name = $1 AND table_schema = 'public'`,
		tableName,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := make(map[string]string)
	for rows.Next() {
		var name, dataType string
		if err := rows.Scan(&name, &dataType); err != nil {
			return nil, err
		}
		cols[name] = dataType
	}
	return cols, rows.Err()
}

// columnDef renders one field as a column definition:
// name, physical type, NOT NULL iff required, DEFAULT per type.
func columnDef(f *metadata.FormField) (string, error) {
	if err := metadata.CheckIdentifier(f.FieldName); err != nil {
		return "", err
	}

	def := f.FieldName + " " + f.FieldType.ColumnType()
	if f.IsRequired {
		def += " NOT NULL"
	} else {
		def += " NULL"
	}
	if lit := f.DefaultLiteral(); lit != "" {
		def += " DEFAULT " + lit
	}
	return def, nil
}
