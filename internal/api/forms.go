package api

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"

	"dataentry-backend/internal/access"
	"dataentry-backend/internal/entry"
	"dataentry-backend/internal/forms"
	"dataentry-backend/internal/metadata"
	"dataentry-backend/internal/rls"
	"dataentry-backend/internal/schema"
	"dataentry-backend/internal/store"
	"dataentry-backend/internal/validation"
)

// Handler wires the form, entry and schema services behind the REST
// surface. Every request resolves the caller's location scope once and
// threads it through all data access.
type Handler struct {
	forms     *forms.FormStore
	entries   *entry.EntryStore
	schema    *schema.Manager
	validator *validation.Engine
	rls       *rls.Resolver
	access    *access.Resolver
	version   string
}

func NewHandler(fs *forms.FormStore, es *entry.EntryStore, sm *schema.Manager,
	v *validation.Engine, rr *rls.Resolver, ar *access.Resolver, version string) *Handler {
	return &Handler{
		forms:     fs,
		entries:   es,
		schema:    sm,
		validator: v,
		rls:       rr,
		access:    ar,
		version:   version,
	}
}

// formPayload is the create/update request body for form definitions.
type formPayload struct {
	Name             string               `json:"name"`
	Title            string               `json:"title"`
	Description      string               `json:"description"`
	TableName        string               `json:"table_name"`
	IsActive         *bool                `json:"is_active"`
	AllowEdit        *bool                `json:"allow_edit"`
	AllowDelete      *bool                `json:"allow_delete"`
	AllowedRoleNames *[]string            `json:"allowed_role_names"`
	LocationID       *string              `json:"location_id"`
	Fields           []metadata.FormField `json:"fields"`
	AutoCreateTable  bool                 `json:"auto_create_table"`
}

// ListForms handles GET /forms. Only active, in-scope forms the caller
// may enter are returned.
func (h *Handler) ListForms(c *fiber.Ctx) error {
	user := getUser(c)
	scope := h.rls.AllowedLocations(c.Context(), user)

	all, err := h.forms.ListActive(c.Context(), scope)
	if err != nil {
		return fmt.Errorf("list forms: %w", err)
	}

	visible := make([]*metadata.FormConfig, 0, len(all))
	for _, form := range all {
		if h.access.CanEnter(c.Context(), user, form) {
			visible = append(visible, form)
		}
	}
	return c.JSON(fiber.Map{"data": visible})
}

// GetForm handles GET /forms/:id.
func (h *Handler) GetForm(c *fiber.Ctx) error {
	user := getUser(c)
	form, err := h.loadForm(c, user)
	if err != nil {
		return err
	}
	if !h.access.CanEnter(c.Context(), user, form) {
		return respondError(c, ForbiddenError("You do not have access to this form"))
	}
	return c.JSON(fiber.Map{"data": form})
}

// GetFormByName handles GET /forms/by-name/:name. Display names are not
// unique; the newest active match wins.
func (h *Handler) GetFormByName(c *fiber.Ctx) error {
	user := getUser(c)
	scope := h.rls.AllowedLocations(c.Context(), user)
	name := c.Params("name")

	form, err := h.forms.GetByName(c.Context(), name, scope)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return respondError(c, NewAppError("NOT_FOUND", 404,
				fmt.Sprintf("Form %s not found", name)))
		}
		return fmt.Errorf("get form %s: %w", name, err)
	}
	if !h.access.CanEnter(c.Context(), user, form) {
		return respondError(c, ForbiddenError("You do not have access to this form"))
	}
	return c.JSON(fiber.Map{"data": form})
}

// CreateForm handles POST /forms. The caller becomes the owner; the
// form's location must lie within the caller's scope.
func (h *Handler) CreateForm(c *fiber.Ctx) error {
	user := getUser(c)
	if user == nil {
		return respondError(c, UnauthorizedError("Authentication required"))
	}

	var body formPayload
	if err := c.BodyParser(&body); err != nil {
		return respondError(c, NewAppError("INVALID_PAYLOAD", 400, "Invalid JSON body"))
	}
	if strings.TrimSpace(body.Name) == "" || strings.TrimSpace(body.TableName) == "" {
		return respondError(c, NewAppError("INVALID_PAYLOAD", 400, "name and table_name are required"))
	}
	if err := metadata.CheckIdentifier(body.TableName); err != nil {
		return respondError(c, NewAppError("INVALID_PAYLOAD", 400, err.Error()))
	}
	if fieldErrs := h.checkFieldDefinitions(body.Fields); fieldErrs != nil {
		return respondError(c, ValidationError(fieldErrs))
	}

	scope := h.rls.AllowedLocations(c.Context(), user)
	if !scope.Contains(body.LocationID) {
		return respondError(c, ForbiddenError("You cannot create forms for this location"))
	}

	form := &metadata.FormConfig{
		Name:        body.Name,
		Title:       orDefault(body.Title, body.Name),
		Description: body.Description,
		TableName:   body.TableName,
		IsActive:    boolOr(body.IsActive, true),
		AllowEdit:   boolOr(body.AllowEdit, true),
		AllowDelete: boolOr(body.AllowDelete, false),
		LocationID:  body.LocationID,
		Fields:      body.Fields,
	}
	if body.AllowedRoleNames != nil {
		form.AllowedRoleNames = *body.AllowedRoleNames
	}

	created, err := h.forms.Create(c.Context(), form, user.Username)
	if err != nil {
		if errors.Is(err, forms.ErrTableNameTaken) {
			return respondError(c, ConflictError(
				fmt.Sprintf("Table %s is already used by another form", body.TableName)))
		}
		return fmt.Errorf("create form: %w", err)
	}

	if body.AutoCreateTable {
		if err := h.schema.CreateTable(c.Context(), created); err != nil {
			if errors.Is(err, schema.ErrTableExists) {
				return respondError(c, ConflictError(
					fmt.Sprintf("Table %s already exists", created.TableName)))
			}
			return fmt.Errorf("create table %s: %w", created.TableName, err)
		}
	}
	return c.Status(201).JSON(fiber.Map{"data": created})
}

// UpdateForm handles PUT /forms/:id. Owner only; name, table name and
// ownership never change.
func (h *Handler) UpdateForm(c *fiber.Ctx) error {
	user := getUser(c)
	form, err := h.loadForm(c, user)
	if err != nil {
		return err
	}
	if !h.access.CanConfigure(user, form) {
		return respondError(c, ForbiddenError("Only the form owner can modify its configuration"))
	}

	var body formPayload
	if err := c.BodyParser(&body); err != nil {
		return respondError(c, NewAppError("INVALID_PAYLOAD", 400, "Invalid JSON body"))
	}

	patch := forms.FormPatch{
		IsActive:         body.IsActive,
		AllowEdit:        body.AllowEdit,
		AllowDelete:      body.AllowDelete,
		AllowedRoleNames: body.AllowedRoleNames,
		LocationID:       body.LocationID,
	}
	if body.Title != "" {
		patch.Title = &body.Title
	}
	if body.Description != "" {
		patch.Description = &body.Description
	}
	if body.LocationID != nil && *body.LocationID != "" {
		scope := h.rls.AllowedLocations(c.Context(), user)
		if !scope.Contains(body.LocationID) {
			return respondError(c, ForbiddenError("You cannot move this form to that location"))
		}
	}

	updated, err := h.forms.Update(c.Context(), form.ID, patch)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return respondError(c, NotFoundError("Form", form.ID))
		}
		return fmt.Errorf("update form %d: %w", form.ID, err)
	}

	if len(body.Fields) > 0 {
		if fieldErrs := h.checkFieldDefinitions(body.Fields); fieldErrs != nil {
			return respondError(c, ValidationError(fieldErrs))
		}
		if err := h.forms.ReplaceFields(c.Context(), form.ID, body.Fields); err != nil {
			return fmt.Errorf("replace fields of form %d: %w", form.ID, err)
		}
		updated, err = h.forms.GetByID(c.Context(), form.ID, rls.Unrestricted())
		if err != nil {
			return fmt.Errorf("reload form %d: %w", form.ID, err)
		}
	}
	return c.JSON(fiber.Map{"data": updated})
}

// DeleteForm handles DELETE /forms/:id. Owner only. The form definition
// is removed; drop_table additionally removes the physical table.
func (h *Handler) DeleteForm(c *fiber.Ctx) error {
	user := getUser(c)
	form, err := h.loadForm(c, user)
	if err != nil {
		return err
	}
	if !h.access.CanConfigure(user, form) {
		return respondError(c, ForbiddenError("Only the form owner can delete it"))
	}

	if err := h.forms.Delete(c.Context(), form.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return respondError(c, NotFoundError("Form", form.ID))
		}
		return fmt.Errorf("delete form %d: %w", form.ID, err)
	}
	if c.QueryBool("drop_table") {
		if err := h.schema.DropTable(c.Context(), form.TableName); err != nil {
			return fmt.Errorf("drop table %s: %w", form.TableName, err)
		}
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"id": form.ID}})
}

// AddFormField handles POST /forms/:id/fields. Owner only; with
// auto_migrate the physical table gains the column immediately.
func (h *Handler) AddFormField(c *fiber.Ctx) error {
	user := getUser(c)
	form, err := h.loadForm(c, user)
	if err != nil {
		return err
	}
	if !h.access.CanConfigure(user, form) {
		return respondError(c, ForbiddenError("Only the form owner can modify its fields"))
	}

	var field metadata.FormField
	if err := c.BodyParser(&field); err != nil {
		return respondError(c, NewAppError("INVALID_PAYLOAD", 400, "Invalid JSON body"))
	}
	if fieldErrs := h.checkFieldDefinitions([]metadata.FormField{field}); fieldErrs != nil {
		return respondError(c, ValidationError(fieldErrs))
	}
	if form.HasField(field.FieldName) {
		return respondError(c, ConflictError(
			fmt.Sprintf("Field %s already exists on this form", field.FieldName)))
	}

	if err := h.forms.AddField(c.Context(), form.ID, &field); err != nil {
		return fmt.Errorf("add field to form %d: %w", form.ID, err)
	}

	var added []string
	if c.QueryBool("auto_migrate", true) {
		fresh, err := h.forms.GetByID(c.Context(), form.ID, rls.Unrestricted())
		if err != nil {
			return fmt.Errorf("reload form %d: %w", form.ID, err)
		}
		added, err = h.schema.MigrateSchema(c.Context(), fresh)
		if err != nil {
			return fmt.Errorf("migrate table %s: %w", form.TableName, err)
		}
	}
	return c.Status(201).JSON(fiber.Map{
		"data": field,
		"meta": fiber.Map{"columns_added": added},
	})
}

// GetFormSchema handles GET /forms/:id/schema: a drift report plus a
// fingerprint of the declared shape.
func (h *Handler) GetFormSchema(c *fiber.Ctx) error {
	user := getUser(c)
	form, err := h.loadForm(c, user)
	if err != nil {
		return err
	}
	if !h.access.CanEnter(c.Context(), user, form) {
		return respondError(c, ForbiddenError("You do not have access to this form"))
	}

	report, err := h.schema.ValidateSchema(c.Context(), form)
	if err != nil {
		return fmt.Errorf("validate schema of %s: %w", form.TableName, err)
	}
	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"report":      report,
			"fingerprint": schema.Fingerprint(form),
		},
	})
}

// ListRoles handles GET /roles, feeding the allow-list picker.
func (h *Handler) ListRoles(c *fiber.Ctx) error {
	names, err := h.access.AvailableRoleNames(c.Context())
	if err != nil {
		return fmt.Errorf("list roles: %w", err)
	}
	return c.JSON(fiber.Map{"data": names})
}

// Health handles GET /health.
func (h *Handler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok", "version": h.version})
}

// loadForm resolves :id within the caller's scope. Out-of-scope forms
// read as 404 so their existence is not leaked. Returns a non-nil error
// whenever the form is nil; callers must check it before touching the
// form, and the app error handler renders any *AppError it carries.
func (h *Handler) loadForm(c *fiber.Ctx, user *metadata.UserContext) (*metadata.FormConfig, error) {
	id, err := c.ParamsInt("id")
	if err != nil || id < 1 {
		return nil, NewAppError("INVALID_ID", 400, "Invalid form id")
	}
	scope := h.rls.AllowedLocations(c.Context(), user)
	form, err := h.forms.GetByID(c.Context(), int64(id), scope)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, NotFoundError("Form", id)
		}
		return nil, fmt.Errorf("get form %d: %w", id, err)
	}
	return form, nil
}

// checkFieldDefinitions validates field names, types and rule
// coherence. Returns nil when everything is well-formed.
func (h *Handler) checkFieldDefinitions(fields []metadata.FormField) map[string][]string {
	errs := map[string][]string{}
	seen := map[string]bool{}
	for _, f := range fields {
		key := f.FieldName
		if key == "" {
			key = "fields"
		}
		if err := metadata.CheckIdentifier(f.FieldName); err != nil {
			errs[key] = append(errs[key], err.Error())
			continue
		}
		if seen[f.FieldName] {
			errs[key] = append(errs[key], fmt.Sprintf("duplicate field name %s", f.FieldName))
		}
		seen[f.FieldName] = true
		if !f.FieldType.Valid() {
			errs[key] = append(errs[key], fmt.Sprintf("unknown field type %q", f.FieldType))
			continue
		}
		if f.FieldType == metadata.TypeSelect && len(f.Options) == 0 {
			errs[key] = append(errs[key], "select fields must declare at least one option")
		}
		for _, issue := range f.Rules.Validate(f.FieldType, h.validator.Registry().Names()) {
			errs[key] = append(errs[key], issue)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

func getUser(c *fiber.Ctx) *metadata.UserContext {
	user, _ := c.Locals("user").(*metadata.UserContext)
	return user
}

func respondError(c *fiber.Ctx, appErr *AppError) error {
	return c.Status(appErr.Status).JSON(ErrorResponse{Error: appErr})
}

func orDefault(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}

func boolOr(p *bool, fallback bool) bool {
	if p == nil {
		return fallback
	}
	return *p
}
