package api

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"dataentry-backend/internal/entry"
	"dataentry-backend/internal/metadata"
	"dataentry-backend/internal/store"
)

// ListEntries handles GET /forms/:id/entries.
func (h *Handler) ListEntries(c *fiber.Ctx) error {
	user := getUser(c)
	form, err := h.loadForm(c, user)
	if err != nil {
		return err
	}
	if !h.access.CanEnter(c.Context(), user, form) {
		return respondError(c, ForbiddenError("You do not have access to this form"))
	}

	scope := h.rls.AllowedLocations(c.Context(), user)
	page, err := h.entries.List(c.Context(), form, scope,
		c.QueryInt("page", 1), c.QueryInt("per_page", 0))
	if err != nil {
		return fmt.Errorf("list entries of %s: %w", form.TableName, err)
	}
	return c.JSON(fiber.Map{
		"data": page.Entries,
		"meta": fiber.Map{
			"page":     page.Page,
			"per_page": page.PerPage,
			"total":    page.Total,
		},
	})
}

// ExportEntries handles GET /forms/:id/entries/export: every scoped row
// in stable order, up to the configured cap.
func (h *Handler) ExportEntries(c *fiber.Ctx) error {
	user := getUser(c)
	form, err := h.loadForm(c, user)
	if err != nil {
		return err
	}
	if !h.access.CanEnter(c.Context(), user, form) {
		return respondError(c, ForbiddenError("You do not have access to this form"))
	}

	scope := h.rls.AllowedLocations(c.Context(), user)
	rows, err := h.entries.Export(c.Context(), form, scope)
	if err != nil {
		return fmt.Errorf("export entries of %s: %w", form.TableName, err)
	}
	return c.JSON(fiber.Map{
		"data": rows,
		"meta": fiber.Map{"total": len(rows)},
	})
}

// GetEntry handles GET /forms/:id/entries/:recordID.
func (h *Handler) GetEntry(c *fiber.Ctx) error {
	user := getUser(c)
	form, err := h.loadForm(c, user)
	if err != nil {
		return err
	}
	if !h.access.CanEnter(c.Context(), user, form) {
		return respondError(c, ForbiddenError("You do not have access to this form"))
	}

	recordID, appErr := recordIDParam(c)
	if appErr != nil {
		return respondError(c, appErr)
	}
	scope := h.rls.AllowedLocations(c.Context(), user)
	row, err := h.entries.GetByID(c.Context(), form, scope, recordID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return respondError(c, NotFoundError("Entry", recordID))
		}
		return fmt.Errorf("get entry %d of %s: %w", recordID, form.TableName, err)
	}
	return c.JSON(fiber.Map{"data": row})
}

// CreateEntry handles POST /forms/:id/entries. The payload is validated
// against the form's rules before any write.
func (h *Handler) CreateEntry(c *fiber.Ctx) error {
	user := getUser(c)
	form, err := h.loadForm(c, user)
	if err != nil {
		return err
	}
	if !h.access.CanEnter(c.Context(), user, form) {
		return respondError(c, ForbiddenError("You do not have access to this form"))
	}
	if !form.IsActive {
		return respondError(c, ForbiddenError("This form is not accepting entries"))
	}

	values, appErr := parseEntryBody(c)
	if appErr != nil {
		return respondError(c, appErr)
	}
	if errs := h.validator.ValidateForm(form, values); len(errs) > 0 {
		return respondError(c, ValidationError(errs))
	}

	id, err := h.entries.Insert(c.Context(), form, user, values)
	if err != nil {
		return fmt.Errorf("insert entry into %s: %w", form.TableName, err)
	}
	return c.Status(201).JSON(fiber.Map{"data": fiber.Map{"id": id}})
}

// UpdateEntry handles PUT /forms/:id/entries/:recordID. Requires the
// form's allow_edit flag; only declared fields change.
func (h *Handler) UpdateEntry(c *fiber.Ctx) error {
	user := getUser(c)
	form, err := h.loadForm(c, user)
	if err != nil {
		return err
	}
	if !h.access.CanEnter(c.Context(), user, form) {
		return respondError(c, ForbiddenError("You do not have access to this form"))
	}
	if !form.AllowEdit {
		return respondError(c, ForbiddenError("This form does not allow editing entries"))
	}

	recordID, appErr := recordIDParam(c)
	if appErr != nil {
		return respondError(c, appErr)
	}
	values, appErr := parseEntryBody(c)
	if appErr != nil {
		return respondError(c, appErr)
	}

	scope := h.rls.AllowedLocations(c.Context(), user)
	current, err := h.entries.GetByID(c.Context(), form, scope, recordID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return respondError(c, NotFoundError("Entry", recordID))
		}
		return fmt.Errorf("get entry %d of %s: %w", recordID, form.TableName, err)
	}

	// Validate the merged row so partial updates cannot bypass rules
	// that involve untouched fields.
	merged := mergeEntry(form, current, values)
	if errs := h.validator.ValidateForm(form, merged); len(errs) > 0 {
		return respondError(c, ValidationError(errs))
	}

	if err := h.entries.Update(c.Context(), form, scope, recordID, values); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return respondError(c, NotFoundError("Entry", recordID))
		}
		return fmt.Errorf("update entry %d of %s: %w", recordID, form.TableName, err)
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"id": recordID}})
}

// DeleteEntry handles DELETE /forms/:id/entries/:recordID. Requires the
// form's allow_delete flag.
func (h *Handler) DeleteEntry(c *fiber.Ctx) error {
	user := getUser(c)
	form, err := h.loadForm(c, user)
	if err != nil {
		return err
	}
	if !h.access.CanEnter(c.Context(), user, form) {
		return respondError(c, ForbiddenError("You do not have access to this form"))
	}
	if !form.AllowDelete {
		return respondError(c, ForbiddenError("This form does not allow deleting entries"))
	}

	recordID, appErr := recordIDParam(c)
	if appErr != nil {
		return respondError(c, appErr)
	}
	scope := h.rls.AllowedLocations(c.Context(), user)
	if err := h.entries.Delete(c.Context(), form, scope, recordID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return respondError(c, NotFoundError("Entry", recordID))
		}
		return fmt.Errorf("delete entry %d of %s: %w", recordID, form.TableName, err)
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"id": recordID}})
}

// ValidateEntry handles POST /forms/:id/validate: a dry run of the
// validation engine, no write.
func (h *Handler) ValidateEntry(c *fiber.Ctx) error {
	user := getUser(c)
	form, err := h.loadForm(c, user)
	if err != nil {
		return err
	}
	if !h.access.CanEnter(c.Context(), user, form) {
		return respondError(c, ForbiddenError("You do not have access to this form"))
	}

	values, appErr := parseEntryBody(c)
	if appErr != nil {
		return respondError(c, appErr)
	}
	errs := h.validator.ValidateForm(form, values)
	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"valid":  len(errs) == 0,
			"errors": errs,
		},
	})
}

func recordIDParam(c *fiber.Ctx) (int64, *AppError) {
	id, err := c.ParamsInt("recordID")
	if err != nil || id < 1 {
		return 0, NewAppError("INVALID_ID", 400, "Invalid entry id")
	}
	return int64(id), nil
}

func parseEntryBody(c *fiber.Ctx) (map[string]any, *AppError) {
	var body map[string]any
	if err := c.BodyParser(&body); err != nil {
		return nil, NewAppError("INVALID_PAYLOAD", 400, "Invalid JSON body")
	}
	return entry.StripAudit(body), nil
}

// mergeEntry overlays the incoming values on the stored row, restricted
// to declared fields. Stored values are coerced back to the shapes the
// validation engine expects before the merge.
func mergeEntry(form *metadata.FormConfig, current map[string]any, values map[string]any) map[string]any {
	merged := make(map[string]any, len(form.Fields))
	for _, f := range form.Fields {
		if v, ok := current[f.FieldName]; ok {
			merged[f.FieldName] = storedValue(f, v)
		}
	}
	for k, v := range values {
		if form.HasField(k) {
			merged[k] = v
		}
	}
	return merged
}

// storedValue undoes database representations that would fail the type
// check: NUMERIC and DECIMAL columns scan through database/sql as
// strings ("30.00"), not numbers.
func storedValue(f metadata.FormField, v any) any {
	s, ok := v.(string)
	if !ok || !f.FieldType.IsNumeric() {
		return v
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return v
	}
	return n
}
