package api

import "github.com/gofiber/fiber/v2"

// RegisterRoutes mounts the data-entry REST surface. Health stays
// open; everything else sits behind the auth middleware.
func RegisterRoutes(app *fiber.App, h *Handler, authMW fiber.Handler) {
	api := app.Group("/api/v1/data-entry")

	api.Get("/health", h.Health)

	api.Use(authMW)

	api.Get("/roles", h.ListRoles)

	api.Get("/forms", h.ListForms)
	api.Post("/forms", h.CreateForm)
	api.Get("/forms/by-name/:name", h.GetFormByName)
	api.Get("/forms/:id", h.GetForm)
	api.Put("/forms/:id", h.UpdateForm)
	api.Delete("/forms/:id", h.DeleteForm)
	api.Post("/forms/:id/fields", h.AddFormField)
	api.Get("/forms/:id/schema", h.GetFormSchema)
	api.Post("/forms/:id/validate", h.ValidateEntry)

	api.Get("/forms/:id/entries", h.ListEntries)
	api.Post("/forms/:id/entries", h.CreateEntry)
	api.Get("/forms/:id/entries/export", h.ExportEntries)
	api.Get("/forms/:id/entries/:recordID", h.GetEntry)
	api.Put("/forms/:id/entries/:recordID", h.UpdateEntry)
	api.Delete("/forms/:id/entries/:recordID", h.DeleteEntry)
}
