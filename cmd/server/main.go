package main

import (
	"context"
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"dataentry-backend/internal/access"
	"dataentry-backend/internal/api"
	"dataentry-backend/internal/auth"
	"dataentry-backend/internal/config"
	"dataentry-backend/internal/entry"
	"dataentry-backend/internal/forms"
	"dataentry-backend/internal/rls"
	"dataentry-backend/internal/schema"
	"dataentry-backend/internal/store"
	"dataentry-backend/internal/validation"
)

const version = "1.0.0"

func main() {
	ctx := context.Background()

	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Printf("Config loaded (port: %d, db: %s:%d/%s)", cfg.Server.Port, cfg.Database.Host, cfg.Database.Port, cfg.Database.Name)

	// 2. Connect to database
	db, err := store.New(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	// 3. Run plugin migrations
	if err := db.RunMigrations(ctx); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.Println("Migrations applied")

	// 4. Build services
	registry := validation.DefaultRegistry()
	validator := validation.NewEngine(registry)
	formStore := forms.NewStore(db)
	entryStore := entry.NewStore(db, cfg.Export.MaxRows)
	schemaManager := schema.NewManager(db)
	rlsResolver := rls.NewResolver(db, cfg.AdminRole)
	accessResolver := access.NewResolver(db)

	// 5. Create Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: api.ErrorHandler,
	})
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))
	app.Use(logger.New(logger.Config{
		Format: "${time} ${status} ${method} ${path} ${latency}\n",
	}))

	// 6. Auth routes (before middleware — no auth required)
	authHandler := auth.NewHandler(db, cfg.JWTSecret)
	auth.RegisterAuthRoutes(app, authHandler)

	// 7. Protected data-entry routes
	handler := api.NewHandler(formStore, entryStore, schemaManager,
		validator, rlsResolver, accessResolver, version)
	api.RegisterRoutes(app, handler, auth.Middleware(cfg.JWTSecret))

	// 8. Start server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Printf("Starting server on %s", addr)
	log.Fatal(app.Listen(addr))
}
