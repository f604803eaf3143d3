package auth

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"dataentry-backend/internal/api"
	"dataentry-backend/internal/store"
)

// Handler serves the authentication endpoints against the host
// application's ab_user and ab_role tables.
type Handler struct {
	store     *store.Store
	jwtSecret string
}

func NewHandler(s *store.Store, jwtSecret string) *Handler {
	return &Handler{store: s, jwtSecret: jwtSecret}
}

// Login handles POST /api/v1/data-entry/auth/login.
func (h *Handler) Login(c *fiber.Ctx) error {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&body); err != nil {
		return api.NewAppError("INVALID_PAYLOAD", 400, "Invalid request body")
	}
	if body.Username == "" || body.Password == "" {
		return api.UnauthorizedError("Username and password are required")
	}

	ctx := c.Context()
	user, err := store.QueryRow(ctx, h.store.DB,
		"SELECT id, username, password, active FROM ab_user WHERE username = $1",
		body.Username)
	if err != nil {
		return api.UnauthorizedError("Invalid username or password")
	}

	active, _ := user["active"].(bool)
	if !active {
		return api.UnauthorizedError("Account is disabled")
	}
	passwordHash, _ := user["password"].(string)
	if !CheckPassword(body.Password, passwordHash) {
		return api.UnauthorizedError("Invalid username or password")
	}

	userID := asInt64(user["id"])
	roles, err := h.userRoles(ctx, userID)
	if err != nil {
		return api.NewAppError("INTERNAL_ERROR", 500, "Failed to load roles")
	}

	pair, err := h.generateTokenPair(ctx, userID, body.Username, roles)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": pair})
}

// Refresh handles POST /api/v1/data-entry/auth/refresh. Tokens are
// single use; a successful refresh rotates the stored token.
func (h *Handler) Refresh(c *fiber.Ctx) error {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.BodyParser(&body); err != nil {
		return api.NewAppError("INVALID_PAYLOAD", 400, "Invalid request body")
	}
	if body.RefreshToken == "" {
		return api.UnauthorizedError("Refresh token is required")
	}

	ctx := c.Context()
	row, err := store.QueryRow(ctx, h.store.DB,
		`SELECT rt.id, rt.user_id, rt.expires_at, au.username, au.active
		 FROM data_entry_refresh_tokens rt
		 JOIN ab_user au ON au.id = rt.user_id
		 WHERE rt.token = $1`, body.RefreshToken)
	if err != nil {
		return api.UnauthorizedError("Invalid refresh token")
	}

	expiresAt, _ := row["expires_at"].(time.Time)
	if time.Now().After(expiresAt) {
		_, _ = store.Exec(ctx, h.store.DB,
			"DELETE FROM data_entry_refresh_tokens WHERE token = $1", body.RefreshToken)
		return api.UnauthorizedError("Refresh token expired")
	}
	active, _ := row["active"].(bool)
	if !active {
		return api.UnauthorizedError("Account is disabled")
	}

	_, _ = store.Exec(ctx, h.store.DB,
		"DELETE FROM data_entry_refresh_tokens WHERE id = $1", asInt64(row["id"]))

	userID := asInt64(row["user_id"])
	username, _ := row["username"].(string)
	roles, err := h.userRoles(ctx, userID)
	if err != nil {
		return api.NewAppError("INTERNAL_ERROR", 500, "Failed to load roles")
	}

	pair, err := h.generateTokenPair(ctx, userID, username, roles)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": pair})
}

// Logout handles POST /api/v1/data-entry/auth/logout.
func (h *Handler) Logout(c *fiber.Ctx) error {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.BodyParser(&body); err != nil {
		return api.NewAppError("INVALID_PAYLOAD", 400, "Invalid request body")
	}
	if body.RefreshToken == "" {
		return api.UnauthorizedError("Refresh token is required")
	}

	_, _ = store.Exec(c.Context(), h.store.DB,
		"DELETE FROM data_entry_refresh_tokens WHERE token = $1", body.RefreshToken)

	return c.JSON(fiber.Map{"message": "Logged out"})
}

// RegisterAuthRoutes registers auth routes on the given Fiber app.
func RegisterAuthRoutes(app *fiber.App, h *Handler) {
	grp := app.Group("/api/v1/data-entry/auth")
	grp.Post("/login", h.Login)
	grp.Post("/refresh", h.Refresh)
	grp.Post("/logout", h.Logout)
}

func (h *Handler) userRoles(ctx context.Context, userID int64) ([]string, error) {
	rows, err := store.QueryRows(ctx, h.store.DB,
		`SELECT ar.name FROM ab_role ar
		 INNER JOIN ab_user_role aur ON aur.role_id = ar.id
		 WHERE aur.user_id = $1 ORDER BY ar.name`, userID)
	if err != nil {
		return nil, err
	}
	roles := make([]string, 0, len(rows))
	for _, row := range rows {
		if name, _ := row["name"].(string); name != "" {
			roles = append(roles, name)
		}
	}
	return roles, nil
}

func (h *Handler) generateTokenPair(ctx context.Context, userID int64, username string, roles []string) (*TokenPair, error) {
	accessToken, err := GenerateAccessToken(userID, username, roles, h.jwtSecret)
	if err != nil {
		return nil, api.NewAppError("INTERNAL_ERROR", 500, "Failed to generate access token")
	}

	refreshToken := GenerateRefreshToken()
	expiresAt := time.Now().Add(RefreshTokenTTL)

	_, err = store.Exec(ctx, h.store.DB,
		"INSERT INTO data_entry_refresh_tokens (user_id, token, expires_at) VALUES ($1, $2, $3)",
		userID, refreshToken, expiresAt)
	if err != nil {
		return nil, api.NewAppError("INTERNAL_ERROR", 500, "Failed to store refresh token")
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int32:
		return int64(n)
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}
