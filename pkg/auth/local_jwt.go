package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// DashboardJWTAuth verifies dashboard bearer tokens. Tokens are issued by
// the platform's identity service; this side only verifies signatures with
// the shared HS256 secret.
type DashboardJWTAuth struct {
	SecretKey []byte
}

// NewDashboardJWTAuth creates a verifier for dashboard tokens
func NewDashboardJWTAuth(secretKey string) (*DashboardJWTAuth, error) {
	if secretKey == "" {
		return nil, errors.New("JWT secret key cannot be empty")
	}
	return &DashboardJWTAuth{SecretKey: []byte(secretKey)}, nil
}

// DashboardClaims represents the claims carried by dashboard tokens
type DashboardClaims struct {
	UserID     string   `json:"sub"`
	Email      string   `json:"email"`
	ProjectIDs []string `json:"project_ids"`
	jwt.RegisteredClaims
}

// HasProject reports whether the token grants access to a project
func (c *DashboardClaims) HasProject(projectID string) bool {
	for _, id := range c.ProjectIDs {
		if id == projectID {
			return true
		}
	}
	return false
}

// VerifyToken verifies a dashboard token and returns its claims
func (a *DashboardJWTAuth) VerifyToken(tokenString string) (*DashboardClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &DashboardClaims{}, func(token *jwt.Token) (interface{}, error) {
		// Verify signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.SecretKey, nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if claims, ok := token.Claims.(*DashboardClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, errors.New("invalid token")
}

// Middleware returns a fiber handler that requires a valid dashboard token.
// On success it stores the user ID and claims in the request context.
func (a *DashboardJWTAuth) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get("Authorization")
		if header == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing Authorization header",
			})
		}

		tokenString, found := strings.CutPrefix(header, "Bearer ")
		if !found {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Authorization header must be a Bearer token",
			})
		}

		claims, err := a.VerifyToken(tokenString)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired token",
			})
		}

		c.Locals("user_id", claims.UserID)
		c.Locals("dashboard_claims", claims)
		c.Locals("auth_type", "jwt")

		return c.Next()
	}
}

// RequireProjectAccess checks the verified claims against the project ID in
// the route. API-key requests are scoped earlier, so only JWT auth is checked.
func RequireProjectAccess(projectIDParam string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authType, _ := c.Locals("auth_type").(string)
		if authType != "jwt" {
			return c.Next()
		}

		claims, ok := c.Locals("dashboard_claims").(*DashboardClaims)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing token claims",
			})
		}

		projectID := c.Params(projectIDParam)
		if projectID == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Missing project ID",
			})
		}

		if !claims.HasProject(projectID) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Token does not grant access to this project",
			})
		}

		c.Locals("project_id", projectID)
		return c.Next()
	}
}
