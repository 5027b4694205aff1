package middleware

import (
	"log"
	"strconv"

	"promptlens/internal/models"
	"promptlens/internal/services"

	"github.com/gofiber/fiber/v2"
)

// APIKeyMiddleware validates API keys for programmatic access
// This middleware checks the X-API-Key header and validates the key
func APIKeyMiddleware(apiKeyService *services.APIKeyService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		// Get API key from header
		apiKey := c.Get("X-API-Key")
		if apiKey == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing API key. Include X-API-Key header.",
			})
		}

		// Validate the key
		key, err := apiKeyService.ValidateKey(c.Context(), apiKey)
		if err != nil {
			log.Printf("❌ [APIKEY-AUTH] Invalid key attempt: %v", err)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired API key",
			})
		}

		// Check if revoked
		if key.IsRevoked() {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "API key has been revoked",
			})
		}

		// Store key info in context for handlers
		c.Locals("api_key", key)
		c.Locals("project_id", key.ProjectID)
		c.Locals("auth_type", "api_key")

		log.Printf("🔑 [APIKEY-AUTH] Authenticated via API key %s (project: %s)", key.KeyPrefix, key.ProjectID)

		return c.Next()
	}
}

// APIKeyOrJWTMiddleware allows authentication via either API key or JWT
// Checks API key first, falls back to JWT
func APIKeyOrJWTMiddleware(apiKeyService *services.APIKeyService, jwtMiddleware fiber.Handler) fiber.Handler {
	return func(c *fiber.Ctx) error {
		// Check for API key first
		apiKey := c.Get("X-API-Key")
		if apiKey != "" {
			key, err := apiKeyService.ValidateKey(c.Context(), apiKey)
			if err != nil {
				log.Printf("❌ [APIKEY-AUTH] Invalid key: %v", err)
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"error": "Invalid or expired API key",
				})
			}

			if key.IsRevoked() {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"error": "API key has been revoked",
				})
			}

			// Authenticated via API key
			c.Locals("api_key", key)
			c.Locals("project_id", key.ProjectID)
			c.Locals("auth_type", "api_key")

			log.Printf("🔑 [APIKEY-AUTH] Authenticated via API key %s", key.KeyPrefix)
			return c.Next()
		}

		// Fall back to JWT middleware
		return jwtMiddleware(c)
	}
}

// RequireProjectMatch ensures an API-key-authenticated request only touches
// its own project. Dashboard JWTs carry cross-project access and pass through.
func RequireProjectMatch(projectIDParam string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authType, _ := c.Locals("auth_type").(string)
		if authType != "api_key" {
			return c.Next()
		}

		requested := c.Params(projectIDParam)
		if requested == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Missing project ID",
			})
		}

		key, ok := c.Locals("api_key").(*models.APIKey)
		if !ok {
			return c.Next()
		}

		if key.ProjectID != requested {
			log.Printf("🚫 [APIKEY-AUTH] Project mismatch: key for %s used on %s", key.ProjectID, requested)
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "API key is not valid for this project",
			})
		}

		return c.Next()
	}
}

// RateLimitByAPIKey applies per-key rate limiting backed by Redis. With no
// Redis configured the limiter is a no-op and the per-IP limiters still apply.
func RateLimitByAPIKey(redisService *services.RedisService, perMinute, perHour int64) fiber.Handler {
	return func(c *fiber.Ctx) error {
		// Only apply to API key auth
		authType, _ := c.Locals("auth_type").(string)
		if authType != "api_key" {
			return c.Next()
		}

		key, ok := c.Locals("api_key").(*models.APIKey)
		if !ok || redisService == nil {
			return c.Next()
		}

		keyPrefix := key.KeyPrefix
		ctx := c.Context()

		// Check per-minute limit
		minuteKey := "ratelimit:minute:" + keyPrefix
		count, err := redisService.Incr(ctx, minuteKey)
		if err != nil {
			log.Printf("⚠️ [RATE-LIMIT] Redis error: %v", err)
			return c.Next() // Allow on error
		}

		if count == 1 {
			// First request, set expiry
			redisService.Expire(ctx, minuteKey, 60)
		}

		if count > perMinute {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":       "Rate limit exceeded (per minute)",
				"retry_after": "60 seconds",
			})
		}

		// Check per-hour limit
		hourKey := "ratelimit:hour:" + keyPrefix
		hourCount, err := redisService.Incr(ctx, hourKey)
		if err != nil {
			return c.Next()
		}

		if hourCount == 1 {
			redisService.Expire(ctx, hourKey, 3600)
		}

		if hourCount > perHour {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":       "Rate limit exceeded (per hour)",
				"retry_after": "3600 seconds",
			})
		}

		// Add rate limit headers
		c.Set("X-RateLimit-Limit-Minute", formatInt64(perMinute))
		c.Set("X-RateLimit-Remaining-Minute", formatInt64(maxInt64(0, perMinute-count)))
		c.Set("X-RateLimit-Limit-Hour", formatInt64(perHour))
		c.Set("X-RateLimit-Remaining-Hour", formatInt64(maxInt64(0, perHour-hourCount)))

		return c.Next()
	}
}

func formatInt64(n int64) string {
	return strconv.FormatInt(n, 10)
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
