package middleware

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

// RateLimitConfig holds rate limiting settings
type RateLimitConfig struct {
	// Global limits (per IP)
	GlobalAPIMax        int           // Max requests per minute for all API endpoints
	GlobalAPIExpiration time.Duration // Expiration window

	// Ingestion endpoint limits (per IP) - high-volume task/event writes
	IngestMax        int
	IngestExpiration time.Duration

	// Analytics endpoint limits (per project) - aggregation pipelines are
	// the expensive path
	AnalyticsMax        int
	AnalyticsExpiration time.Duration

	// Export limits (per project) - XLSX rendering holds memory
	ExportMax        int
	ExportExpiration time.Duration
}

// DefaultRateLimitConfig returns production-safe defaults
// These are designed to prevent abuse while avoiding false positives
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		// Global: 300/min = 5 req/sec - generous for normal use
		GlobalAPIMax:        300,
		GlobalAPIExpiration: 1 * time.Minute,

		// Ingestion: 1200/min = 20 req/sec, SDKs batch but spikes happen
		IngestMax:        1200,
		IngestExpiration: 1 * time.Minute,

		// Analytics: 60/min = 1 aggregation/sec average per project
		AnalyticsMax:        60,
		AnalyticsExpiration: 1 * time.Minute,

		// Exports: 10/min per project
		ExportMax:        10,
		ExportExpiration: 1 * time.Minute,
	}
}

// LoadRateLimitConfig loads config from environment variables with defaults
func LoadRateLimitConfig() *RateLimitConfig {
	config := DefaultRateLimitConfig()

	// Allow environment overrides for tuning
	if v := os.Getenv("RATE_LIMIT_GLOBAL_API"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.GlobalAPIMax = n
		}
	}

	if v := os.Getenv("RATE_LIMIT_INGEST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.IngestMax = n
		}
	}

	if v := os.Getenv("RATE_LIMIT_ANALYTICS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.AnalyticsMax = n
		}
	}

	if v := os.Getenv("RATE_LIMIT_EXPORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.ExportMax = n
		}
	}

	// Development mode: more lenient limits
	if os.Getenv("ENVIRONMENT") == "development" {
		config.GlobalAPIMax = 2000
		config.IngestMax = 10000
		config.AnalyticsMax = 600
		log.Println("⚠️  [RATE-LIMIT] Development mode: using relaxed rate limits")
	}

	return config
}

// GlobalAPIRateLimiter creates a rate limiter for all API requests
// This is the first line of defense against DDoS
func GlobalAPIRateLimiter(config *RateLimitConfig) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        config.GlobalAPIMax,
		Expiration: config.GlobalAPIExpiration,
		KeyGenerator: func(c *fiber.Ctx) string {
			return "global:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			log.Printf("🚫 [RATE-LIMIT] Global limit reached for IP: %s", c.IP())
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":       "Too many requests. Please slow down.",
				"retry_after": int(config.GlobalAPIExpiration.Seconds()),
			})
		},
		SkipFailedRequests:     false,
		SkipSuccessfulRequests: false,
	})
}

// IngestRateLimiter for high-volume task, session and event writes
func IngestRateLimiter(config *RateLimitConfig) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        config.IngestMax,
		Expiration: config.IngestExpiration,
		KeyGenerator: func(c *fiber.Ctx) string {
			// Key by project when authenticated, fall back to IP
			if projectID, ok := c.Locals("project_id").(string); ok && projectID != "" {
				return "ingest:" + projectID
			}
			return "ingest-ip:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			log.Printf("⚠️  [RATE-LIMIT] Ingest limit reached for %v", c.Locals("project_id"))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":       "Ingestion rate limit reached. Batch your writes or slow down.",
				"retry_after": int(config.IngestExpiration.Seconds()),
			})
		},
	})
}

// AnalyticsRateLimiter for aggregation endpoints (uses project ID)
func AnalyticsRateLimiter(config *RateLimitConfig) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        config.AnalyticsMax,
		Expiration: config.AnalyticsExpiration,
		KeyGenerator: func(c *fiber.Ctx) string {
			if projectID, ok := c.Locals("project_id").(string); ok && projectID != "" {
				return "analytics:" + projectID
			}
			return "analytics-ip:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			projectID, _ := c.Locals("project_id").(string)
			log.Printf("⚠️  [RATE-LIMIT] Analytics limit reached for project: %s on %s", projectID, c.Path())
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":       "Too many aggregation requests. Please wait before trying again.",
				"retry_after": int(config.AnalyticsExpiration.Seconds()),
			})
		},
	})
}

// ExportRateLimiter for spreadsheet export downloads
func ExportRateLimiter(config *RateLimitConfig) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        config.ExportMax,
		Expiration: config.ExportExpiration,
		KeyGenerator: func(c *fiber.Ctx) string {
			if projectID, ok := c.Locals("project_id").(string); ok && projectID != "" {
				return "export:" + projectID
			}
			return "export-ip:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			log.Printf("⚠️  [RATE-LIMIT] Export limit reached for: %v", c.Locals("project_id"))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":       "Export rate limit reached. Please wait before downloading again.",
				"retry_after": int(config.ExportExpiration.Seconds()),
			})
		},
	})
}
