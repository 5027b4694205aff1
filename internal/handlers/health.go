package handlers

import (
	"time"

	"promptlens/internal/database"
	"promptlens/internal/services"

	"github.com/gofiber/fiber/v2"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	mongoDB      *database.MongoDB
	redisService *services.RedisService
}

// NewHealthHandler creates a new health handler. redisService may be nil.
func NewHealthHandler(mongoDB *database.MongoDB, redisService *services.RedisService) *HealthHandler {
	return &HealthHandler{
		mongoDB:      mongoDB,
		redisService: redisService,
	}
}

// Handle responds with server health status
func (h *HealthHandler) Handle(c *fiber.Ctx) error {
	status := "healthy"
	mongoStatus := "up"
	if err := h.mongoDB.Ping(c.Context()); err != nil {
		status = "degraded"
		mongoStatus = "down"
	}

	redisStatus := "disabled"
	if h.redisService != nil {
		redisStatus = "up"
		if err := h.redisService.Ping(c.Context()); err != nil {
			redisStatus = "down"
		}
	}

	code := fiber.StatusOK
	if mongoStatus == "down" {
		code = fiber.StatusServiceUnavailable
	}

	return c.Status(code).JSON(fiber.Map{
		"status":    status,
		"mongodb":   mongoStatus,
		"redis":     redisStatus,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}
