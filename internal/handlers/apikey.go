package handlers

import (
	"errors"
	"log"

	"promptlens/internal/services"

	"github.com/gofiber/fiber/v2"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// APIKeyHandler handles project API key endpoints. Dashboard JWT only; the
// ingestion keys themselves cannot mint or revoke other keys.
type APIKeyHandler struct {
	apiKeyService *services.APIKeyService
}

// NewAPIKeyHandler creates a new API key handler
func NewAPIKeyHandler(apiKeyService *services.APIKeyService) *APIKeyHandler {
	return &APIKeyHandler{
		apiKeyService: apiKeyService,
	}
}

// CreateAPIKeyRequest is the JSON body for key creation
type CreateAPIKeyRequest struct {
	Name string `json:"name"`
}

// Create creates a new ingestion key for a project. The plain key appears in
// this response and nowhere else.
// POST /v1/projects/:projectID/keys
func (h *APIKeyHandler) Create(c *fiber.Ctx) error {
	projectID := c.Params("projectID")

	var req CreateAPIKeyRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Name is required",
		})
	}

	plainKey, apiKey, err := h.apiKeyService.Create(c.Context(), projectID, req.Name)
	if err != nil {
		log.Printf("❌ [APIKEY] Failed to create API key: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create API key",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"key":        plainKey,
		"id":         apiKey.ID.Hex(),
		"key_prefix": apiKey.KeyPrefix,
		"name":       apiKey.Name,
	})
}

// Revoke revokes an API key (soft delete)
// POST /v1/projects/:projectID/keys/:id/revoke
func (h *APIKeyHandler) Revoke(c *fiber.Ctx) error {
	projectID := c.Params("projectID")

	keyID, err := primitive.ObjectIDFromHex(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid key ID",
		})
	}

	if err := h.apiKeyService.Revoke(c.Context(), projectID, keyID); err != nil {
		if errors.Is(err, services.ErrNoData) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "API key not found",
			})
		}
		log.Printf("❌ [APIKEY] Failed to revoke API key: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to revoke API key",
		})
	}

	return c.JSON(fiber.Map{
		"message": "API key revoked successfully",
	})
}
