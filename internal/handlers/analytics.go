package handlers

import (
	"errors"
	"log"

	"promptlens/internal/database"
	"promptlens/internal/logging"
	"promptlens/internal/models"
	"promptlens/internal/query"
	"promptlens/internal/services"

	"github.com/gofiber/fiber/v2"
)

// AnalyticsHandler handles metadata aggregation endpoints
type AnalyticsHandler struct {
	metadataService *services.MetadataService
	exportService   *services.ExportService
}

// NewAnalyticsHandler creates a new analytics handler
func NewAnalyticsHandler(metadataService *services.MetadataService, exportService *services.ExportService) *AnalyticsHandler {
	return &AnalyticsHandler{
		metadataService: metadataService,
		exportService:   exportService,
	}
}

// BreakdownRequestBody is the JSON body of the breakdown endpoint
type BreakdownRequestBody struct {
	Metric                 string   `json:"metric"`
	MetadataField          string   `json:"metadata_field"`
	NumberMetadataFields   []string `json:"number_metadata_fields"`
	CategoryMetadataFields []string `json:"category_metadata_fields"`
	BreakdownBy            string   `json:"breakdown_by"`
}

// Breakdown computes a metric grouped by a dimension
// POST /v1/projects/:projectID/metadata/breakdown
func (h *AnalyticsHandler) Breakdown(c *fiber.Ctx) error {
	projectID := c.Params("projectID")

	var body BreakdownRequestBody
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	metric, err := models.ParseMetric(body.Metric)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	req := services.BreakdownRequest{
		ProjectID:              projectID,
		Metric:                 metric,
		MetadataField:          body.MetadataField,
		NumberMetadataFields:   body.NumberMetadataFields,
		CategoryMetadataFields: body.CategoryMetadataFields,
		BreakdownBy:            body.BreakdownBy,
	}

	logger := logging.WithAggregation(logging.WithProject(projectID), string(metric), database.CollectionTasks)
	logger.Debug("Running breakdown", "breakdown_by", body.BreakdownBy)

	rows, err := h.metadataService.Breakdown(c.Context(), req)
	if err != nil {
		return h.aggregationError(c, "breakdown", err)
	}
	logger.Debug("Breakdown complete", "rows", len(rows))

	dimension := body.BreakdownBy
	if dimension == "" {
		dimension = query.NoBreakdown
	}

	return c.JSON(fiber.Map{
		"breakdown": rows,
		"dimension": dimension,
		"value_key": metric.ValueKey(body.MetadataField),
	})
}

// BreakdownExport renders a breakdown as an XLSX workbook. Field
// classifications are discovered server-side so the export URL stays simple
// enough to paste into a browser.
// GET /v1/projects/:projectID/metadata/breakdown/export?metric=&metadata_field=&breakdown_by=
func (h *AnalyticsHandler) BreakdownExport(c *fiber.Ctx) error {
	projectID := c.Params("projectID")

	metric, err := models.ParseMetric(c.Query("metric", string(models.MetricNbTasks)))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	numberFields, err := h.metadataService.UniqueMetadataFields(c.Context(), projectID, "number")
	if err != nil {
		return h.aggregationError(c, "breakdown_export", err)
	}
	categoryFields, err := h.metadataService.UniqueMetadataFields(c.Context(), projectID, "string")
	if err != nil {
		return h.aggregationError(c, "breakdown_export", err)
	}

	req := services.BreakdownRequest{
		ProjectID:              projectID,
		Metric:                 metric,
		MetadataField:          c.Query("metadata_field"),
		NumberMetadataFields:   numberFields,
		CategoryMetadataFields: categoryFields,
		BreakdownBy:            c.Query("breakdown_by"),
	}

	rows, err := h.metadataService.Breakdown(c.Context(), req)
	if err != nil {
		return h.aggregationError(c, "breakdown_export", err)
	}

	dimension := req.BreakdownBy
	if dimension == "" {
		dimension = query.NoBreakdown
	}

	workbook, err := h.exportService.BreakdownToXLSX(rows, dimension, metric.ValueKey(req.MetadataField))
	if err != nil {
		log.Printf("❌ [ANALYTICS] Failed to render export: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to render export",
		})
	}

	c.Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Set("Content-Disposition", `attachment; filename="breakdown.xlsx"`)
	return c.Send(workbook)
}

// Users returns the per-user rollup for a project
// GET /v1/projects/:projectID/users?user_id=
func (h *AnalyticsHandler) Users(c *fiber.Ctx) error {
	projectID := c.Params("projectID")
	userID := c.Query("user_id")

	users, err := h.metadataService.UserMetadata(c.Context(), projectID, userID)
	if err != nil {
		return h.aggregationError(c, "user_rollup", err)
	}

	return c.JSON(fiber.Map{
		"users": users,
	})
}

// MetadataFields lists the metadata keys observed in a project, classified
// by runtime value type
// GET /v1/projects/:projectID/metadata/fields?type=number|string
func (h *AnalyticsHandler) MetadataFields(c *fiber.Ctx) error {
	projectID := c.Params("projectID")
	fieldType := c.Query("type", "number")

	if fieldType != "number" && fieldType != "string" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "type must be \"number\" or \"string\"",
		})
	}

	fields, err := h.metadataService.UniqueMetadataFields(c.Context(), projectID, fieldType)
	if err != nil {
		return h.aggregationError(c, "field_discovery", err)
	}

	return c.JSON(fiber.Map{
		"type":   fieldType,
		"fields": fields,
	})
}

// Count returns the number of distinct values of a metadata field
// GET /v1/projects/:projectID/metadata/:field/count?collection=tasks
func (h *AnalyticsHandler) Count(c *fiber.Ctx) error {
	projectID := c.Params("projectID")
	field := c.Params("field")
	collection, ok := h.collectionParam(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "collection must be tasks, sessions or events",
		})
	}

	count, err := h.metadataService.CountDistinct(c.Context(), projectID, collection, field)
	if err != nil {
		return h.aggregationError(c, "count_distinct", err)
	}

	return c.JSON(fiber.Map{
		"field": field,
		"value": count,
	})
}

// Average returns the mean document count per distinct value of a field
// GET /v1/projects/:projectID/metadata/:field/average?collection=tasks
func (h *AnalyticsHandler) Average(c *fiber.Ctx) error {
	projectID := c.Params("projectID")
	field := c.Params("field")
	collection, ok := h.collectionParam(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "collection must be tasks, sessions or events",
		})
	}

	average, err := h.metadataService.AverageForField(c.Context(), projectID, collection, field)
	if err != nil {
		return h.aggregationError(c, "average", err)
	}

	return c.JSON(fiber.Map{
		"field": field,
		"value": average,
	})
}

// Threshold returns the decile boundary count for a metadata field
// GET /v1/projects/:projectID/metadata/:field/threshold?edge=top|bottom&collection=tasks
func (h *AnalyticsHandler) Threshold(c *fiber.Ctx) error {
	projectID := c.Params("projectID")
	field := c.Params("field")
	collection, ok := h.collectionParam(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "collection must be tasks, sessions or events",
		})
	}

	edge, err := services.ParsePercentileEdge(c.Query("edge", "top"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	threshold, err := h.metadataService.PercentileThreshold(c.Context(), projectID, collection, field, edge)
	if err != nil {
		return h.aggregationError(c, "threshold", err)
	}

	return c.JSON(fiber.Map{
		"field": field,
		"edge":  string(edge),
		"value": threshold,
	})
}

// collectionParam reads and validates the optional collection query param
func (h *AnalyticsHandler) collectionParam(c *fiber.Ctx) (string, bool) {
	collection := c.Query("collection", database.CollectionTasks)
	switch collection {
	case database.CollectionTasks, database.CollectionSessions, database.CollectionEvents:
		return collection, true
	}
	return "", false
}

// aggregationError maps service errors onto HTTP statuses. Empty result sets
// from the rollup and average endpoints are 404s; validation failures are
// 400s; everything else is a 500 with the detail kept server-side.
func (h *AnalyticsHandler) aggregationError(c *fiber.Ctx, kind string, err error) error {
	switch {
	case errors.Is(err, services.ErrNoData):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "No data matching the request",
		})
	case errors.Is(err, services.ErrNotNumberField):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "metadata_field must be one of the declared number fields",
		})
	case errors.Is(err, query.ErrInvalidFieldPath):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	default:
		log.Printf("❌ [ANALYTICS] %s failed: %v", kind, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Aggregation failed",
		})
	}
}
