package handlers

import (
	"errors"
	"log"

	"promptlens/internal/models"
	"promptlens/internal/services"

	"github.com/gofiber/fiber/v2"
)

// TaskHandler handles ingestion endpoints for tasks, sessions and events.
// The project is taken from the authenticated API key, never from the body.
type TaskHandler struct {
	taskService *services.TaskService
}

// NewTaskHandler creates a new task handler
func NewTaskHandler(taskService *services.TaskService) *TaskHandler {
	return &TaskHandler{taskService: taskService}
}

// CreateTaskRequest is the JSON body for task ingestion
type CreateTaskRequest struct {
	ID        string          `json:"id"`
	SessionID string          `json:"session_id"`
	Input     string          `json:"input"`
	Output    string          `json:"output"`
	Metadata  models.Metadata `json:"metadata"`
	Flag      string          `json:"flag"`
}

// CreateTask ingests one task document
// POST /v1/tasks
func (h *TaskHandler) CreateTask(c *fiber.Ctx) error {
	projectID, ok := c.Locals("project_id").(string)
	if !ok || projectID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Missing project scope",
		})
	}

	var req CreateTaskRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	task := &models.Task{
		ID:        req.ID,
		ProjectID: projectID,
		SessionID: req.SessionID,
		Input:     req.Input,
		Output:    req.Output,
		Metadata:  req.Metadata,
		Flag:      req.Flag,
	}

	if err := h.taskService.CreateTask(c.Context(), task); err != nil {
		return h.ingestError(c, "task", err)
	}

	return c.Status(fiber.StatusCreated).JSON(task)
}

// CreateSessionRequest is the JSON body for session ingestion
type CreateSessionRequest struct {
	ID       string          `json:"id"`
	Metadata models.Metadata `json:"metadata"`
}

// CreateSession ingests one session document
// POST /v1/sessions
func (h *TaskHandler) CreateSession(c *fiber.Ctx) error {
	projectID, ok := c.Locals("project_id").(string)
	if !ok || projectID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Missing project scope",
		})
	}

	var req CreateSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	session := &models.Session{
		ID:        req.ID,
		ProjectID: projectID,
		Metadata:  req.Metadata,
	}

	if err := h.taskService.CreateSession(c.Context(), session); err != nil {
		return h.ingestError(c, "session", err)
	}

	return c.Status(fiber.StatusCreated).JSON(session)
}

// RecordEventRequest is the JSON body for event ingestion
type RecordEventRequest struct {
	EventName string `json:"event_name"`
	TaskID    string `json:"task_id"`
}

// RecordEvent attaches a detected behavior to a task
// POST /v1/events
func (h *TaskHandler) RecordEvent(c *fiber.Ctx) error {
	projectID, ok := c.Locals("project_id").(string)
	if !ok || projectID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Missing project scope",
		})
	}

	var req RecordEventRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	event := &models.Event{
		EventName: req.EventName,
		TaskID:    req.TaskID,
		ProjectID: projectID,
	}

	if err := h.taskService.RecordEvent(c.Context(), event); err != nil {
		return h.ingestError(c, "event", err)
	}

	return c.Status(fiber.StatusCreated).JSON(event)
}

// FlagTaskRequest is the JSON body for task flagging
type FlagTaskRequest struct {
	Flag     string          `json:"flag"`
	Metadata models.Metadata `json:"metadata"`
}

// FlagTask sets the success flag on a task and optionally merges metadata.
// Flagged tasks are immutable, so a second flag attempt returns 404.
// PATCH /v1/tasks/:id/flag
func (h *TaskHandler) FlagTask(c *fiber.Ctx) error {
	projectID, ok := c.Locals("project_id").(string)
	if !ok || projectID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Missing project scope",
		})
	}
	taskID := c.Params("id")

	var req FlagTaskRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	// Metadata merges before the flag lands; the task is still mutable at
	// that point.
	if len(req.Metadata) > 0 {
		if err := h.taskService.UpdateTaskMetadata(c.Context(), projectID, taskID, req.Metadata); err != nil {
			return h.ingestError(c, "task_metadata", err)
		}
	}

	if err := h.taskService.FlagTask(c.Context(), projectID, taskID, req.Flag); err != nil {
		return h.ingestError(c, "task_flag", err)
	}

	task, err := h.taskService.GetTask(c.Context(), projectID, taskID)
	if err != nil {
		return h.ingestError(c, "task_flag", err)
	}
	return c.JSON(task)
}

func (h *TaskHandler) ingestError(c *fiber.Ctx, kind string, err error) error {
	if errors.Is(err, services.ErrNoData) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Task not found or already flagged",
		})
	}
	log.Printf("❌ [INGEST] Failed to write %s: %v", kind, err)
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": err.Error(),
	})
}
