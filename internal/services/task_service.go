package services

import (
	"context"
	"fmt"
	"time"

	"promptlens/internal/database"
	"promptlens/internal/models"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// TaskService handles ingestion of tasks, sessions and events. Aggregations
// never mutate these documents except for the session_length cache, which is
// owned by the materializer.
type TaskService struct {
	tasks    *mongo.Collection
	sessions *mongo.Collection
	events   *mongo.Collection
	metrics  *Metrics
}

// NewTaskService creates a new task service
func NewTaskService(mongoDB *database.MongoDB, metrics *Metrics) *TaskService {
	return &TaskService{
		tasks:    mongoDB.Collection(database.CollectionTasks),
		sessions: mongoDB.Collection(database.CollectionSessions),
		events:   mongoDB.Collection(database.CollectionEvents),
		metrics:  metrics,
	}
}

// CreateTask inserts a new task. Missing ids get server-generated UUIDs;
// the creation timestamp is always server-side.
func (s *TaskService) CreateTask(ctx context.Context, task *models.Task) error {
	if task.ProjectID == "" {
		return fmt.Errorf("project id is required")
	}
	if task.Flag != "" && task.Flag != models.FlagSuccess && task.Flag != models.FlagFailure {
		return fmt.Errorf("invalid task flag %q", task.Flag)
	}
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	task.CreatedAt = time.Now()

	if _, err := s.tasks.InsertOne(ctx, task); err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	if s.metrics != nil {
		s.metrics.TasksIngested.Inc()
	}
	return nil
}

// GetTask retrieves a task by id, scoped to a project
func (s *TaskService) GetTask(ctx context.Context, projectID, taskID string) (*models.Task, error) {
	var task models.Task
	err := s.tasks.FindOne(ctx, bson.M{
		"id":         taskID,
		"project_id": projectID,
	}).Decode(&task)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNoData
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return &task, nil
}

// FlagTask sets the tri-state success flag on a task. A task becomes
// immutable once flagged, so re-flagging is rejected.
func (s *TaskService) FlagTask(ctx context.Context, projectID, taskID, flag string) error {
	if flag != models.FlagSuccess && flag != models.FlagFailure {
		return fmt.Errorf("invalid task flag %q", flag)
	}

	result, err := s.tasks.UpdateOne(ctx,
		bson.M{
			"id":         taskID,
			"project_id": projectID,
			"flag":       bson.M{"$exists": false},
		},
		bson.M{"$set": bson.M{"flag": flag}},
	)
	if err != nil {
		return fmt.Errorf("failed to flag task: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrNoData
	}
	return nil
}

// UpdateTaskMetadata merges new metadata keys onto an unflagged task
func (s *TaskService) UpdateTaskMetadata(ctx context.Context, projectID, taskID string, metadata models.Metadata) error {
	if len(metadata) == 0 {
		return nil
	}

	set := bson.M{}
	for key, value := range metadata {
		set["metadata."+key] = value
	}

	result, err := s.tasks.UpdateOne(ctx,
		bson.M{
			"id":         taskID,
			"project_id": projectID,
			"flag":       bson.M{"$exists": false},
		},
		bson.M{"$set": set},
	)
	if err != nil {
		return fmt.Errorf("failed to update task metadata: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrNoData
	}
	return nil
}

// CreateSession inserts a new session. session_length is left unset — it is
// a cache filled in by the materializer, not an ingestion-time value.
func (s *TaskService) CreateSession(ctx context.Context, session *models.Session) error {
	if session.ProjectID == "" {
		return fmt.Errorf("project id is required")
	}
	if session.ID == "" {
		session.ID = uuid.New().String()
	}
	session.SessionLength = 0
	session.CreatedAt = time.Now()

	if _, err := s.sessions.InsertOne(ctx, session); err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// RecordEvent attaches a detected behavior to a task
func (s *TaskService) RecordEvent(ctx context.Context, event *models.Event) error {
	if event.EventName == "" || event.TaskID == "" {
		return fmt.Errorf("event name and task id are required")
	}
	event.CreatedAt = time.Now()

	if _, err := s.events.InsertOne(ctx, event); err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	if s.metrics != nil {
		s.metrics.EventsIngested.Inc()
	}
	return nil
}

// ProjectIDs returns the distinct project ids present in the tasks
// collection. Used by the background session-length refresh job.
func (s *TaskService) ProjectIDs(ctx context.Context) ([]string, error) {
	values, err := s.tasks.Distinct(ctx, "project_id", bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to list project ids: %w", err)
	}

	ids := make([]string, 0, len(values))
	for _, v := range values {
		if id, ok := v.(string); ok && id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
