package models

import "time"

// Event is a detected behavior attached to a task
type Event struct {
	EventName string    `bson:"event_name" json:"event_name"`
	TaskID    string    `bson:"task_id" json:"task_id"`
	ProjectID string    `bson:"project_id,omitempty" json:"project_id,omitempty"`
	CreatedAt time.Time `bson:"created_at,omitempty" json:"created_at,omitempty"`
}
