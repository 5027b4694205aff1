package models

import "time"

// Task flag values. An empty flag means the task has not been evaluated yet.
const (
	FlagSuccess = "success"
	FlagFailure = "failure"
)

// Task represents one logged LLM interaction
type Task struct {
	ID        string    `bson:"id" json:"id"`
	ProjectID string    `bson:"project_id" json:"project_id"`
	SessionID string    `bson:"session_id,omitempty" json:"session_id,omitempty"`
	Input     string    `bson:"input" json:"input"`
	Output    string    `bson:"output,omitempty" json:"output,omitempty"`
	Metadata  Metadata  `bson:"metadata,omitempty" json:"metadata,omitempty"`
	Flag      string    `bson:"flag,omitempty" json:"flag,omitempty"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

// IsSuccess reports whether the task was flagged as a success
func (t *Task) IsSuccess() bool {
	return t.Flag == FlagSuccess
}

// IsFlagged reports whether the task has been evaluated at all
func (t *Task) IsFlagged() bool {
	return t.Flag == FlagSuccess || t.Flag == FlagFailure
}
