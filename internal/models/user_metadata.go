package models

// UserMetadata is the per-user rollup computed by the user metadata
// aggregation. It is derived fresh on every request and never persisted.
//
// Events are deduplicated by event name and sessions by session id, keeping
// the first occurrence of each, so AvgSessionLength is the mean over distinct
// sessions rather than over task rows.
type UserMetadata struct {
	UserID           string    `bson:"user_id" json:"user_id"`
	NbTasks          int       `bson:"nb_tasks" json:"nb_tasks"`
	AvgSuccessRate   float64   `bson:"avg_success_rate" json:"avg_success_rate"`
	AvgSessionLength float64   `bson:"avg_session_length" json:"avg_session_length"`
	Events           []Event   `bson:"events" json:"events"`
	Sessions         []Session `bson:"sessions" json:"sessions"`
	TaskIDs          []string  `bson:"tasks_id" json:"tasks_id"`
	TotalTokens      int64     `bson:"total_tokens" json:"total_tokens"`
}
