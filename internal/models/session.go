package models

import "time"

// Session groups tasks that share a conversational context.
//
// SessionLength is a cached value, not an authoritative one: it is recomputed
// from the live task set by the session-length materializer immediately before
// any aggregation reads it, and written back with an upsert-merge. Values read
// between recomputations may be stale.
type Session struct {
	ID            string    `bson:"id" json:"id"`
	ProjectID     string    `bson:"project_id" json:"project_id"`
	Metadata      Metadata  `bson:"metadata,omitempty" json:"metadata,omitempty"`
	SessionLength int       `bson:"session_length,omitempty" json:"session_length,omitempty"`
	CreatedAt     time.Time `bson:"created_at" json:"created_at"`
}
