package services

import (
	"context"
	"fmt"
	"log"

	"promptlens/internal/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// SessionLengthMaterializer recomputes the cached session_length field on
// session documents from the live task set.
//
// session_length is never authoritative in storage: any aggregation that
// reads it must run a materialization first, synchronously, and only then
// execute the dependent query. The write is an upsert-merge — only the
// computed field changes, sessions outside the filter are left alone, and
// sessions with zero matching tasks are never created or touched. Concurrent
// requests against the same project may race on the cached value; that
// staleness is accepted instead of paying for cross-collection transactions.
type SessionLengthMaterializer struct {
	mongoDB *database.MongoDB
}

// NewSessionLengthMaterializer creates a new materializer
func NewSessionLengthMaterializer(mongoDB *database.MongoDB) *SessionLengthMaterializer {
	return &SessionLengthMaterializer{mongoDB: mongoDB}
}

// Materialize recomputes session_length for every session of a project
func (m *SessionLengthMaterializer) Materialize(ctx context.Context, projectID string) error {
	match := bson.M{"project_id": projectID}
	return m.run(ctx, match, false)
}

// MaterializeForUsers recomputes session_length for sessions that belong to
// user-attributed activity. With a userID it scopes to that single user;
// otherwise it covers every session carrying a user id. Joined tasks must
// also carry a user id, so anonymous tasks don't count toward the length
// used in per-user rollups.
func (m *SessionLengthMaterializer) MaterializeForUsers(ctx context.Context, projectID, userID string) error {
	match := bson.M{"project_id": projectID}
	if userID != "" {
		match["metadata.user_id"] = userID
	} else {
		match["metadata.user_id"] = bson.M{"$ne": nil}
	}
	return m.run(ctx, match, true)
}

func (m *SessionLengthMaterializer) run(ctx context.Context, match bson.M, requireTaskUser bool) error {
	pipeline := buildMaterializePipeline(match, requireTaskUser)

	cursor, err := m.mongoDB.Collection(database.CollectionSessions).Aggregate(ctx, pipeline)
	if err != nil {
		return fmt.Errorf("session length materialization failed: %w", err)
	}
	defer cursor.Close(ctx)

	// $merge pipelines emit no documents, but the cursor still has to be
	// drained for the writes to complete before the caller's next query.
	var discard []bson.M
	if err := cursor.All(ctx, &discard); err != nil {
		return fmt.Errorf("session length materialization failed: %w", err)
	}

	log.Printf("[SESSION-LENGTH] Materialized session lengths (filter: %v)", match)
	return nil
}

// buildMaterializePipeline constructs the materialization pipeline: join each
// session to its child tasks, drop sessions with no tasks, cache the task
// count as session_length, and merge the result back onto the stored session
// documents.
func buildMaterializePipeline(match bson.M, requireTaskUser bool) mongo.Pipeline {
	taskConditions := bson.A{
		bson.M{"tasks": bson.M{"$ne": nil}},
		bson.M{"tasks": bson.M{"$ne": bson.A{}}},
	}
	if requireTaskUser {
		taskConditions = append(taskConditions, bson.M{"tasks.metadata.user_id": bson.M{"$ne": nil}})
	}

	return mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$lookup", Value: bson.M{
			"from":         database.CollectionTasks,
			"localField":   "id",
			"foreignField": "session_id",
			"as":           "tasks",
		}}},
		{{Key: "$match", Value: bson.M{"$and": taskConditions}}},
		{{Key: "$set", Value: bson.M{"session_length": bson.M{"$size": "$tasks"}}}},
		{{Key: "$unset", Value: "tasks"}},
		{{Key: "$merge", Value: bson.M{
			"into":           database.CollectionSessions,
			"on":             "_id",
			"whenMatched":    "merge",
			"whenNotMatched": "discard",
		}}},
	}
}
