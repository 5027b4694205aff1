package services

import (
	"reflect"
	"testing"

	"go.mongodb.org/mongo-driver/bson"
)

func TestBuildMaterializePipeline_Shape(t *testing.T) {
	match := bson.M{"project_id": "proj-1"}
	pipeline := buildMaterializePipeline(match, false)

	want := []string{"$match", "$lookup", "$match", "$set", "$unset", "$merge"}
	if got := stageKeys(pipeline); !reflect.DeepEqual(got, want) {
		t.Fatalf("stage sequence = %v, want %v", got, want)
	}

	lookup := stageValue(pipeline, 1).(bson.M)
	if lookup["from"] != "tasks" || lookup["localField"] != "id" || lookup["foreignField"] != "session_id" {
		t.Errorf("lookup should join tasks on session id, got %v", lookup)
	}

	set := stageValue(pipeline, 3).(bson.M)
	if !reflect.DeepEqual(set["session_length"], bson.M{"$size": "$tasks"}) {
		t.Errorf("session_length should be the joined task count, got %v", set)
	}

	// The scratch task array must never be written back
	if unset := stageValue(pipeline, 4); unset != "tasks" {
		t.Errorf("unset = %v, want tasks", unset)
	}
}

func TestBuildMaterializePipeline_NeverCreatesSessions(t *testing.T) {
	pipeline := buildMaterializePipeline(bson.M{"project_id": "proj-1"}, false)

	merge := stageValue(pipeline, 5).(bson.M)
	if merge["into"] != "sessions" {
		t.Errorf("merge target = %v, want sessions", merge["into"])
	}
	if merge["whenMatched"] != "merge" {
		t.Errorf("whenMatched = %v, want merge", merge["whenMatched"])
	}
	// Sessions absent from the aggregation output must be left untouched,
	// and no session may ever be created by materialization.
	if merge["whenNotMatched"] != "discard" {
		t.Errorf("whenNotMatched = %v, want discard", merge["whenNotMatched"])
	}
}

func TestBuildMaterializePipeline_EmptySessionsDropOut(t *testing.T) {
	pipeline := buildMaterializePipeline(bson.M{"project_id": "proj-1"}, false)

	taskFilter := stageValue(pipeline, 2).(bson.M)
	conditions, ok := taskFilter["$and"].(bson.A)
	if !ok || len(conditions) != 2 {
		t.Fatalf("expected two task conditions, got %v", taskFilter)
	}
}

func TestBuildMaterializePipeline_UserScope(t *testing.T) {
	pipeline := buildMaterializePipeline(bson.M{
		"project_id":       "proj-1",
		"metadata.user_id": "user-1",
	}, true)

	match := stageValue(pipeline, 0).(bson.M)
	if match["metadata.user_id"] != "user-1" {
		t.Errorf("user filter missing from match stage: %v", match)
	}

	// Anonymous tasks must not count toward per-user session lengths
	taskFilter := stageValue(pipeline, 2).(bson.M)
	conditions, ok := taskFilter["$and"].(bson.A)
	if !ok || len(conditions) != 3 {
		t.Fatalf("expected three task conditions, got %v", taskFilter)
	}
	last := conditions[2].(bson.M)
	if !reflect.DeepEqual(last["tasks.metadata.user_id"], bson.M{"$ne": nil}) {
		t.Errorf("per-user materialization should require task user ids, got %v", last)
	}
}
