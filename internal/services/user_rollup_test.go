package services

import (
	"reflect"
	"testing"

	"go.mongodb.org/mongo-driver/bson"
)

func TestBuildUserRollupPipeline_Shape(t *testing.T) {
	pipeline := buildUserRollupPipeline(bson.M{
		"project_id":       "proj-1",
		"metadata.user_id": bson.M{"$ne": nil},
	})

	want := []string{"$match", "$set", "$group", "$sort", "$lookup", "$lookup", "$addFields", "$addFields", "$project"}
	if got := stageKeys(pipeline); !reflect.DeepEqual(got, want) {
		t.Fatalf("stage sequence = %v, want %v", got, want)
	}

	group := stageValue(pipeline, 2).(bson.M)
	if group["_id"] != "$metadata.user_id" {
		t.Errorf("rollup must group by user id, got %v", group["_id"])
	}

	// Rows come back ordered by user id for stable pagination downstream
	sort := stageValue(pipeline, 3).(bson.M)
	if sort["_id"] != 1 {
		t.Errorf("sort = %v, want ascending by user id", sort)
	}
}

func TestBuildUserRollupPipeline_TokenDefault(t *testing.T) {
	pipeline := buildUserRollupPipeline(bson.M{"project_id": "proj-1"})

	set := stageValue(pipeline, 1).(bson.M)
	cond, ok := set["metadata.total_tokens"].(bson.M)
	if !ok {
		t.Fatalf("missing total_tokens default: %v", set)
	}
	args := cond["$cond"].(bson.A)
	if args[1] != 0 {
		t.Errorf("missing token counts should default to 0, got %v", args[1])
	}
}

func TestSuccessIndicatorExpr(t *testing.T) {
	expr := successIndicatorExpr()
	args, ok := expr["$cond"].(bson.A)
	if !ok || len(args) != 3 {
		t.Fatalf("unexpected indicator shape: %v", expr)
	}
	// Only the explicit success flag maps to 1; failure and unflagged are 0
	if args[1] != 1 || args[2] != 0 {
		t.Errorf("indicator branches = %v / %v, want 1 / 0", args[1], args[2])
	}
}

func TestFirstOccurrenceDedup(t *testing.T) {
	expr := firstOccurrenceDedup("events", "event_name")
	reduce, ok := expr["$reduce"].(bson.M)
	if !ok {
		t.Fatalf("expected a $reduce expression, got %v", expr)
	}
	if reduce["input"] != "$events" {
		t.Errorf("reduce input = %v, want $events", reduce["input"])
	}
	if !reflect.DeepEqual(reduce["initialValue"], bson.A{}) {
		t.Errorf("reduce must start from an empty array, got %v", reduce["initialValue"])
	}

	in := reduce["in"].(bson.M)
	concat := in["$concatArrays"].(bson.A)
	cond := concat[1].(bson.M)["$cond"].(bson.A)
	membership := cond[0].(bson.M)["$in"].(bson.A)
	if membership[0] != "$$this.event_name" || membership[1] != "$$value.event_name" {
		t.Errorf("dedup key lookup = %v", membership)
	}
	// Duplicates contribute nothing; the first occurrence is already kept
	if !reflect.DeepEqual(cond[1], bson.A{}) {
		t.Errorf("duplicate branch should append nothing, got %v", cond[1])
	}
}
