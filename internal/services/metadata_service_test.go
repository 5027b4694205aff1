package services

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"promptlens/internal/models"
	"promptlens/internal/query"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

func stageKeys(pipeline mongo.Pipeline) []string {
	keys := make([]string, 0, len(pipeline))
	for _, stage := range pipeline {
		keys = append(keys, stage[0].Key)
	}
	return keys
}

func stageValue(pipeline mongo.Pipeline, index int) interface{} {
	return pipeline[index][0].Value
}

func TestBreakdownRequest_Validate(t *testing.T) {
	base := BreakdownRequest{
		ProjectID:            "proj-1",
		Metric:               models.MetricNbTasks,
		NumberMetadataFields: []string{"tokens"},
	}

	if err := base.Validate(); err != nil {
		t.Errorf("valid request rejected: %v", err)
	}

	noProject := base
	noProject.ProjectID = ""
	if err := noProject.Validate(); err == nil {
		t.Error("missing project id should fail validation")
	}

	badMetric := base
	badMetric.Metric = "median"
	if err := badMetric.Validate(); err == nil {
		t.Error("unknown metric should fail validation")
	}

	sumOnUnknownField := base
	sumOnUnknownField.Metric = models.MetricSum
	sumOnUnknownField.MetadataField = "language"
	if err := sumOnUnknownField.Validate(); !errors.Is(err, ErrNotNumberField) {
		t.Errorf("sum on a non-number field should return ErrNotNumberField, got %v", err)
	}
}

func TestBreakdown_ValidatesBeforeStore(t *testing.T) {
	// A nil store would panic on any query; validation failures must return
	// before that point.
	service := NewMetadataService(nil, nil, nil, nil)

	_, err := service.Breakdown(context.Background(), BreakdownRequest{
		ProjectID:            "proj-1",
		Metric:               models.MetricAvg,
		MetadataField:        "language",
		NumberMetadataFields: []string{"tokens"},
	})
	if !errors.Is(err, ErrNotNumberField) {
		t.Fatalf("expected ErrNotNumberField, got %v", err)
	}
}

func TestBuildBreakdownPipeline_NbTasks(t *testing.T) {
	req := BreakdownRequest{
		ProjectID:              "proj-1",
		Metric:                 models.MetricNbTasks,
		CategoryMetadataFields: []string{"language"},
		BreakdownBy:            "language",
	}
	groupKey, err := query.ResolveGroupKey(req.BreakdownBy, req.CategoryMetadataFields)
	if err != nil {
		t.Fatalf("ResolveGroupKey failed: %v", err)
	}

	pipeline, err := buildBreakdownPipeline(req, groupKey)
	if err != nil {
		t.Fatalf("buildBreakdownPipeline failed: %v", err)
	}

	want := []string{"$match", "$group", "$match", "$project", "$sort", "$limit"}
	if got := stageKeys(pipeline); !reflect.DeepEqual(got, want) {
		t.Fatalf("stage sequence = %v, want %v", got, want)
	}

	// Tenant isolation always comes first
	if match, ok := stageValue(pipeline, 0).(bson.M); !ok || match["project_id"] != "proj-1" {
		t.Errorf("first stage should match project_id, got %v", stageValue(pipeline, 0))
	}

	group := stageValue(pipeline, 1).(bson.M)
	if group["_id"] != "$metadata.language" {
		t.Errorf("group key = %v, want $metadata.language", group["_id"])
	}
	if !reflect.DeepEqual(group["nb_tasks"], bson.M{"$sum": 1}) {
		t.Errorf("nb_tasks accumulator = %v", group["nb_tasks"])
	}

	// Null dimension groups are dropped, not reported
	nullFilter := stageValue(pipeline, 2).(bson.M)
	if !reflect.DeepEqual(nullFilter["_id"], bson.M{"$ne": nil}) {
		t.Errorf("null group filter = %v", nullFilter)
	}

	project := stageValue(pipeline, 3).(bson.M)
	if project["language"] != "$_id" {
		t.Errorf("projection should rename _id to the dimension, got %v", project)
	}

	if limit := stageValue(pipeline, 5); limit != breakdownRowLimit {
		t.Errorf("limit = %v, want %d", limit, breakdownRowLimit)
	}
}

func TestBuildBreakdownPipeline_NoBreakdownProjectsNone(t *testing.T) {
	req := BreakdownRequest{
		ProjectID: "proj-1",
		Metric:    models.MetricNbTasks,
	}
	groupKey, err := query.ResolveGroupKey(req.BreakdownBy, nil)
	if err != nil {
		t.Fatalf("ResolveGroupKey failed: %v", err)
	}

	pipeline, err := buildBreakdownPipeline(req, groupKey)
	if err != nil {
		t.Fatalf("buildBreakdownPipeline failed: %v", err)
	}

	group := stageValue(pipeline, 1).(bson.M)
	if group["_id"] != "$id" {
		t.Errorf("no-breakdown grouping should use document id, got %v", group["_id"])
	}

	project := stageValue(pipeline, 3).(bson.M)
	if project[query.NoBreakdown] != "$_id" {
		t.Errorf("dimension column should fall back to %q, got %v", query.NoBreakdown, project)
	}
}

func TestBuildBreakdownPipeline_EventNameJoins(t *testing.T) {
	req := BreakdownRequest{
		ProjectID:   "proj-1",
		Metric:      models.MetricNbTasks,
		BreakdownBy: "event_name",
	}
	groupKey, err := query.ResolveGroupKey(req.BreakdownBy, nil)
	if err != nil {
		t.Fatalf("ResolveGroupKey failed: %v", err)
	}

	pipeline, err := buildBreakdownPipeline(req, groupKey)
	if err != nil {
		t.Fatalf("buildBreakdownPipeline failed: %v", err)
	}

	want := []string{"$match", "$lookup", "$unwind", "$group", "$match", "$project", "$sort", "$limit"}
	if got := stageKeys(pipeline); !reflect.DeepEqual(got, want) {
		t.Fatalf("stage sequence = %v, want %v", got, want)
	}

	lookup := stageValue(pipeline, 1).(bson.M)
	if lookup["from"] != "events" || lookup["foreignField"] != "task_id" {
		t.Errorf("lookup should join events on task_id, got %v", lookup)
	}
}

func TestBuildBreakdownPipeline_SumFiltersMissingField(t *testing.T) {
	req := BreakdownRequest{
		ProjectID:            "proj-1",
		Metric:               models.MetricSum,
		MetadataField:        "tokens",
		NumberMetadataFields: []string{"tokens"},
	}
	groupKey, err := query.ResolveGroupKey(req.BreakdownBy, nil)
	if err != nil {
		t.Fatalf("ResolveGroupKey failed: %v", err)
	}

	pipeline, err := buildBreakdownPipeline(req, groupKey)
	if err != nil {
		t.Fatalf("buildBreakdownPipeline failed: %v", err)
	}

	// Documents without the field must not contribute zeros
	existsMatch := stageValue(pipeline, 1).(bson.M)
	if !reflect.DeepEqual(existsMatch["metadata.tokens"], bson.M{"$exists": true}) {
		t.Errorf("sum should filter on field existence, got %v", existsMatch)
	}

	group := stageValue(pipeline, 2).(bson.M)
	if !reflect.DeepEqual(group["sumtokens"], bson.M{"$sum": "$metadata.tokens"}) {
		t.Errorf("sum accumulator = %v", group["sumtokens"])
	}
}

func TestBuildBreakdownPipeline_RejectsBadField(t *testing.T) {
	req := BreakdownRequest{
		ProjectID:            "proj-1",
		Metric:               models.MetricSum,
		MetadataField:        "evil$field",
		NumberMetadataFields: []string{"evil$field"},
	}
	groupKey, err := query.ResolveGroupKey(req.BreakdownBy, nil)
	if err != nil {
		t.Fatalf("ResolveGroupKey failed: %v", err)
	}

	if _, err := buildBreakdownPipeline(req, groupKey); !errors.Is(err, query.ErrInvalidFieldPath) {
		t.Fatalf("expected ErrInvalidFieldPath, got %v", err)
	}
}
