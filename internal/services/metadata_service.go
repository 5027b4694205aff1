package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"promptlens/internal/database"
	"promptlens/internal/models"
	"promptlens/internal/query"

	cache "github.com/patrickmn/go-cache"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// breakdownRowLimit caps every breakdown response. This is a hard display and
// safety limit, not a configuration knob.
const breakdownRowLimit = 200

const fieldCacheTTL = 5 * time.Minute

// MetadataService builds and runs the metadata aggregation pipelines:
// breakdowns over arbitrary grouping dimensions, per-user rollups, metadata
// key discovery and the decile threshold helpers.
//
// Every pipeline starts with a project_id match — no query ever leaves the
// tenant boundary. All parameter validation happens before the first store
// call; store failures propagate unchanged with no retry and no partial
// result.
type MetadataService struct {
	mongoDB      *database.MongoDB
	materializer *SessionLengthMaterializer
	redis        *RedisService
	fieldCache   *cache.Cache
	metrics      *Metrics
}

// NewMetadataService creates a new metadata service. redisService and
// metrics may be nil; caching and instrumentation degrade gracefully.
func NewMetadataService(mongoDB *database.MongoDB, materializer *SessionLengthMaterializer, redisService *RedisService, metrics *Metrics) *MetadataService {
	return &MetadataService{
		mongoDB:      mongoDB,
		materializer: materializer,
		redis:        redisService,
		fieldCache:   cache.New(fieldCacheTTL, 10*time.Minute),
		metrics:      metrics,
	}
}

// BreakdownRequest describes one breakdown aggregation
type BreakdownRequest struct {
	ProjectID string
	Metric    models.Metric
	// MetadataField is the numeric metadata field aggregated by the sum
	// and avg metrics; the other metrics ignore it.
	MetadataField string
	// NumberMetadataFields and CategoryMetadataFields are caller-supplied
	// classifications used to validate MetadataField and to decide whether
	// BreakdownBy is a metadata key or a first-class document field.
	NumberMetadataFields   []string
	CategoryMetadataFields []string
	// BreakdownBy is the grouping dimension. Empty or "None" groups by
	// document id (one row per document).
	BreakdownBy string
}

// Validate rejects bad requests before any query is constructed
func (r *BreakdownRequest) Validate() error {
	if r.ProjectID == "" {
		return fmt.Errorf("project id is required")
	}
	if _, err := models.ParseMetric(string(r.Metric)); err != nil {
		return err
	}
	if r.Metric.RequiresNumberField() && !containsString(r.NumberMetadataFields, r.MetadataField) {
		return ErrNotNumberField
	}
	return nil
}

// Breakdown computes a metric grouped by the requested dimension and returns
// up to breakdownRowLimit rows of {<dimension>: key, <metric value key>: value},
// sorted by the metric value descending. Groups whose key is null or missing
// are dropped rather than reported as an "unknown" bucket.
func (s *MetadataService) Breakdown(ctx context.Context, req BreakdownRequest) ([]bson.M, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	groupKey, err := query.ResolveGroupKey(req.BreakdownBy, req.CategoryMetadataFields)
	if err != nil {
		return nil, err
	}

	// Session length is a cached value: recompute it before any pipeline
	// that reads it. Ordering is a hard requirement, not an optimization.
	if req.Metric == models.MetricAvgSessionLength {
		if err := s.materializer.Materialize(ctx, req.ProjectID); err != nil {
			return nil, err
		}
		if s.metrics != nil {
			s.metrics.MaterializerRuns.Inc()
		}
	}

	pipeline, err := buildBreakdownPipeline(req, groupKey)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	rows, err := s.aggregate(ctx, database.CollectionTasks, pipeline)
	if s.metrics != nil {
		if err != nil {
			s.metrics.RecordAggregationError("breakdown")
		} else {
			s.metrics.RecordAggregation("breakdown", time.Since(start).Seconds())
		}
	}
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// buildBreakdownPipeline assembles the full stage sequence for a breakdown.
// Pure function: no store access, fully testable.
func buildBreakdownPipeline(req BreakdownRequest, groupKey query.GroupKey) (mongo.Pipeline, error) {
	valueKey := req.Metric.ValueKey(req.MetadataField)

	// The universal tenant-isolation filter always comes first.
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"project_id": req.ProjectID}}},
	}

	// Grouping on event names needs one row per (task, event) pair. The
	// unwind gives inner-join semantics: tasks without events drop out.
	if groupKey.JoinEvents {
		pipeline = append(pipeline,
			bson.D{{Key: "$lookup", Value: bson.M{
				"from":         database.CollectionEvents,
				"localField":   "id",
				"foreignField": "task_id",
				"as":           "events",
			}}},
			bson.D{{Key: "$unwind", Value: "$events"}},
		)
	}

	switch req.Metric {
	case models.MetricNbTasks:
		pipeline = append(pipeline,
			bson.D{{Key: "$group", Value: bson.M{
				"_id":    groupKey.Ref(),
				valueKey: bson.M{"$sum": 1},
			}}},
		)

	case models.MetricAvgSuccessRate:
		// Only documents carrying a success flag participate in the mean.
		pipeline = append(pipeline,
			bson.D{{Key: "$match", Value: bson.M{"flag": bson.M{"$exists": true}}}},
			bson.D{{Key: "$set", Value: bson.M{
				"is_success": successIndicatorExpr(),
			}}},
			bson.D{{Key: "$group", Value: bson.M{
				"_id":    groupKey.Ref(),
				valueKey: bson.M{"$avg": "$is_success"},
			}}},
		)

	case models.MetricAvgSessionLength:
		pipeline = append(pipeline,
			bson.D{{Key: "$lookup", Value: bson.M{
				"from":         database.CollectionSessions,
				"localField":   "session_id",
				"foreignField": "id",
				"as":           "session",
			}}},
			bson.D{{Key: "$addFields", Value: bson.M{
				"session": bson.M{"$ifNull": bson.A{"$session", bson.A{}}},
			}}},
			bson.D{{Key: "$unwind", Value: "$session"}},
			bson.D{{Key: "$group", Value: bson.M{
				"_id":    groupKey.Ref(),
				valueKey: bson.M{"$avg": "$session.session_length"},
			}}},
		)

	case models.MetricSum, models.MetricAvg:
		field, err := query.Field("metadata", req.MetadataField)
		if err != nil {
			return nil, err
		}
		fieldPath, err := query.FieldPath("metadata", req.MetadataField)
		if err != nil {
			return nil, err
		}
		op := "$sum"
		if req.Metric == models.MetricAvg {
			op = "$avg"
		}
		pipeline = append(pipeline,
			bson.D{{Key: "$match", Value: bson.M{fieldPath: bson.M{"$exists": true}}}},
			bson.D{{Key: "$group", Value: bson.M{
				"_id":    groupKey.Ref(),
				valueKey: query.Op(op, field).Lower(),
			}}},
		)

	default:
		return nil, fmt.Errorf("unknown metric %q", req.Metric)
	}

	dimensionName := req.BreakdownBy
	if dimensionName == "" {
		dimensionName = query.NoBreakdown
	}

	pipeline = append(pipeline,
		// Groups without the breakdown dimension are excluded, not shown
		// as an "unknown" bucket.
		bson.D{{Key: "$match", Value: bson.M{"_id": bson.M{"$ne": nil}}}},
		bson.D{{Key: "$project", Value: bson.M{
			dimensionName: "$_id",
			valueKey:      1,
			"_id":         0,
		}}},
		bson.D{{Key: "$sort", Value: bson.M{valueKey: -1}}},
		bson.D{{Key: "$limit", Value: breakdownRowLimit}},
	)

	return pipeline, nil
}

// UserMetadata computes the per-user rollup for a project. With a userID it
// scopes to that single user; otherwise it covers every user id present in
// task metadata (tasks without one are excluded). Returns ErrNoData when the
// result set is empty.
func (s *MetadataService) UserMetadata(ctx context.Context, projectID, userID string) ([]models.UserMetadata, error) {
	if projectID == "" {
		return nil, fmt.Errorf("project id is required")
	}

	// Materialize session lengths first — the rollup reads them.
	if err := s.materializer.MaterializeForUsers(ctx, projectID, userID); err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.MaterializerRuns.Inc()
	}

	match := bson.M{"project_id": projectID}
	if userID != "" {
		match["metadata.user_id"] = userID
	} else {
		match["metadata.user_id"] = bson.M{"$ne": nil}
	}

	pipeline := buildUserRollupPipeline(match)

	start := time.Now()
	cursor, err := s.mongoDB.Collection(database.CollectionTasks).Aggregate(ctx, pipeline)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordAggregationError("user_metadata")
		}
		return nil, fmt.Errorf("user metadata aggregation failed: %w", err)
	}
	defer cursor.Close(ctx)

	var users []models.UserMetadata
	if err := cursor.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("user metadata aggregation failed: %w", err)
	}
	if s.metrics != nil {
		s.metrics.RecordAggregation("user_metadata", time.Since(start).Seconds())
	}

	if len(users) == 0 {
		return nil, ErrNoData
	}
	return users, nil
}

// buildUserRollupPipeline assembles the per-user rollup over tasks: group by
// user id, join events and sessions, deduplicate the joined arrays keeping
// the first occurrence, and average the deduplicated sessions' lengths.
func buildUserRollupPipeline(match bson.M) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$set", Value: bson.M{
			"is_success": successIndicatorExpr(),
			// A task without a token count contributes 0, never null.
			"metadata.total_tokens": bson.M{
				"$cond": bson.A{
					bson.M{"$eq": bson.A{bson.M{"$type": "$metadata.total_tokens"}, "missing"}},
					0,
					"$metadata.total_tokens",
				},
			},
		}}},
		{{Key: "$group", Value: bson.M{
			"_id":              "$metadata.user_id",
			"nb_tasks":         bson.M{"$sum": 1},
			"avg_success_rate": bson.M{"$avg": bson.M{"$toInt": "$is_success"}},
			"tasks":            bson.M{"$push": "$$ROOT"},
			"total_tokens":     bson.M{"$sum": "$metadata.total_tokens"},
		}}},
		{{Key: "$sort", Value: bson.M{"_id": 1}}},
		{{Key: "$lookup", Value: bson.M{
			"from":         database.CollectionEvents,
			"localField":   "tasks.id",
			"foreignField": "task_id",
			"as":           "events",
		}}},
		{{Key: "$lookup", Value: bson.M{
			"from":         database.CollectionSessions,
			"localField":   "tasks.session_id",
			"foreignField": "id",
			"as":           "sessions",
		}}},
		{{Key: "$addFields", Value: bson.M{
			"events":   bson.M{"$ifNull": bson.A{"$events", bson.A{}}},
			"sessions": bson.M{"$ifNull": bson.A{"$sessions", bson.A{}}},
		}}},
		// First occurrence wins: one event per distinct name, one session
		// per distinct id, in order of first appearance.
		{{Key: "$addFields", Value: bson.M{
			"events":   firstOccurrenceDedup("events", "event_name"),
			"sessions": firstOccurrenceDedup("sessions", "id"),
		}}},
		{{Key: "$project", Value: bson.M{
			"user_id":            "$_id",
			"nb_tasks":           1,
			"avg_success_rate":   1,
			"avg_session_length": bson.M{"$avg": "$sessions.session_length"},
			"events":             1,
			"tasks_id":           "$tasks.id",
			"sessions":           1,
			"total_tokens":       1,
		}}},
	}
}

// successIndicatorExpr derives the 0/1 success indicator from the tri-state
// task flag. Anything that is not "success" counts as 0.
func successIndicatorExpr() bson.M {
	return bson.M{"$cond": bson.A{bson.M{"$eq": bson.A{"$flag", models.FlagSuccess}}, 1, 0}}
}

// firstOccurrenceDedup builds a $reduce expression that walks an array and
// keeps only the first element for each distinct value of keyField.
func firstOccurrenceDedup(arrayField, keyField string) bson.M {
	return bson.M{"$reduce": bson.M{
		"input":        "$" + arrayField,
		"initialValue": bson.A{},
		"in": bson.M{"$concatArrays": bson.A{
			"$$value",
			bson.M{"$cond": bson.A{
				bson.M{"$in": bson.A{"$$this." + keyField, "$$value." + keyField}},
				bson.A{},
				bson.A{"$$this"},
			}},
		}},
	}}
}

// UniqueMetadataFields returns the distinct metadata key names of a project
// whose values match the requested runtime type ("number" or "string"),
// ordered by descending frequency of appearance. Mixed-typed keys are fine:
// each document's value is inspected independently. Returns an empty slice,
// never an error, when the project has no metadata.
func (s *MetadataService) UniqueMetadataFields(ctx context.Context, projectID, fieldType string) ([]string, error) {
	if fieldType != "number" && fieldType != "string" {
		return nil, fmt.Errorf("unsupported metadata field type %q", fieldType)
	}

	cacheKey := fmt.Sprintf("metadata_fields:%s:%s", projectID, fieldType)
	if cached, found := s.fieldCache.Get(cacheKey); found {
		return cached.([]string), nil
	}
	if fields, ok := s.fieldsFromRedis(ctx, cacheKey); ok {
		s.fieldCache.Set(cacheKey, fields, cache.DefaultExpiration)
		return fields, nil
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"project_id": projectID,
			"$and": bson.A{
				bson.M{"metadata": bson.M{"$exists": true}},
				bson.M{"metadata": bson.M{"$ne": bson.M{}}},
			},
		}}},
		{{Key: "$project", Value: bson.M{
			"metadata_keys": bson.M{"$objectToArray": "$metadata"},
		}}},
		{{Key: "$unwind", Value: "$metadata_keys"}},
	}

	// Classification is per document value, not per schema.
	if fieldType == "number" {
		pipeline = append(pipeline, bson.D{{Key: "$match", Value: bson.M{
			"$expr": bson.M{"$eq": bson.A{bson.M{"$isNumber": "$metadata_keys.v"}, true}},
		}}})
	} else {
		pipeline = append(pipeline, bson.D{{Key: "$match", Value: bson.M{
			"$expr": bson.M{"$eq": bson.A{bson.M{"$type": "$metadata_keys.v"}, "string"}},
		}}})
	}

	pipeline = append(pipeline,
		bson.D{{Key: "$group", Value: bson.M{
			"_id":           nil,
			"metadata_keys": bson.M{"$addToSet": "$metadata_keys.k"},
			"count":         bson.M{"$sum": 1},
		}}},
		bson.D{{Key: "$sort", Value: bson.M{"count": -1}}},
	)

	rows, err := s.aggregate(ctx, database.CollectionTasks, pipeline)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return []string{}, nil
	}

	raw, ok := rows[0]["metadata_keys"].(primitive.A)
	if !ok {
		return []string{}, nil
	}
	fields := make([]string, 0, len(raw))
	for _, v := range raw {
		if name, ok := v.(string); ok {
			fields = append(fields, name)
		}
	}

	s.fieldCache.Set(cacheKey, fields, cache.DefaultExpiration)
	s.fieldsToRedis(ctx, cacheKey, fields)

	return fields, nil
}

func (s *MetadataService) fieldsFromRedis(ctx context.Context, key string) ([]string, bool) {
	if s.redis == nil {
		return nil, false
	}
	payload, err := s.redis.Get(ctx, key)
	if err != nil {
		return nil, false
	}
	var fields []string
	if err := json.Unmarshal([]byte(payload), &fields); err != nil {
		return nil, false
	}
	return fields, true
}

func (s *MetadataService) fieldsToRedis(ctx context.Context, key string, fields []string) {
	if s.redis == nil {
		return
	}
	payload, err := json.Marshal(fields)
	if err != nil {
		return
	}
	if err := s.redis.Set(ctx, key, payload, fieldCacheTTL); err != nil {
		log.Printf("[METADATA] Failed to cache fields in Redis: %v", err)
	}
}

// CountDistinct returns the number of distinct non-null values of a metadata
// field within a project.
func (s *MetadataService) CountDistinct(ctx context.Context, projectID, collection, metadataField string) (int, error) {
	if err := checkCollection(collection); err != nil {
		return 0, err
	}
	fieldPath, err := query.FieldPath("metadata", metadataField)
	if err != nil {
		return 0, err
	}

	values, err := s.mongoDB.Collection(collection).Distinct(ctx, fieldPath, bson.M{
		"project_id": projectID,
		// Ignore null values
		fieldPath: bson.M{"$ne": nil},
	})
	if err != nil {
		return 0, fmt.Errorf("distinct query failed: %w", err)
	}
	return len(values), nil
}

// AverageForField returns the mean document count per distinct value of a
// metadata field. Returns ErrNoData when the project has no documents with
// that field.
func (s *MetadataService) AverageForField(ctx context.Context, projectID, collection, metadataField string) (float64, error) {
	if err := checkCollection(collection); err != nil {
		return 0, err
	}
	fieldPath, err := query.FieldPath("metadata", metadataField)
	if err != nil {
		return 0, err
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"project_id": projectID,
			fieldPath:    bson.M{"$exists": true},
		}}},
		{{Key: "$group", Value: bson.M{"_id": "$" + fieldPath, "count": bson.M{"$sum": 1}}}},
		{{Key: "$group", Value: bson.M{"_id": nil, "average": bson.M{"$avg": "$count"}}}},
	}

	rows, err := s.aggregate(ctx, collection, pipeline)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, ErrNoData
	}
	average, ok := toFloat64(rows[0]["average"])
	if !ok {
		return 0, ErrNoData
	}
	return average, nil
}

// aggregate runs a pipeline and materializes the full result
func (s *MetadataService) aggregate(ctx context.Context, collection string, pipeline mongo.Pipeline) ([]bson.M, error) {
	cursor, err := s.mongoDB.Collection(collection).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("aggregation on %s failed: %w", collection, err)
	}
	defer cursor.Close(ctx)

	var rows []bson.M
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("aggregation on %s failed: %w", collection, err)
	}
	return rows, nil
}

func checkCollection(name string) error {
	switch name {
	case database.CollectionTasks, database.CollectionSessions, database.CollectionEvents:
		return nil
	}
	return fmt.Errorf("unknown collection %q", name)
}

func containsString(list []string, target string) bool {
	for _, s := range list {
		if s == target {
			return true
		}
	}
	return false
}

// toFloat64 extracts a float from the numeric widths the BSON decoder may
// produce.
func toFloat64(raw interface{}) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}

// toInt64 extracts an integer count from a decoded BSON value
func toInt64(raw interface{}) int64 {
	switch v := raw.(type) {
	case int32:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(v)
	default:
		return 0
	}
}
