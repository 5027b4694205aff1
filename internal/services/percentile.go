package services

import (
	"context"
	"fmt"
	"log"

	"promptlens/internal/database"
	"promptlens/internal/query"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// PercentileEdge selects which end of the distribution a threshold query
// looks at.
type PercentileEdge string

const (
	EdgeTop    PercentileEdge = "top"
	EdgeBottom PercentileEdge = "bottom"
)

// ParsePercentileEdge parses the edge query parameter
func ParsePercentileEdge(raw string) (PercentileEdge, error) {
	switch PercentileEdge(raw) {
	case EdgeTop, EdgeBottom:
		return PercentileEdge(raw), nil
	}
	return "", fmt.Errorf("edge must be %q or %q", EdgeTop, EdgeBottom)
}

// PercentileThreshold returns the document count at the 10% rank of the
// per-value count distribution of a metadata field: the count of the value
// sitting at the top (or bottom) decile boundary.
//
// Insufficient data is not an error: when the computed rank falls outside
// the sorted list — or the project has no matching documents at all — the
// helper logs a warning and returns 0.
func (s *MetadataService) PercentileThreshold(ctx context.Context, projectID, collection, metadataField string, edge PercentileEdge) (int64, error) {
	if edge == EdgeBottom {
		return s.bottomDecileCount(ctx, projectID, collection, metadataField)
	}
	return s.topDecileCount(ctx, projectID, collection, metadataField)
}

func (s *MetadataService) topDecileCount(ctx context.Context, projectID, collection, metadataField string) (int64, error) {
	if err := checkCollection(collection); err != nil {
		return 0, err
	}
	fieldPath, err := query.FieldPath("metadata", metadataField)
	if err != nil {
		return 0, err
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"project_id": projectID}}},
		{{Key: "$match", Value: bson.M{fieldPath: bson.M{"$exists": true}}}},
		{{Key: "$group", Value: bson.M{
			"_id":                "$" + fieldPath,
			"metadataValueCount": bson.M{"$sum": 1},
		}}},
		{{Key: "$sort", Value: bson.M{"metadataValueCount": -1}}},
		{{Key: "$facet", Value: bson.M{
			"totalKeyCount": bson.A{bson.M{"$count": "count"}},
			"sortedData":    bson.A{bson.M{"$match": bson.M{}}},
		}}},
	}

	total, sorted, err := s.runDecilePipeline(ctx, collection, pipeline)
	if err != nil {
		return 0, err
	}
	if total == 0 {
		log.Printf("[METADATA] No %s data in %s to determine the top 10%% threshold", metadataField, collection)
		return 0, nil
	}

	return countAtRank(sorted, topDecileIndex(total), metadataField, "top"), nil
}

func (s *MetadataService) bottomDecileCount(ctx context.Context, projectID, collection, metadataField string) (int64, error) {
	if err := checkCollection(collection); err != nil {
		return 0, err
	}
	fieldPath, err := query.FieldPath("metadata", metadataField)
	if err != nil {
		return 0, err
	}

	// TODO: group by fieldPath and run against the requested collection
	// instead of the hardcoded per-user counts over tasks. Dashboards
	// currently rely on the per-user distribution, so changing this needs
	// a coordinated frontend release.
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"project_id": projectID}}},
		{{Key: "$match", Value: bson.M{fieldPath: bson.M{"$exists": true}}}},
		{{Key: "$group", Value: bson.M{
			"_id":                "$metadata.user_id",
			"metadataValueCount": bson.M{"$sum": 1},
		}}},
		{{Key: "$sort", Value: bson.M{"metadataValueCount": 1}}},
		{{Key: "$facet", Value: bson.M{
			"totalKeyCount": bson.A{bson.M{"$count": "count"}},
			"sortedData":    bson.A{bson.M{"$match": bson.M{}}},
		}}},
	}

	total, sorted, err := s.runDecilePipeline(ctx, database.CollectionTasks, pipeline)
	if err != nil {
		return 0, err
	}
	if total == 0 {
		log.Printf("[METADATA] No %s data to determine the bottom 10%% threshold", metadataField)
		return 0, nil
	}

	return countAtRank(sorted, bottomDecileIndex(total), metadataField, "bottom"), nil
}

// runDecilePipeline executes a faceted decile pipeline and unpacks the total
// distinct-value count plus the sorted per-value counts.
func (s *MetadataService) runDecilePipeline(ctx context.Context, collection string, pipeline mongo.Pipeline) (int, []int64, error) {
	rows, err := s.aggregate(ctx, collection, pipeline)
	if err != nil {
		return 0, nil, err
	}
	if len(rows) == 0 {
		return 0, nil, nil
	}

	totalFacet, _ := rows[0]["totalKeyCount"].(primitive.A)
	if len(totalFacet) == 0 {
		return 0, nil, nil
	}
	totalDoc, _ := totalFacet[0].(bson.M)
	total := int(toInt64(totalDoc["count"]))

	sortedFacet, _ := rows[0]["sortedData"].(primitive.A)
	sorted := make([]int64, 0, len(sortedFacet))
	for _, entry := range sortedFacet {
		if doc, ok := entry.(bson.M); ok {
			sorted = append(sorted, toInt64(doc["metadataValueCount"]))
		}
	}

	return total, sorted, nil
}

// countAtRank returns the count at the requested rank, or 0 with a warning
// when the dataset is too small to have that rank.
func countAtRank(sorted []int64, index int, metadataField, edge string) int64 {
	if index >= 0 && index < len(sorted) {
		count := sorted[index]
		log.Printf("[METADATA] %s count at the %s 10%% threshold: %d", metadataField, edge, count)
		return count
	}
	log.Printf("⚠️  [METADATA] The dataset does not have enough values to determine the %s 10%% threshold", edge)
	return 0
}

// topDecileIndex computes the rank inspected by the top-decile helper:
// max(int(total*0.1)-1, 0). The -1 is deliberate and not symmetric with the
// bottom formula.
func topDecileIndex(total int) int {
	index := int(float64(total)*0.1) - 1
	if index < 0 {
		index = 0
	}
	return index
}

// bottomDecileIndex computes the rank inspected by the bottom-decile helper:
// min(int(total*0.1), total-1).
func bottomDecileIndex(total int) int {
	index := int(float64(total) * 0.1)
	if index > total-1 {
		index = total - 1
	}
	return index
}
