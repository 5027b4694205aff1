package models

import (
	"fmt"
	"strings"
)

// Metric is an aggregation metric kind supported by the breakdown endpoint
type Metric string

const (
	MetricNbTasks          Metric = "nb_tasks"
	MetricAvgSuccessRate   Metric = "avg_success_rate"
	MetricAvgSessionLength Metric = "avg_session_length"
	MetricSum              Metric = "sum"
	MetricAvg              Metric = "avg"
)

// ParseMetric parses a caller-supplied metric name. Matching is
// case-insensitive and tolerates spaces in place of underscores
// ("nb tasks" and "NB_TASKS" both parse to MetricNbTasks).
func ParseMetric(raw string) (Metric, error) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(raw)), " ", "_")
	switch Metric(normalized) {
	case MetricNbTasks, MetricAvgSuccessRate, MetricAvgSessionLength, MetricSum, MetricAvg:
		return Metric(normalized), nil
	}
	return "", fmt.Errorf("unknown metric %q", raw)
}

// RequiresNumberField reports whether the metric aggregates a named numeric
// metadata field. Selecting such a metric on a field that is not classified
// as numeric is a caller error and must be rejected before any query runs.
func (m Metric) RequiresNumberField() bool {
	return m == MetricSum || m == MetricAvg
}

// ValueKey returns the key under which the metric value appears in each
// breakdown result row. Field-bound metrics embed the field name so that
// rows from different fields stay distinguishable.
func (m Metric) ValueKey(metadataField string) string {
	if m.RequiresNumberField() {
		return string(m) + metadataField
	}
	return string(m)
}
