package models

import "testing"

func TestParseMetric(t *testing.T) {
	cases := []struct {
		raw  string
		want Metric
	}{
		{"nb_tasks", MetricNbTasks},
		{"NB_TASKS", MetricNbTasks},
		{"nb tasks", MetricNbTasks},
		{"  avg_success_rate  ", MetricAvgSuccessRate},
		{"Avg Session Length", MetricAvgSessionLength},
		{"sum", MetricSum},
		{"avg", MetricAvg},
	}

	for _, tc := range cases {
		got, err := ParseMetric(tc.raw)
		if err != nil {
			t.Errorf("ParseMetric(%q) returned error: %v", tc.raw, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseMetric(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestParseMetric_Unknown(t *testing.T) {
	for _, raw := range []string{"", "median", "count", "nb-tasks"} {
		if _, err := ParseMetric(raw); err == nil {
			t.Errorf("ParseMetric(%q) should fail", raw)
		}
	}
}

func TestMetric_RequiresNumberField(t *testing.T) {
	if !MetricSum.RequiresNumberField() {
		t.Error("sum should require a number field")
	}
	if !MetricAvg.RequiresNumberField() {
		t.Error("avg should require a number field")
	}
	if MetricNbTasks.RequiresNumberField() {
		t.Error("nb_tasks should not require a number field")
	}
	if MetricAvgSessionLength.RequiresNumberField() {
		t.Error("avg_session_length should not require a number field")
	}
}

func TestMetric_ValueKey(t *testing.T) {
	// Field-bound metrics embed the field name in the result key
	if got := MetricSum.ValueKey("latency_ms"); got != "sumlatency_ms" {
		t.Errorf("sum value key = %q, want %q", got, "sumlatency_ms")
	}
	if got := MetricAvg.ValueKey("tokens"); got != "avgtokens" {
		t.Errorf("avg value key = %q, want %q", got, "avgtokens")
	}

	// The others ignore the field entirely
	if got := MetricNbTasks.ValueKey("tokens"); got != "nb_tasks" {
		t.Errorf("nb_tasks value key = %q, want %q", got, "nb_tasks")
	}
	if got := MetricAvgSuccessRate.ValueKey(""); got != "avg_success_rate" {
		t.Errorf("avg_success_rate value key = %q, want %q", got, "avg_success_rate")
	}
}
