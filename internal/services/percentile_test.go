package services

import "testing"

func TestParsePercentileEdge(t *testing.T) {
	if edge, err := ParsePercentileEdge("top"); err != nil || edge != EdgeTop {
		t.Errorf("ParsePercentileEdge(top) = %v, %v", edge, err)
	}
	if edge, err := ParsePercentileEdge("bottom"); err != nil || edge != EdgeBottom {
		t.Errorf("ParsePercentileEdge(bottom) = %v, %v", edge, err)
	}
	for _, raw := range []string{"", "TOP", "middle"} {
		if _, err := ParsePercentileEdge(raw); err == nil {
			t.Errorf("ParsePercentileEdge(%q) should fail", raw)
		}
	}
}

func TestTopDecileIndex(t *testing.T) {
	// int(total*0.1)-1, clamped to zero. The -1 is intentional and not
	// symmetric with the bottom formula.
	cases := []struct {
		total int
		want  int
	}{
		{1, 0},
		{9, 0},
		{10, 0},
		{19, 0},
		{20, 1},
		{100, 9},
		{101, 9},
		{110, 10},
	}
	for _, tc := range cases {
		if got := topDecileIndex(tc.total); got != tc.want {
			t.Errorf("topDecileIndex(%d) = %d, want %d", tc.total, got, tc.want)
		}
	}
}

func TestBottomDecileIndex(t *testing.T) {
	// int(total*0.1), clamped to the last valid rank
	cases := []struct {
		total int
		want  int
	}{
		{1, 0},
		{5, 0},
		{9, 0},
		{10, 1},
		{15, 1},
		{100, 10},
	}
	for _, tc := range cases {
		if got := bottomDecileIndex(tc.total); got != tc.want {
			t.Errorf("bottomDecileIndex(%d) = %d, want %d", tc.total, got, tc.want)
		}
	}
}

func TestCountAtRank(t *testing.T) {
	sorted := []int64{40, 30, 20, 10}

	if got := countAtRank(sorted, 0, "tokens", "top"); got != 40 {
		t.Errorf("countAtRank(0) = %d, want 40", got)
	}
	if got := countAtRank(sorted, 3, "tokens", "bottom"); got != 10 {
		t.Errorf("countAtRank(3) = %d, want 10", got)
	}

	// Out-of-range ranks degrade to zero instead of failing
	if got := countAtRank(sorted, 4, "tokens", "top"); got != 0 {
		t.Errorf("countAtRank(4) = %d, want 0", got)
	}
	if got := countAtRank(nil, 0, "tokens", "top"); got != 0 {
		t.Errorf("countAtRank on empty data = %d, want 0", got)
	}
}
