package models

import "testing"

func TestKindOf(t *testing.T) {
	cases := []struct {
		value interface{}
		want  ValueKind
	}{
		{nil, KindNull},
		{1.5, KindNumber},
		{float32(2), KindNumber},
		{int(3), KindNumber},
		{int32(4), KindNumber},
		{int64(5), KindNumber},
		{uint8(6), KindNumber},
		{"hello", KindString},
		{true, KindBool},
		{false, KindBool},
		// Unrecognized types fall back to null instead of breaking discovery
		{[]string{"a"}, KindNull},
		{map[string]interface{}{}, KindNull},
	}

	for _, tc := range cases {
		if got := KindOf(tc.value); got != tc.want {
			t.Errorf("KindOf(%v) = %v, want %v", tc.value, got, tc.want)
		}
	}
}

func TestValueKind_String(t *testing.T) {
	if KindNumber.String() != "number" {
		t.Errorf("KindNumber = %q", KindNumber.String())
	}
	if KindString.String() != "string" {
		t.Errorf("KindString = %q", KindString.String())
	}
	if KindBool.String() != "boolean" {
		t.Errorf("KindBool = %q", KindBool.String())
	}
	if KindNull.String() != "null" {
		t.Errorf("KindNull = %q", KindNull.String())
	}
}

func TestMetadata_KeyClassification(t *testing.T) {
	m := Metadata{
		"latency_ms": 120.5,
		"tokens":     int64(532),
		"language":   "en",
		"user_id":    "user-1",
		"flagged":    true,
		"missing":    nil,
	}

	numbers := m.NumberKeys()
	if len(numbers) != 2 {
		t.Fatalf("expected 2 number keys, got %v", numbers)
	}
	strings := m.StringKeys()
	if len(strings) != 2 {
		t.Fatalf("expected 2 string keys, got %v", strings)
	}
}
