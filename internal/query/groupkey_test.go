package query

import "testing"

func TestResolveGroupKey_NoBreakdown(t *testing.T) {
	// Empty string and both sentinel spellings group by document id
	for _, dim := range []string{"", "None", "none"} {
		key, err := ResolveGroupKey(dim, nil)
		if err != nil {
			t.Fatalf("ResolveGroupKey(%q) failed: %v", dim, err)
		}
		if key.Column != "id" {
			t.Errorf("ResolveGroupKey(%q).Column = %q, want id", dim, key.Column)
		}
		if key.JoinEvents {
			t.Errorf("ResolveGroupKey(%q) should not join events", dim)
		}
	}
}

func TestResolveGroupKey_EventName(t *testing.T) {
	key, err := ResolveGroupKey("event_name", nil)
	if err != nil {
		t.Fatalf("ResolveGroupKey failed: %v", err)
	}
	if key.Column != "events.event_name" {
		t.Errorf("Column = %q, want events.event_name", key.Column)
	}
	if !key.JoinEvents {
		t.Error("event_name grouping must join events")
	}
}

func TestResolveGroupKey_CategoryField(t *testing.T) {
	key, err := ResolveGroupKey("language", []string{"language", "model"})
	if err != nil {
		t.Fatalf("ResolveGroupKey failed: %v", err)
	}
	if key.Column != "metadata.language" {
		t.Errorf("Column = %q, want metadata.language", key.Column)
	}
}

func TestResolveGroupKey_LiteralField(t *testing.T) {
	// Dimensions outside the category list are taken as top-level fields,
	// never auto-prefixed with the metadata mapping.
	key, err := ResolveGroupKey("session_id", []string{"language"})
	if err != nil {
		t.Fatalf("ResolveGroupKey failed: %v", err)
	}
	if key.Column != "session_id" {
		t.Errorf("Column = %q, want session_id", key.Column)
	}

	if key.Ref() != "$session_id" {
		t.Errorf("Ref() = %q, want $session_id", key.Ref())
	}
}

func TestResolveGroupKey_RejectsInjection(t *testing.T) {
	for _, dim := range []string{"$where", "a.b", "bad\x00name"} {
		if _, err := ResolveGroupKey(dim, nil); err == nil {
			t.Errorf("ResolveGroupKey(%q) should fail", dim)
		}
	}
}
