package query

// Breakdown dimension handling. The grouping key of a breakdown pipeline is
// resolved in one place so every metric branch groups the same way.

// NoBreakdown is the sentinel dimension meaning "no grouping": the pipeline
// groups by document id instead, yielding one row per document.
const NoBreakdown = "None"

// EventNameDimension groups by the name of the events joined to each task.
// It requires a lookup to the events collection and an unwind, which gives
// inner-join semantics: tasks without events drop out of the result.
const EventNameDimension = "event_name"

// GroupKey is the resolved grouping target of a breakdown pipeline
type GroupKey struct {
	// Column is the dotted field path grouped on ("metadata.language",
	// "id", "events.event_name", ...).
	Column string
	// JoinEvents is set when the pipeline must join and unwind events
	// before grouping.
	JoinEvents bool
}

// Ref returns the column as a pipeline expression ("$metadata.language")
func (g GroupKey) Ref() string {
	return "$" + g.Column
}

// ResolveGroupKey maps a caller-supplied breakdown dimension onto a grouping
// column. Dimensions listed in categoryFields are metadata keys and resolve
// under the metadata mapping; the NoBreakdown sentinel (and an absent
// dimension) resolves to the document id; EventNameDimension resolves to the
// joined event name; anything else is taken as a literal top-level field
// name, never auto-prefixed with "metadata.".
func ResolveGroupKey(breakdownBy string, categoryFields []string) (GroupKey, error) {
	if breakdownBy == "" || breakdownBy == NoBreakdown || breakdownBy == "none" {
		return GroupKey{Column: "id"}, nil
	}

	if breakdownBy == EventNameDimension {
		return GroupKey{Column: "events.event_name", JoinEvents: true}, nil
	}

	for _, field := range categoryFields {
		if breakdownBy == field {
			path, err := FieldPath("metadata", breakdownBy)
			if err != nil {
				return GroupKey{}, err
			}
			return GroupKey{Column: path}, nil
		}
	}

	path, err := FieldPath(breakdownBy)
	if err != nil {
		return GroupKey{}, err
	}
	return GroupKey{Column: path}, nil
}
