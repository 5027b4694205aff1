package models

// Metadata is the free-form mapping attached to a task. Values are scalars
// (number, string, boolean or null); type classification happens at query
// time by inspecting each document's value, never from a schema.
type Metadata map[string]interface{}

// ValueKind classifies a metadata value by its runtime type
type ValueKind int

const (
	KindNull ValueKind = iota
	KindNumber
	KindString
	KindBool
)

// String returns the wire name used by the discovery endpoints
func (k ValueKind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindBool:
		return "boolean"
	default:
		return "null"
	}
}

// KindOf inspects a raw value decoded from the store or from JSON and
// returns its kind. Integer widths the BSON decoder may produce (int32,
// int64) all classify as numbers. Anything unrecognized is treated as null
// so a single odd document can't break discovery.
func KindOf(raw interface{}) ValueKind {
	switch raw.(type) {
	case nil:
		return KindNull
	case float64, float32, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return KindNumber
	case string:
		return KindString
	case bool:
		return KindBool
	default:
		return KindNull
	}
}

// NumberKeys returns the metadata keys of this document whose value is numeric
func (m Metadata) NumberKeys() []string {
	return m.keysOfKind(KindNumber)
}

// StringKeys returns the metadata keys of this document whose value is a string
func (m Metadata) StringKeys() []string {
	return m.keysOfKind(KindString)
}

func (m Metadata) keysOfKind(kind ValueKind) []string {
	keys := make([]string, 0, len(m))
	for k, v := range m {
		if KindOf(v) == kind {
			keys = append(keys, k)
		}
	}
	return keys
}
