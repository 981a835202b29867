package graph

import (
	"time"
)

// Row readers convert the loosely typed values a graph driver returns into
// Go types, with fallbacks rather than errors: a missing or mistyped field
// yields the zero value. Graph drivers widen all integers to int64 and all
// floating point to float64, so the numeric readers accept both.

// StringField reads a string property from a result row.
// Returns "" when the field is absent, nil, or not a string.
func StringField(row map[string]any, key string) string {
	if v, ok := row[key].(string); ok {
		return v
	}
	return ""
}

// IntField reads an integer property from a result row.
// Returns 0 when the field is absent, nil, or not numeric.
func IntField(row map[string]any, key string) int {
	switch v := row[key].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

// FloatField reads a floating point property from a result row.
// Returns 0 when the field is absent, nil, or not numeric.
func FloatField(row map[string]any, key string) float64 {
	switch v := row[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return 0
	}
}

// BoolField reads a boolean property from a result row.
// Returns false when the field is absent, nil, or not a bool.
func BoolField(row map[string]any, key string) bool {
	if v, ok := row[key].(bool); ok {
		return v
	}
	return false
}

// TimeField reads a timestamp property from a result row.
// Accepts time.Time values, RFC 3339 strings, and Unix-second integers.
// Returns the zero time when the field is absent or unparseable.
func TimeField(row map[string]any, key string) time.Time {
	switch v := row[key].(type) {
	case time.Time:
		return v
	case string:
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t
		}
		return time.Time{}
	case int64:
		return time.Unix(v, 0).UTC()
	case float64:
		return time.Unix(int64(v), 0).UTC()
	default:
		return time.Time{}
	}
}

// StringsField reads a list-of-strings property from a result row.
// Driver lists arrive as []any; non-string elements are skipped.
// Returns nil when the field is absent or not a list.
func StringsField(row map[string]any, key string) []string {
	switch v := row[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// MapField reads a nested map property from a result row.
// Returns nil when the field is absent or not a map.
func MapField(row map[string]any, key string) map[string]any {
	if v, ok := row[key].(map[string]any); ok {
		return v
	}
	return nil
}
