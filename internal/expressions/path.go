package expressions

import (
	"encoding/json"
	"strconv"
	"strings"
)

// GetNestedValue walks data along a dot-separated path ("a.b.c").
// The boolean is false the first time a segment is missing or the current
// value cannot be descended into; missing data is never an error.
// Numeric segments index into slices.
func GetNestedValue(data map[string]any, path string) (any, bool) {
	var current any = data
	for _, seg := range strings.Split(path, ".") {
		switch node := current.(type) {
		case map[string]any:
			v, ok := node[seg]
			if !ok {
				return nil, false
			}
			current = v
		case map[string]string:
			v, ok := node[seg]
			if !ok {
				return nil, false
			}
			current = v
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			current = node[i]
		default:
			return nil, false
		}
	}
	return current, true
}

// Stringify renders a resolved value the way templates and equality
// comparisons see it. Missing and null values render as "".
func Stringify(v any, found bool) string {
	if !found || v == nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case json.Number:
		return val.String()
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(data)
	}
}

// truthy mirrors loose truthiness: missing, nil, false, 0, NaN and "" are false.
func truthy(v any, found bool) bool {
	if !found || v == nil {
		return false
	}
	switch val := v.(type) {
	case bool:
		return val
	case string:
		return val != ""
	case float64:
		return val != 0 && val == val
	case float32:
		return val != 0 && val == val
	case int:
		return val != 0
	case int64:
		return val != 0
	case int32:
		return val != 0
	default:
		return true
	}
}
