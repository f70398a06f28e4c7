package expressions

import (
	"encoding/json"
	"strings"

	"github.com/rendis/stepflow/pkg/schema"
)

const (
	openMarker  = "{{"
	closeMarker = "}}"
)

// InterpolateString replaces every {{ path }} marker with the string form of
// GetNestedValue(data, path). Unresolved paths become the empty string.
// Unclosed or empty markers are left untouched.
func InterpolateString(template string, data map[string]any) string {
	if !strings.Contains(template, openMarker) {
		return template
	}

	var b strings.Builder
	b.Grow(len(template))

	i := 0
	for i < len(template) {
		idx := strings.Index(template[i:], openMarker)
		if idx == -1 {
			b.WriteString(template[i:])
			break
		}
		b.WriteString(template[i : i+idx])
		start := i + idx + len(openMarker)

		end := strings.Index(template[start:], closeMarker)
		if end == -1 {
			b.WriteString(template[i+idx:])
			break
		}
		end += start

		inner := template[start:end]
		if inner == "" || strings.Contains(inner, "}") {
			b.WriteString(template[i+idx : end+len(closeMarker)])
			i = end + len(closeMarker)
			continue
		}

		b.WriteString(Stringify(GetNestedValue(data, strings.TrimSpace(inner))))
		i = end + len(closeMarker)
	}
	return b.String()
}

// InterpolateJSON interpolates markers inside every string of a JSON-shaped
// value, object keys included, and returns a fresh value. v is normalized
// through its JSON form first, so numbers come back as float64. Substituted
// text never alters the structure: quotes, backslashes and newlines stay
// inside the string they were substituted into.
func InterpolateJSON(v any, data map[string]any) (any, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "serialize template: %s", err.Error()).WithCause(err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "decode template: %s", err.Error()).WithCause(err)
	}
	return interpolateValue(doc, data), nil
}

func interpolateValue(v any, data map[string]any) any {
	switch node := v.(type) {
	case string:
		return InterpolateString(node, data)
	case map[string]any:
		out := make(map[string]any, len(node))
		for k, val := range node {
			out[InterpolateString(k, data)] = interpolateValue(val, data)
		}
		return out
	case []any:
		out := make([]any, len(node))
		for i, val := range node {
			out[i] = interpolateValue(val, data)
		}
		return out
	default:
		return node
	}
}
