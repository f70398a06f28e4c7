package expressions

import (
	"context"
	"math"
	"strconv"
	"strings"
)

// comparisonOperators are scanned in this order so that longer operators
// win over their prefixes ("===" before "==", ">=" before ">").
var comparisonOperators = []string{"===", "!==", "==", "!=", ">=", "<=", ">", "<"}

// EvaluateExpression evaluates a restricted comparison against data.
//
// The grammar is `<path> <op> <literal>` with op one of === !== == != >= <= > <.
// Equality operators compare string forms; ordering operators compare
// numbers and are false when either side is not numeric. Quotes around the
// literal are stripped. An expression without an operator is a truthiness
// check of the path. There are no combinators, parentheses or negation.
func EvaluateExpression(expression string, data map[string]any) bool {
	expression = strings.TrimSpace(expression)

	for _, op := range comparisonOperators {
		idx := strings.Index(expression, op)
		if idx == -1 {
			continue
		}
		path := strings.TrimSpace(expression[:idx])
		literal := unquote(strings.TrimSpace(expression[idx+len(op):]))
		left, found := GetNestedValue(data, path)
		return compare(op, left, found, literal)
	}

	return truthy(GetNestedValue(data, expression))
}

func compare(op string, left any, found bool, literal string) bool {
	switch op {
	case "===", "==":
		return Stringify(left, found) == literal
	case "!==", "!=":
		return Stringify(left, found) != literal
	}

	l, lok := toNumber(left, found)
	r, rok := toNumber(literal, true)
	if !lok || !rok {
		return false
	}
	switch op {
	case ">=":
		return l >= r
	case "<=":
		return l <= r
	case ">":
		return l > r
	case "<":
		return l < r
	}
	return false
}

func unquote(s string) string {
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '\'' || first == '"') && first == last {
			return s[1 : len(s)-1]
		}
	}
	return s
}

func toNumber(v any, found bool) (float64, bool) {
	if !found || v == nil {
		return 0, false
	}
	switch val := v.(type) {
	case float64:
		return val, !math.IsNaN(val)
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case int32:
		return float64(val), true
	case bool:
		if val {
			return 1, true
		}
		return 0, true
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return 0, true
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// RestrictedEngine exposes EvaluateExpression through the Engine interface.
type RestrictedEngine struct{}

// Name returns the engine identifier.
func (RestrictedEngine) Name() string { return "restricted" }

// Evaluate always returns a bool and never fails.
func (RestrictedEngine) Evaluate(_ context.Context, expression string, data map[string]any) (any, error) {
	return EvaluateExpression(expression, data), nil
}

var _ Engine = RestrictedEngine{}
