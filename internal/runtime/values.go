package runtime

import (
	"encoding/json"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/aretw0/chatflow/pkg/domain"
)

// undefinedValue marks a variable that is not bound in the session.
// It compares loosely equal only to itself and to nil, and is not a number.
type undefinedValue struct{}

var undefined = undefinedValue{}

func lookup(vars map[string]any, name string) any {
	v, ok := vars[name]
	if !ok {
		return undefined
	}
	return v
}

// evaluate applies a condition operator. Unknown operators never match.
func evaluate(value any, op domain.Operator, operand any) bool {
	switch op {
	case domain.OpEqual:
		return looseEqual(value, operand)
	case domain.OpNotEqual:
		return !looseEqual(value, operand)
	case domain.OpGreater:
		return toNumber(value) > toNumber(operand)
	case domain.OpLess:
		return toNumber(value) < toNumber(operand)
	case domain.OpGreaterEqual:
		return toNumber(value) >= toNumber(operand)
	case domain.OpLessEqual:
		return toNumber(value) <= toNumber(operand)
	case domain.OpContains:
		return strings.Contains(toString(value), toString(operand))
	case domain.OpStartsWith:
		return strings.HasPrefix(toString(value), toString(operand))
	case domain.OpEndsWith:
		return strings.HasSuffix(toString(value), toString(operand))
	}
	return false
}

// looseEqual compares across types the way editor authors expect from "==":
// numbers and numeric strings compare by value, booleans compare as 0/1,
// nil and unbound only equal each other, composites compare by their text form.
func looseEqual(a, b any) bool {
	a, b = normalize(a), normalize(b)

	if isNullish(a) || isNullish(b) {
		return isNullish(a) && isNullish(b)
	}

	switch x := a.(type) {
	case float64:
		switch y := b.(type) {
		case float64:
			return x == y
		case string:
			return x == toNumber(y)
		case bool:
			return x == toNumber(y)
		default:
			return looseEqual(x, toString(y))
		}
	case string:
		switch y := b.(type) {
		case string:
			return x == y
		case float64, bool:
			return toNumber(x) == toNumber(y)
		default:
			return x == toString(y)
		}
	case bool:
		return looseEqual(toNumber(x), b)
	default:
		switch b.(type) {
		case float64, string, bool:
			return looseEqual(b, a)
		}
		// Two composites are never the same instance.
		return false
	}
}

func isNullish(v any) bool {
	return v == nil || v == undefined
}

// normalize folds every numeric representation into float64.
func normalize(v any) any {
	if f, ok := asFloat(v); ok {
		return f
	}
	return v
}

func asFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case nil, string, bool:
		return 0, false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	}
	return 0, false
}

// toNumber converts a value for numeric comparison. Values that are not
// numbers become NaN, so every ordered comparison against them is false.
func toNumber(v any) float64 {
	if f, ok := asFloat(v); ok {
		return f
	}
	switch x := v.(type) {
	case nil:
		return 0
	case undefinedValue:
		return math.NaN()
	case bool:
		if x {
			return 1
		}
		return 0
	case string:
		return parseNumber(x)
	case []any:
		switch len(x) {
		case 0:
			return 0
		case 1:
			return toNumber(toString(x[0]))
		}
	}
	return math.NaN()
}

// parseNumber parses decimal, hex, octal and binary literals. Blank text is zero.
func parseNumber(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	switch s {
	case "Infinity", "+Infinity":
		return math.Inf(1)
	case "-Infinity":
		return math.Inf(-1)
	}
	if len(s) > 2 && s[0] == '0' {
		base := 0
		switch s[1] {
		case 'x', 'X':
			base = 16
		case 'o', 'O':
			base = 8
		case 'b', 'B':
			base = 2
		}
		if base != 0 {
			n, err := strconv.ParseUint(s[2:], base, 64)
			if err != nil {
				return math.NaN()
			}
			return float64(n)
		}
	}
	lower := strings.ToLower(s)
	if strings.Contains(lower, "inf") || strings.Contains(lower, "nan") || strings.Contains(s, "_") {
		return math.NaN()
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return f
}

// toString renders a value as text for interpolation and string operators.
// Numbers drop trailing zeros, nil renders as "null", composites render as JSON.
func toString(v any) string {
	if f, ok := asFloat(v); ok {
		return formatNumber(f)
	}
	switch x := v.(type) {
	case nil:
		return "null"
	case undefinedValue:
		return "undefined"
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

func formatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		return "0"
	case math.Abs(f) >= 1e21 || math.Abs(f) < 1e-6:
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// interpolate replaces each literal "{name}" with the value bound to name.
// Names are substituted in sorted order; unresolved placeholders stay verbatim.
func interpolate(text string, vars map[string]any) string {
	if text == "" || len(vars) == 0 || !strings.Contains(text, "{") {
		return text
	}
	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		placeholder := "{" + name + "}"
		if strings.Contains(text, placeholder) {
			text = strings.ReplaceAll(text, placeholder, toString(vars[name]))
		}
	}
	return text
}
