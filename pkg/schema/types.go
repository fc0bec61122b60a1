package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/aretw0/chatflow/pkg/domain"
)

// Type defines the contract for variable typing.
type Type interface {
	// Name returns the declared type name (e.g., "string", "number").
	Name() string
	// Validate checks if a value conforms to this type without converting it.
	Validate(value any) error
	// Coerce converts value to the canonical representation of this type.
	Coerce(value any) (any, error)
}

// StringType holds text values.
type StringType struct{}

func (t *StringType) Name() string { return string(domain.VarString) }

func (t *StringType) Validate(value any) error {
	if _, ok := value.(string); !ok {
		return fmt.Errorf("expected string, got %T", value)
	}
	return nil
}

func (t *StringType) Coerce(value any) (any, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case bool:
		return strconv.FormatBool(v), nil
	case nil:
		return nil, fmt.Errorf("expected string, got nil")
	}
	if f, ok := toFloat(value); ok {
		return strconv.FormatFloat(f, 'f', -1, 64), nil
	}
	return nil, fmt.Errorf("expected string, got %T", value)
}

// NumberType holds float64 values.
type NumberType struct{}

func (t *NumberType) Name() string { return string(domain.VarNumber) }

func (t *NumberType) Validate(value any) error {
	if _, ok := toFloat(value); !ok {
		return fmt.Errorf("expected number, got %T", value)
	}
	return nil
}

func (t *NumberType) Coerce(value any) (any, error) {
	if f, ok := toFloat(value); ok {
		return f, nil
	}
	if s, ok := value.(string); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil || math.IsNaN(f) {
			return nil, fmt.Errorf("expected number, got %q", s)
		}
		return f, nil
	}
	return nil, fmt.Errorf("expected number, got %T", value)
}

// BoolType holds boolean values.
type BoolType struct{}

func (t *BoolType) Name() string { return string(domain.VarBoolean) }

func (t *BoolType) Validate(value any) error {
	if _, ok := value.(bool); !ok {
		return fmt.Errorf("expected boolean, got %T", value)
	}
	return nil
}

func (t *BoolType) Coerce(value any) (any, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		b, err := strconv.ParseBool(strings.ToLower(strings.TrimSpace(v)))
		if err != nil {
			return nil, fmt.Errorf("expected boolean, got %q", v)
		}
		return b, nil
	}
	return nil, fmt.Errorf("expected boolean, got %T", value)
}

// DynamicType accepts any value unchanged. Used for array and object declarations.
type DynamicType struct {
	name string
}

func (t *DynamicType) Name() string                  { return t.name }
func (t *DynamicType) Validate(value any) error      { return nil }
func (t *DynamicType) Coerce(value any) (any, error) { return value, nil }

// --- Factory Functions ---

// String creates a string type.
func String() Type { return &StringType{} }

// Number creates a number type.
func Number() Type { return &NumberType{} }

// Bool creates a boolean type.
func Bool() Type { return &BoolType{} }

// Array creates a dynamic array type.
func Array() Type { return &DynamicType{name: string(domain.VarArray)} }

// Object creates a dynamic object type.
func Object() Type { return &DynamicType{name: string(domain.VarObject)} }

// ParseType converts a declared type name to a Type.
func ParseType(t domain.VariableType) (Type, error) {
	switch t {
	case domain.VarString:
		return String(), nil
	case domain.VarNumber:
		return Number(), nil
	case domain.VarBoolean:
		return Bool(), nil
	case domain.VarArray:
		return Array(), nil
	case domain.VarObject:
		return Object(), nil
	default:
		return nil, fmt.Errorf("unsupported type: %q", t)
	}
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	}
	return 0, false
}
