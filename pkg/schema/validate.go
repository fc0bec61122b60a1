package schema

import (
	"github.com/aretw0/chatflow/pkg/domain"
)

// Schema maps variable names to their declared types.
type Schema map[string]Type

// FromDeclarations builds a Schema from flow variable declarations.
// Declarations with an unknown type are skipped and reported in the returned error;
// the schema built from the remaining declarations is still usable.
func FromDeclarations(decls []domain.VariableDecl) (Schema, error) {
	s := make(Schema, len(decls))
	var errs []error
	for _, d := range decls {
		if d.Name == "" {
			continue
		}
		t, err := ParseType(d.Type)
		if err != nil {
			errs = append(errs, &ValidationError{Key: d.Name, Reason: err.Error()})
			continue
		}
		s[d.Name] = t
	}
	if len(errs) > 0 {
		return s, &AggregateError{Errors: errs}
	}
	return s, nil
}

// Coerce converts value to the declared type of name.
// Undeclared names are returned unchanged.
func (s Schema) Coerce(name string, value any) (any, error) {
	t, ok := s[name]
	if !ok {
		return value, nil
	}
	v, err := t.Coerce(value)
	if err != nil {
		return nil, &ValidationError{Key: name, Reason: err.Error(), Value: value}
	}
	return v, nil
}

// TypeOf returns the declared type of name.
func (s Schema) TypeOf(name string) (Type, bool) {
	t, ok := s[name]
	return t, ok
}

// Validate checks that every present key in data conforms to the schema.
// Keys absent from data and keys absent from the schema are not errors.
func Validate(schema Schema, data map[string]any) error {
	if len(schema) == 0 {
		return nil
	}

	var errs []error
	for name, t := range schema {
		value, exists := data[name]
		if !exists {
			continue
		}
		if err := t.Validate(value); err != nil {
			errs = append(errs, &ValidationError{
				Key:    name,
				Reason: err.Error(),
				Value:  value,
			})
		}
	}

	if len(errs) > 0 {
		return &AggregateError{Errors: errs}
	}
	return nil
}
