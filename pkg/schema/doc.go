// Package schema provides runtime typing for flow variables.
//
// A flow declares its variables (name, type, default value). Those declarations
// form a Schema that the interpreter uses to coerce values bound at runtime,
// e.g. turning the raw text "42" submitted to a number variable into 42.
//
// Basic usage:
//
//	s, err := schema.FromDeclarations(flow.Variables)
//	if err != nil {
//	    // unknown declared types are reported but do not abort
//	}
//
//	v, err := s.Coerce("age", "42") // v == float64(42)
//
// The array and object types are dynamic: any value is accepted as-is.
package schema
