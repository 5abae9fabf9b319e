package typeconv

import (
	"fmt"

	"relgraph/internal/binding"
)

// UnsupportedTypeError reports a column whose native type has no conversion rule.
type UnsupportedTypeError struct {
	Table      string
	Column     string
	NativeType string
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("don't know how to convert column %s.%s of type %s", e.Table, e.Column, e.NativeType)
}

// CompositeConverterNotFoundError reports a composite column with no registered converter.
type CompositeConverterNotFoundError struct {
	Table  string
	Column string
	Class  string
	Reason binding.LookupResult
}

func (e *CompositeConverterNotFoundError) Error() string {
	return fmt.Sprintf("no converter for composite %q on column %s.%s: %s", e.Class, e.Table, e.Column, e.Reason)
}
