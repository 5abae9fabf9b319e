// Package scalars holds the custom GraphQL scalars shared by every schema.
// Each scalar is a process-wide singleton so repeated conversions yield the
// same type identity.
package scalars

import (
	"encoding/json"
	"log/slog"
	"math"
	"time"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/language/ast"
	"github.com/spf13/cast"
)

var (
	nonNegativeInt = newScalar("NonNegativeInt", "An integer greater than or equal to zero.",
		toNonNegativeInt, toNonNegativeInt, intLiteral)
	jsonString = newScalar("JSONString", "Arbitrary JSON value serialized as a string.",
		serializeJSON, validJSON, stringLiteral(validJSON))
	dateTime = newScalar("DateTime", "Timestamp serialized as RFC 3339.",
		serializeTime, parseTime, stringLiteral(parseTime))
)

// NonNegativeInt is used for pagination counts.
func NonNegativeInt() *graphql.Scalar { return nonNegativeInt }

// JSONString passes structured column values through as serialized JSON text.
func JSONString() *graphql.Scalar { return jsonString }

// DateTime serializes timestamps as RFC 3339.
func DateTime() *graphql.Scalar { return dateTime }

// coerce converts a value and reports whether it was acceptable. Rejected
// values become null.
type coerce func(any) (any, bool)

func orNil(fn coerce) func(any) any {
	return func(v any) any {
		if out, ok := fn(v); ok {
			return out
		}
		return nil
	}
}

func newScalar(name, description string, serialize, parse coerce, literal func(ast.Value) (any, bool)) *graphql.Scalar {
	return graphql.NewScalar(graphql.ScalarConfig{
		Name:        name,
		Description: description,
		Serialize:   orNil(serialize),
		ParseValue:  orNil(parse),
		ParseLiteral: func(v ast.Value) any {
			if out, ok := literal(v); ok {
				return out
			}
			return nil
		},
	})
}

func toNonNegativeInt(v any) (any, bool) {
	switch v := v.(type) {
	case nil, bool:
		return nil, false
	case float64:
		if v != math.Trunc(v) {
			return nil, false
		}
	}
	n, err := cast.ToInt64E(v)
	if err != nil || n < 0 || n > math.MaxInt {
		return nil, false
	}
	return int(n), true
}

func intLiteral(v ast.Value) (any, bool) {
	lit, ok := v.(*ast.IntValue)
	if !ok {
		return nil, false
	}
	return toNonNegativeInt(lit.Value)
}

func stringLiteral(fn coerce) func(ast.Value) (any, bool) {
	return func(v ast.Value) (any, bool) {
		lit, ok := v.(*ast.StringValue)
		if !ok {
			return nil, false
		}
		return fn(lit.Value)
	}
}

func serializeJSON(v any) (any, bool) {
	switch v := v.(type) {
	case nil:
		return nil, false
	case string:
		return v, true
	case []byte:
		return string(v), true
	case json.RawMessage:
		return string(v), true
	}
	out, err := json.Marshal(v)
	if err != nil {
		slog.Default().Warn("failed to serialize JSONString scalar", slog.String("error", err.Error()))
		return nil, false
	}
	return string(out), true
}

func validJSON(v any) (any, bool) {
	s, ok := v.(string)
	return s, ok && json.Valid([]byte(s))
}

// timestampLayouts lists the textual forms drivers hand back when parseTime is off.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

func parseTime(v any) (any, bool) {
	var text string
	switch v := v.(type) {
	case time.Time:
		return v, true
	case string:
		text = v
	default:
		return nil, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			return t.UTC(), true
		}
	}
	return nil, false
}

func serializeTime(v any) (any, bool) {
	switch t := v.(type) {
	case *time.Time:
		if t == nil {
			return nil, false
		}
		v = *t
	case []byte:
		v = string(t)
	}
	parsed, ok := parseTime(v)
	if !ok {
		return nil, false
	}
	return parsed.(time.Time).UTC().Format(time.RFC3339Nano), true
}
