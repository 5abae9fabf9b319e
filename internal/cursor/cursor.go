// Package cursor encodes and decodes connection cursors.
// Cursors are opaque base64-encoded JSON holding the node type, the order key
// and the string-coerced order-key values of one row.
package cursor

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"slices"
	"strings"
	"time"
)

const version = 1

type payload struct {
	Version  int      `json:"v"`
	TypeName string   `json:"t"`
	OrderKey string   `json:"k"`
	Values   []string `json:"vals"`
}

// InvalidCursorError reports a cursor that cannot be decoded or belongs to another connection.
type InvalidCursorError struct {
	Cursor string
	Reason string
}

func (e *InvalidCursorError) Error() string {
	return fmt.Sprintf("invalid cursor %q: %s", e.Cursor, e.Reason)
}

// Position is a decoded cursor.
type Position struct {
	TypeName string
	OrderKey string
	Values   []string
}

// Encode builds an opaque cursor. Values are string-coerced so large integers survive JSON.
func Encode(typeName, orderKey string, values ...interface{}) string {
	p := payload{
		Version:  version,
		TypeName: typeName,
		OrderKey: orderKey,
		Values:   make([]string, len(values)),
	}
	for i, v := range values {
		p.Values[i] = Coerce(v)
	}
	data, err := json.Marshal(p)
	if err != nil {
		return ""
	}
	return base64.StdEncoding.EncodeToString(data)
}

// Decode parses a cursor produced by Encode.
func Decode(raw string) (Position, error) {
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return Position{}, &InvalidCursorError{Cursor: raw, Reason: "not base64"}
	}
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return Position{}, &InvalidCursorError{Cursor: raw, Reason: "malformed payload"}
	}
	if p.Version != version {
		return Position{}, &InvalidCursorError{Cursor: raw, Reason: fmt.Sprintf("unsupported version %d", p.Version)}
	}
	if p.TypeName == "" || p.OrderKey == "" {
		return Position{}, &InvalidCursorError{Cursor: raw, Reason: "missing type or order key"}
	}
	if len(p.Values) == 0 {
		return Position{}, &InvalidCursorError{Cursor: raw, Reason: "missing values"}
	}
	return Position{TypeName: p.TypeName, OrderKey: p.OrderKey, Values: p.Values}, nil
}

// DecodeFor decodes raw and checks it was issued for typeName ordered by orderKey with width values.
func DecodeFor(raw, typeName, orderKey string, width int) (Position, error) {
	pos, err := Decode(raw)
	if err != nil {
		return Position{}, err
	}
	if pos.TypeName != typeName {
		return Position{}, &InvalidCursorError{Cursor: raw, Reason: fmt.Sprintf("issued for %s, not %s", pos.TypeName, typeName)}
	}
	if pos.OrderKey != orderKey {
		return Position{}, &InvalidCursorError{Cursor: raw, Reason: fmt.Sprintf("ordered by %s, not %s", pos.OrderKey, orderKey)}
	}
	if len(pos.Values) != width {
		return Position{}, &InvalidCursorError{Cursor: raw, Reason: fmt.Sprintf("expected %d values, got %d", width, len(pos.Values))}
	}
	return pos, nil
}

// Compare orders a row's coerced key values against the position, column by
// column. Columns flagged in numeric compare as numbers; all others compare
// byte-wise.
func (p Position) Compare(values []string, numeric []bool) int {
	for i := range min(len(values), len(p.Values)) {
		num := i < len(numeric) && numeric[i]
		if c := compareValue(values[i], p.Values[i], num); c != 0 {
			return c
		}
	}
	return 0
}

// Matches reports whether values are exactly the position's values.
func (p Position) Matches(values []string) bool {
	return slices.Equal(p.Values, values)
}

func compareValue(a, b string, numeric bool) int {
	if a == b {
		return 0
	}
	if numeric {
		x, okA := new(big.Float).SetString(a)
		y, okB := new(big.Float).SetString(b)
		if okA && okB {
			return x.Cmp(y)
		}
	}
	return strings.Compare(a, b)
}

// Coerce renders a key value the way cursors store it.
func Coerce(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	case float32:
		return fmt.Sprintf("%g", val)
	case float64:
		return fmt.Sprintf("%g", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}
