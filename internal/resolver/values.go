package resolver

import (
	"encoding/base64"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"relgraph/internal/introspection"
	"relgraph/internal/sqltype"
)

// normalizeValue turns a driver value into the shape the column's GraphQL
// type serializes. Drivers without parseTime hand back []byte for most types.
func normalizeValue(col introspection.Column, value interface{}) interface{} {
	if value == nil {
		return nil
	}
	switch col.Type.Kind {
	case sqltype.KindUUID:
		return normalizeUUID(value)
	case sqltype.KindSet:
		return splitSet(value)
	case sqltype.KindBoolean:
		return normalizeBool(value)
	case sqltype.KindDate:
		if t, ok := value.(time.Time); ok {
			return t.Format(time.DateOnly)
		}
	case sqltype.KindTime:
		if t, ok := value.(time.Time); ok {
			return t.Format(time.TimeOnly)
		}
	case sqltype.KindBinary:
		if b, ok := value.([]byte); ok {
			return base64.StdEncoding.EncodeToString(b)
		}
	case sqltype.KindArray:
		return normalizeArray(value)
	}
	if b, ok := value.([]byte); ok {
		return string(b)
	}
	return value
}

func normalizeUUID(value interface{}) interface{} {
	switch v := value.(type) {
	case []byte:
		if len(v) == 16 {
			if id, err := uuid.FromBytes(v); err == nil {
				return id.String()
			}
		}
		return strings.ToLower(string(v))
	case string:
		return strings.ToLower(v)
	case uuid.UUID:
		return v.String()
	}
	return value
}

func splitSet(value interface{}) interface{} {
	var raw string
	switch v := value.(type) {
	case []byte:
		raw = string(v)
	case string:
		raw = v
	case []string:
		return v
	default:
		return value
	}
	if raw == "" {
		return []string{}
	}
	return strings.Split(raw, ",")
}

func normalizeBool(value interface{}) interface{} {
	b, ok := value.([]byte)
	if !ok {
		return value
	}
	// BIT(1) arrives as a raw byte, TINYINT(1) over the text protocol as a digit.
	if parsed, err := strconv.ParseBool(string(b)); err == nil {
		return parsed
	}
	return len(b) > 0 && b[0] != 0
}

func normalizeArray(value interface{}) interface{} {
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return value
	}
	var items []interface{}
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	return items
}

// normalizeKey keeps key values comparable across statements: text-protocol
// drivers return []byte for keys that came back as integers elsewhere.
func normalizeKey(value interface{}) interface{} {
	if b, ok := value.([]byte); ok {
		return string(b)
	}
	return value
}
