package batch

import (
	"fmt"
	"strings"
	"time"
)

// Row is one result row keyed by column name.
type Row = map[string]interface{}

// ParentID is the key column values of one parent row, in key column order.
type ParentID []interface{}

// String is the canonical form used to match parents to fetched rows. Values
// compare by their printed form so an int64 key matches the same key scanned
// as []byte or string.
func (p ParentID) String() string {
	var sb strings.Builder
	for i, v := range p {
		if i > 0 {
			sb.WriteByte(0x1f)
		}
		sb.WriteString(canonical(v))
	}
	return sb.String()
}

// HasNull reports whether any key value is NULL; such parents never match a row.
func (p ParentID) HasNull() bool {
	if len(p) == 0 {
		return true
	}
	for _, v := range p {
		if v == nil {
			return true
		}
	}
	return false
}

func canonical(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return "\x00"
	case string:
		return t
	case []byte:
		return string(t)
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(t)
	}
}

// Tagged is a fetched row with the parent it belongs to.
type Tagged struct {
	Parent ParentID
	Row    Row
}
