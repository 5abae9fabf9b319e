// Package sqltype classifies native SQL column types into a closed set of kinds.
// Schema construction dispatches on the kind, never on raw type strings.
package sqltype

import (
	"fmt"
	"strings"
)

// Kind is the closed enumeration of native column type families.
type Kind int

const (
	KindUnknown Kind = iota
	KindDate
	KindTime
	KindYear
	KindText
	KindBinary
	KindUUID
	KindInet
	KindTimestamp
	KindSmallInt
	KindInt
	KindBigInt
	KindBoolean
	KindFloat
	KindNumeric
	KindEnum
	KindSet
	KindArray
	KindJSON
	KindComposite
)

var kindNames = map[Kind]string{
	KindUnknown:   "unknown",
	KindDate:      "date",
	KindTime:      "time",
	KindYear:      "year",
	KindText:      "text",
	KindBinary:    "binary",
	KindUUID:      "uuid",
	KindInet:      "inet",
	KindTimestamp: "timestamp",
	KindSmallInt:  "smallint",
	KindInt:       "int",
	KindBigInt:    "bigint",
	KindBoolean:   "boolean",
	KindFloat:     "float",
	KindNumeric:   "numeric",
	KindEnum:      "enum",
	KindSet:       "set",
	KindArray:     "array",
	KindJSON:      "json",
	KindComposite: "composite",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Descriptor is the parsed native type of one column.
type Descriptor struct {
	Kind Kind
	// Name is the lower-cased native type name, e.g. "varchar" or "int".
	Name     string
	Unsigned bool
	// Values holds the members of enum and set types in declaration order.
	Values []string
	// Elem is the element type of an array.
	Elem *Descriptor
	// Class names the composite type registered for the column.
	Class string
}

// String renders the descriptor for error messages.
func (d Descriptor) String() string {
	switch d.Kind {
	case KindArray:
		if d.Elem != nil {
			return d.Elem.String() + "[]"
		}
		return "array"
	case KindComposite:
		return "composite(" + d.Class + ")"
	}
	if d.Name != "" {
		return d.Name
	}
	return d.Kind.String()
}

// Composite returns a descriptor for a column bound to a composite class.
func Composite(class string) Descriptor {
	return Descriptor{Kind: KindComposite, Name: "composite", Class: class}
}

// Parse classifies an INFORMATION_SCHEMA.COLUMNS DATA_TYPE/COLUMN_TYPE pair.
// columnType may be empty when only the base type is known.
func Parse(dataType, columnType string) Descriptor {
	base := strings.ToLower(strings.TrimSpace(dataType))
	full := strings.ToLower(strings.TrimSpace(columnType))
	if base == "" {
		base = full
	}

	if strings.HasSuffix(base, "[]") {
		elemType := strings.TrimSuffix(base, "[]")
		elem := Parse(elemType, strings.TrimSuffix(full, "[]"))
		return Descriptor{Kind: KindArray, Name: base, Elem: &elem}
	}

	if idx := strings.Index(base, "("); idx != -1 {
		base = strings.TrimSpace(base[:idx])
	}

	d := Descriptor{Name: base, Unsigned: strings.Contains(full, "unsigned")}
	switch base {
	case "date":
		d.Kind = KindDate
	case "time":
		d.Kind = KindTime
	case "year":
		d.Kind = KindYear
	case "char", "varchar", "tinytext", "text", "mediumtext", "longtext",
		"string", "unicode", "nvarchar", "nchar", "clob", "tsvector":
		d.Kind = KindText
	case "binary", "varbinary", "tinyblob", "blob", "mediumblob", "longblob", "bytea":
		d.Kind = KindBinary
	case "uuid":
		d.Kind = KindUUID
	case "inet", "cidr":
		d.Kind = KindInet
	case "datetime", "timestamp", "timestamptz":
		d.Kind = KindTimestamp
	case "tinyint":
		if full == "tinyint(1)" {
			d.Kind = KindBoolean
		} else {
			d.Kind = KindSmallInt
		}
	case "smallint", "mediumint":
		d.Kind = KindSmallInt
	case "int", "integer":
		// Unsigned INT overflows a 32-bit GraphQL Int.
		if d.Unsigned {
			d.Kind = KindBigInt
		} else {
			d.Kind = KindInt
		}
	case "bigint", "serial":
		d.Kind = KindBigInt
	case "bool", "boolean":
		d.Kind = KindBoolean
	case "bit":
		if full == "bit(1)" || full == "bit" {
			d.Kind = KindBoolean
		} else {
			d.Kind = KindBigInt
		}
	case "float", "double", "real", "double precision":
		d.Kind = KindFloat
	case "decimal", "numeric":
		d.Kind = KindNumeric
	case "enum":
		d.Kind = KindEnum
		if values, err := ParseEnumValues(columnType); err == nil {
			d.Values = values
		}
	case "set":
		d.Kind = KindSet
		if values, err := ParseSetValues(columnType); err == nil {
			d.Values = values
		}
	case "json", "jsonb", "hstore":
		d.Kind = KindJSON
	default:
		d.Kind = KindUnknown
	}
	return d
}

// IsInteger reports whether the kind holds whole numbers.
func (k Kind) IsInteger() bool {
	return k == KindSmallInt || k == KindInt || k == KindBigInt
}

// IsNumber reports whether values of the kind order numerically.
func (k Kind) IsNumber() bool {
	return k.IsInteger() || k == KindYear || k == KindFloat || k == KindNumeric
}
