package introspection

import (
	"fmt"
	"path"
	"slices"
	"sort"
	"strconv"
	"strings"

	"relgraph/internal/sqltype"
)

// TypeOverrides reclassifies columns whose native type does not say what they hold.
type TypeOverrides struct {
	// UUIDColumns maps table glob -> column globs stored as BINARY(16) or CHAR(36).
	UUIDColumns map[string][]string `mapstructure:"uuid_columns"`
	// CompositeColumns maps "table.column" globs to a registered composite class.
	CompositeColumns map[string]string `mapstructure:"composite_columns"`
}

// ApplyTypeOverrides rewrites column descriptors in place. Patterns match case-insensitively.
func ApplyTypeOverrides(schema *Schema, overrides TypeOverrides) error {
	if schema == nil {
		return nil
	}
	compositeKeys := make([]string, 0, len(overrides.CompositeColumns))
	for key := range overrides.CompositeColumns {
		compositeKeys = append(compositeKeys, key)
	}
	sort.Strings(compositeKeys)

	for ti := range schema.Tables {
		table := &schema.Tables[ti]
		uuidPatterns := mergePatterns(overrides.UUIDColumns, table.Name)
		for ci := range table.Columns {
			col := &table.Columns[ci]
			if matchesAny(col.Name, uuidPatterns) {
				if err := validateUUIDColumn(*col); err != nil {
					return fmt.Errorf("invalid UUID mapping for %s.%s: %w", table.Name, col.Name, err)
				}
				col.Type = sqltype.Descriptor{Kind: sqltype.KindUUID, Name: col.Type.Name}
			}
			qualified := strings.ToLower(table.Name + "." + col.Name)
			for _, key := range compositeKeys {
				if ok, err := path.Match(strings.ToLower(key), qualified); err == nil && ok {
					col.Type = sqltype.Composite(overrides.CompositeColumns[key])
					break
				}
			}
		}
	}
	return nil
}

func mergePatterns(patterns map[string][]string, table string) []string {
	if len(patterns) == 0 {
		return nil
	}
	tableLower := strings.ToLower(table)
	keys := make([]string, 0, len(patterns))
	for key := range patterns {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var combined []string
	for _, key := range keys {
		pattern := strings.ToLower(strings.TrimSpace(key))
		if pattern == "" {
			continue
		}
		if matched, err := path.Match(pattern, tableLower); err == nil && matched {
			combined = append(combined, patterns[key]...)
		}
	}
	return slices.Compact(combined)
}

func matchesAny(value string, patterns []string) bool {
	value = strings.ToLower(value)
	for _, pattern := range patterns {
		if pattern == "" {
			continue
		}
		if ok, err := path.Match(strings.ToLower(pattern), value); err == nil && ok {
			return true
		}
	}
	return false
}

func validateUUIDColumn(col Column) error {
	baseType := strings.ToLower(strings.TrimSpace(col.DataType))
	length, hasLength := typeLength(col.ColumnType)
	switch baseType {
	case "binary", "varbinary":
		if !hasLength || length != 16 {
			return fmt.Errorf("%s requires length 16 for UUID binary storage", strings.ToUpper(baseType))
		}
	case "char", "varchar":
		if !hasLength || length < 36 {
			return fmt.Errorf("%s requires length >= 36 for UUID text storage", strings.ToUpper(baseType))
		}
	default:
		return fmt.Errorf("unsupported SQL type %q for UUID mapping", col.DataType)
	}
	return nil
}

func typeLength(columnType string) (int, bool) {
	start := strings.Index(columnType, "(")
	end := strings.Index(columnType, ")")
	if start == -1 || end <= start+1 {
		return 0, false
	}
	spec := strings.TrimSpace(columnType[start+1 : end])
	if idx := strings.Index(spec, ","); idx != -1 {
		spec = strings.TrimSpace(spec[:idx])
	}
	length, err := strconv.Atoi(spec)
	if err != nil {
		return 0, false
	}
	return length, true
}
