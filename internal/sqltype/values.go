package sqltype

import (
	"fmt"
	"strings"
)

// ParseEnumValues reads the members of an `enum('a','b')` COLUMN_TYPE without a DB round-trip.
func ParseEnumValues(columnType string) ([]string, error) {
	return parseQuotedList("enum", columnType)
}

// ParseSetValues reads the members of a `set('a','b')` COLUMN_TYPE.
func ParseSetValues(columnType string) ([]string, error) {
	return parseQuotedList("set", columnType)
}

func parseQuotedList(keyword, columnType string) ([]string, error) {
	trimmed := strings.TrimSpace(columnType)
	prefix := keyword + "("
	if len(trimmed) < len(prefix)+1 {
		return nil, fmt.Errorf("invalid %s definition", keyword)
	}
	lower := strings.ToLower(trimmed)
	if !strings.HasPrefix(lower, prefix) || !strings.HasSuffix(lower, ")") {
		return nil, fmt.Errorf("invalid %s prefix or suffix", keyword)
	}

	definition := trimmed[len(prefix) : len(trimmed)-1]
	values := []string{}
	i := 0
	for i < len(definition) {
		for i < len(definition) && (definition[i] == ' ' || definition[i] == ',') {
			i++
		}
		if i >= len(definition) {
			break
		}
		if definition[i] != '\'' {
			return nil, fmt.Errorf("expected quote at position %d", i)
		}
		i++
		var sb strings.Builder
		closed := false
		for i < len(definition) {
			ch := definition[i]
			if ch == '\\' {
				if i+1 >= len(definition) {
					return nil, fmt.Errorf("unterminated escape")
				}
				sb.WriteByte(definition[i+1])
				i += 2
				continue
			}
			if ch == '\'' {
				if i+1 < len(definition) && definition[i+1] == '\'' {
					sb.WriteByte('\'')
					i += 2
					continue
				}
				i++
				closed = true
				break
			}
			sb.WriteByte(ch)
			i++
		}
		if !closed {
			return nil, fmt.Errorf("unterminated quoted value")
		}
		values = append(values, sb.String())
		for i < len(definition) && definition[i] == ' ' {
			i++
		}
		if i < len(definition) {
			if definition[i] != ',' {
				return nil, fmt.Errorf("expected comma at position %d", i)
			}
			i++
		}
	}

	if len(values) == 0 {
		return nil, fmt.Errorf("no %s values parsed", keyword)
	}
	return values, nil
}
