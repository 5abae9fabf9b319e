package naming

import (
	"fmt"
	"log/slog"
	"strings"
)

// reservedTypeNames collide with GraphQL built-ins or names this schema defines itself.
var reservedTypeNames = map[string]bool{
	"query": true, "mutation": true, "subscription": true,
	"int": true, "float": true, "string": true, "boolean": true, "id": true,
	"datetime": true, "jsonstring": true, "nonnegativeint": true, "pageinfo": true,
}

// Namer converts SQL names to GraphQL names and keeps field names unique per type.
type Namer struct {
	config Config
	logger *slog.Logger
	fields map[string]map[string]string // type name -> field name -> source
}

// New creates a Namer with the given configuration.
func New(cfg Config, logger *slog.Logger) *Namer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Namer{
		config: cfg,
		logger: logger,
		fields: make(map[string]map[string]string),
	}
}

// Default returns a Namer with default configuration.
func Default() *Namer {
	return New(DefaultConfig(), nil)
}

// TypeName converts a table name to a singular PascalCase object type name.
// Example: "user_profiles" -> "UserProfile"
func (n *Namer) TypeName(tableName string) string {
	name := toPascalCase(n.Singularize(tableName))
	if reservedTypeNames[strings.ToLower(name)] || strings.HasPrefix(name, "__") {
		n.logger.Warn("GraphQL type name conflicts with reserved word, auto-suffixed",
			slog.String("original", name),
			slog.String("renamed", name+"_"),
		)
		return name + "_"
	}
	return name
}

// FieldName converts a snake_case column or table name to camelCase.
// Example: "user_name" -> "userName"
func (n *Namer) FieldName(name string) string {
	return toCamelCase(name)
}

// ListQueryName is the root field listing a table, e.g. "userProfiles".
func (n *Namer) ListQueryName(tableName string) string {
	return n.FieldName(n.Pluralize(n.Singularize(tableName)))
}

// SingleQueryName is the root field fetching one row by primary key, e.g. "userProfile".
func (n *Namer) SingleQueryName(tableName string) string {
	return n.FieldName(n.Singularize(tableName))
}

// ManyToOneFieldName names a many-to-one field after its FK column with common suffixes stripped.
// Example: "author_id" -> "author"
func (n *Namer) ManyToOneFieldName(fkColumn string) string {
	name := fkColumn
	for _, suffix := range []string{"_id", "_fk"} {
		if strings.HasSuffix(strings.ToLower(name), suffix) && len(name) > len(suffix) {
			name = name[:len(name)-len(suffix)]
			break
		}
	}
	return n.FieldName(name)
}

// OneToManyFieldName names the reverse side of a FK. A single FK from the
// source table uses the pluralised table name; several FKs are prefixed with
// the FK column so they stay distinct.
// Example: isOnlyFK=false, fkColumn="author_id", "posts" -> "authorPosts"
func (n *Namer) OneToManyFieldName(sourceTable, fkColumn string, isOnlyFK bool) string {
	plural := n.FieldName(n.Pluralize(n.Singularize(sourceTable)))
	if isOnlyFK {
		return plural
	}
	prefix := n.ManyToOneFieldName(fkColumn)
	if plural == "" {
		return prefix
	}
	return prefix + strings.ToUpper(plural[:1]) + plural[1:]
}

// OneToOneFieldName names the reverse side of a unique FK, e.g. "profile".
func (n *Namer) OneToOneFieldName(sourceTable, fkColumn string, isOnlyFK bool) string {
	single := n.FieldName(n.Singularize(sourceTable))
	if isOnlyFK {
		return single
	}
	prefix := n.ManyToOneFieldName(fkColumn)
	if single == "" {
		return prefix
	}
	return prefix + strings.ToUpper(single[:1]) + single[1:]
}

// ManyToManyFieldName names a direct junction traversal after the target table.
func (n *Namer) ManyToManyFieldName(targetTable string) string {
	return n.FieldName(n.Pluralize(n.Singularize(targetTable)))
}

// RegisterField reserves a field name on a type, suffixing numerically on collision.
func (n *Namer) RegisterField(typeName, fieldName, source string) string {
	seen := n.fields[typeName]
	if seen == nil {
		seen = make(map[string]string)
		n.fields[typeName] = seen
	}
	if _, exists := seen[fieldName]; !exists {
		seen[fieldName] = source
		return fieldName
	}

	n.logger.Warn("naming collision detected, applying suffix",
		slog.String("type", typeName),
		slog.String("name", fieldName),
		slog.String("existing_source", seen[fieldName]),
		slog.String("new_source", source),
	)
	for i := 2; ; i++ {
		suffixed := fmt.Sprintf("%s%d", fieldName, i)
		if _, exists := seen[suffixed]; !exists {
			seen[suffixed] = source
			return suffixed
		}
	}
}

// toPascalCase converts snake_case to PascalCase.
func toPascalCase(s string) string {
	parts := strings.Split(s, "_")
	for i, part := range parts {
		if len(part) > 0 {
			parts[i] = strings.ToUpper(part[:1]) + part[1:]
		}
	}
	return strings.Join(parts, "")
}

// toCamelCase converts snake_case to camelCase.
func toCamelCase(s string) string {
	parts := strings.Split(s, "_")
	for i := 1; i < len(parts); i++ {
		if len(parts[i]) > 0 {
			parts[i] = strings.ToUpper(parts[i][:1]) + parts[i][1:]
		}
	}
	return strings.Join(parts, "")
}
