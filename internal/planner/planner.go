// Package planner builds the SQL statements the resolvers execute.
//
// Statements are assembled with squirrel using `?` placeholders and
// backtick-quoted identifiers, which MySQL, TiDB and SQLite all accept.
package planner

import (
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"relgraph/internal/introspection"
)

// ErrNoParents is returned when a batch plan is requested for an empty parent set.
var ErrNoParents = errors.New("batch plan requires at least one parent")

const parentAliasPrefix = "__parent_"

// SQLQuery represents a planned SQL statement with bound args.
type SQLQuery struct {
	SQL  string
	Args []interface{}
}

// ParentAliases returns the aliases batch statements use to return parent key columns.
func ParentAliases(width int) []string {
	aliases := make([]string, width)
	for i := range aliases {
		aliases[i] = parentAliasPrefix + fmt.Sprint(i)
	}
	return aliases
}

// IsParentAlias reports whether a result column carries a parent key.
func IsParentAlias(column string) bool {
	return strings.HasPrefix(column, parentAliasPrefix)
}

// QuoteIdentifier quotes a SQL identifier with backticks, doubling embedded backticks.
func QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func qualified(table, column string) string {
	return QuoteIdentifier(table) + "." + QuoteIdentifier(column)
}

func selectColumns(table introspection.Table, columns []introspection.Column) []string {
	if len(columns) == 0 {
		columns = table.Columns
	}
	names := make([]string, len(columns))
	for i, col := range columns {
		names[i] = qualified(table.Name, col.Name)
	}
	return names
}

// orderColumns is the declared order of a table: its primary key, or every
// column when it has none.
func orderColumns(table introspection.Table) []string {
	cols := introspection.PrimaryKeyNames(table)
	if len(cols) == 0 {
		for _, col := range table.Columns {
			cols = append(cols, col.Name)
		}
	}
	return cols
}

// OrderColumns exposes the declared order used by every plan for table.
func OrderColumns(table introspection.Table) []string {
	return orderColumns(table)
}

func orderBy(table introspection.Table) []string {
	cols := orderColumns(table)
	clauses := make([]string, len(cols))
	for i, col := range cols {
		clauses[i] = qualified(table.Name, col) + " ASC"
	}
	return clauses
}

func toSQL(builder sq.SelectBuilder) (SQLQuery, error) {
	query, args, err := builder.PlaceholderFormat(sq.Question).ToSql()
	if err != nil {
		return SQLQuery{}, err
	}
	return SQLQuery{SQL: query, Args: args}, nil
}
