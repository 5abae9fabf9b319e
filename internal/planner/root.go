package planner

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"relgraph/internal/introspection"
)

// PlanList builds the statement listing every row of table in declared order.
func PlanList(table introspection.Table, columns []introspection.Column) (SQLQuery, error) {
	return toSQL(sq.Select(selectColumns(table, columns)...).
		From(QuoteIdentifier(table.Name)).
		OrderBy(orderBy(table)...))
}

// PlanByPrimaryKey builds the lookup of one row by its primary key columns.
func PlanByPrimaryKey(table introspection.Table, columns []introspection.Column, values map[string]interface{}) (SQLQuery, error) {
	pkCols := introspection.PrimaryKeyNames(table)
	if len(pkCols) == 0 {
		return SQLQuery{}, fmt.Errorf("table %s has no primary key", table.Name)
	}
	where := sq.And{}
	for _, col := range pkCols {
		value, ok := values[col]
		if !ok {
			return SQLQuery{}, fmt.Errorf("missing value for primary key column %s", col)
		}
		where = append(where, sq.Eq{qualified(table.Name, col): value})
	}
	return toSQL(sq.Select(selectColumns(table, columns)...).
		From(QuoteIdentifier(table.Name)).
		Where(where).
		Limit(1))
}
