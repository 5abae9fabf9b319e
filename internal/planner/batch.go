package planner

import (
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"relgraph/internal/introspection"
)

// PlanRelationshipBatch builds one statement returning the target rows of rel
// for every parent key in parents, ordered by the target's declared order.
// Each row also carries the parent key it belongs to under ParentAliases.
//
// Direct relationships match parents against the target's remote columns.
// Junction relationships join the junction table and match its local columns.
func PlanRelationshipBatch(rel introspection.Relationship, target introspection.Table, columns []introspection.Column, parents [][]interface{}) (SQLQuery, error) {
	if len(parents) == 0 {
		return SQLQuery{}, ErrNoParents
	}
	if len(rel.LocalColumns) == 0 || len(rel.LocalColumns) != len(rel.RemoteColumns) {
		return SQLQuery{}, fmt.Errorf("relationship %s has mismatched key columns", rel.Identity())
	}

	matchTable, matchColumns := target.Name, rel.RemoteColumns
	builder := sq.Select(selectColumns(target, columns)...).From(QuoteIdentifier(target.Name))

	if rel.JunctionTable != "" {
		if len(rel.JunctionLocalColumns) != len(rel.LocalColumns) || len(rel.JunctionRemoteColumns) != len(rel.RemoteColumns) {
			return SQLQuery{}, fmt.Errorf("relationship %s has mismatched junction columns", rel.Identity())
		}
		join := make([]string, len(rel.RemoteColumns))
		for i, remote := range rel.RemoteColumns {
			join[i] = fmt.Sprintf("%s = %s", qualified(rel.JunctionTable, rel.JunctionRemoteColumns[i]), qualified(target.Name, remote))
		}
		builder = builder.Join(fmt.Sprintf("%s ON %s", QuoteIdentifier(rel.JunctionTable), strings.Join(join, " AND ")))
		matchTable, matchColumns = rel.JunctionTable, rel.JunctionLocalColumns
	}

	aliases := ParentAliases(len(matchColumns))
	for i, col := range matchColumns {
		builder = builder.Column(fmt.Sprintf("%s AS %s", qualified(matchTable, col), aliases[i]))
	}

	where, err := parentCondition(matchTable, matchColumns, parents)
	if err != nil {
		return SQLQuery{}, err
	}
	builder = builder.Where(where).OrderBy(orderBy(target)...)
	return toSQL(builder)
}

// parentCondition is `col IN (...)` for single-column keys and an OR of
// per-parent equalities for composite keys.
func parentCondition(table string, columns []string, parents [][]interface{}) (sq.Sqlizer, error) {
	if len(columns) == 1 {
		flat := make([]interface{}, len(parents))
		for i, p := range parents {
			if len(p) != 1 {
				return nil, fmt.Errorf("parent key width mismatch: expected 1 value, got %d", len(p))
			}
			flat[i] = p[0]
		}
		return sq.Eq{qualified(table, columns[0]): flat}, nil
	}

	or := make(sq.Or, 0, len(parents))
	for _, p := range parents {
		if len(p) != len(columns) {
			return nil, fmt.Errorf("parent key width mismatch: expected %d values, got %d", len(columns), len(p))
		}
		and := make(sq.And, len(columns))
		for i, col := range columns {
			and[i] = sq.Eq{qualified(table, col): p[i]}
		}
		or = append(or, and)
	}
	return or, nil
}
