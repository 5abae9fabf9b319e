package introspection

import (
	"cmp"
	"fmt"
	"slices"
)

// ForeignKeyConstraint is a complete FK constraint with its columns in ordinal order.
type ForeignKeyConstraint struct {
	ConstraintName    string
	ReferencedTable   string
	ColumnNames       []string
	ReferencedColumns []string
}

// ForeignKeyConstraints groups a table's per-column FK rows by constraint,
// ordered by constraint name and then ordinal position.
func ForeignKeyConstraints(table Table) []ForeignKeyConstraint {
	if len(table.ForeignKeys) == 0 {
		return nil
	}

	type keyed struct {
		key string
		fk  ForeignKey
	}
	rows := make([]keyed, 0, len(table.ForeignKeys))
	for i, fk := range table.ForeignKeys {
		key := fk.ConstraintName
		if key == "" {
			// Unnamed rows never merge with each other.
			key = fmt.Sprintf("__unnamed_%03d", i)
		}
		rows = append(rows, keyed{key: key, fk: fk})
	}
	slices.SortStableFunc(rows, func(a, b keyed) int {
		if c := cmp.Compare(a.key, b.key); c != 0 {
			return c
		}
		return cmp.Compare(a.fk.OrdinalPosition, b.fk.OrdinalPosition)
	})

	var out []ForeignKeyConstraint
	lastKey := ""
	for _, row := range rows {
		if len(out) == 0 || row.key != lastKey {
			out = append(out, ForeignKeyConstraint{
				ConstraintName:  row.fk.ConstraintName,
				ReferencedTable: row.fk.ReferencedTable,
			})
			lastKey = row.key
		}
		group := &out[len(out)-1]
		group.ColumnNames = append(group.ColumnNames, row.fk.ColumnName)
		group.ReferencedColumns = append(group.ReferencedColumns, row.fk.ReferencedColumn)
	}
	return out
}
