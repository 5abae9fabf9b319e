package introspection

// PrimaryKeyColumns returns the primary key columns of a table in column order.
func PrimaryKeyColumns(table Table) []Column {
	var cols []Column
	for _, col := range table.Columns {
		if col.IsPrimaryKey {
			cols = append(cols, col)
		}
	}
	return cols
}

// PrimaryKeyNames returns the primary key column names in column order.
func PrimaryKeyNames(table Table) []string {
	var names []string
	for _, col := range table.Columns {
		if col.IsPrimaryKey {
			names = append(names, col.Name)
		}
	}
	return names
}
