package introspection

import (
	"context"
	"database/sql"

	"relgraph/internal/sqltype"
)

// Column is one native column. It is immutable once read.
type Column struct {
	Name         string
	DataType     string
	ColumnType   string
	Type         sqltype.Descriptor
	IsNullable   bool
	IsPrimaryKey bool
	Comment      string
}

// ForeignKey is one column of a foreign key constraint.
type ForeignKey struct {
	ColumnName       string
	ReferencedTable  string
	ReferencedColumn string
	ConstraintName   string
	OrdinalPosition  int
}

// UniqueKey is a unique index over an ordered column list.
type UniqueKey struct {
	Name    string
	Columns []string
}

// Table is one entity.
type Table struct {
	Name          string
	IsView        bool
	Comment       string
	Columns       []Column
	ForeignKeys   []ForeignKey
	UniqueKeys    []UniqueKey
	Relationships []Relationship
}

// Schema is the introspected set of entities.
type Schema struct {
	Tables []Table
}

// Table returns the named table.
func (s *Schema) Table(name string) (*Table, bool) {
	for i := range s.Tables {
		if s.Tables[i].Name == name {
			return &s.Tables[i], true
		}
	}
	return nil, false
}

// Column returns the named column.
func (t Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// Queryer is the read access introspection needs; *sql.DB satisfies it.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}
