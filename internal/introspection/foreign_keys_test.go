package introspection

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestForeignKeyConstraints(t *testing.T) {
	tests := []struct {
		name string
		fks  []ForeignKey
		want []ForeignKeyConstraint
	}{
		{
			name: "no foreign keys",
		},
		{
			name: "composite keys grouped and sorted",
			fks: []ForeignKey{
				{ConstraintName: "fk_owner", ColumnName: "owner_id", ReferencedTable: "accounts", ReferencedColumn: "id", OrdinalPosition: 2},
				{ConstraintName: "fk_owner", ColumnName: "owner_region", ReferencedTable: "accounts", ReferencedColumn: "region", OrdinalPosition: 1},
				{ConstraintName: "fk_bucket", ColumnName: "bucket_id", ReferencedTable: "buckets", ReferencedColumn: "id", OrdinalPosition: 1},
			},
			want: []ForeignKeyConstraint{
				{ConstraintName: "fk_bucket", ReferencedTable: "buckets", ColumnNames: []string{"bucket_id"}, ReferencedColumns: []string{"id"}},
				{ConstraintName: "fk_owner", ReferencedTable: "accounts", ColumnNames: []string{"owner_region", "owner_id"}, ReferencedColumns: []string{"region", "id"}},
			},
		},
		{
			name: "unnamed rows never merge",
			fks: []ForeignKey{
				{ColumnName: "created_by", ReferencedTable: "accounts", ReferencedColumn: "id"},
				{ColumnName: "updated_by", ReferencedTable: "accounts", ReferencedColumn: "id"},
			},
			want: []ForeignKeyConstraint{
				{ReferencedTable: "accounts", ColumnNames: []string{"created_by"}, ReferencedColumns: []string{"id"}},
				{ReferencedTable: "accounts", ColumnNames: []string{"updated_by"}, ReferencedColumns: []string{"id"}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ForeignKeyConstraints(Table{Name: "objects", ForeignKeys: tt.fks})
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ForeignKeyConstraints() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPrimaryKeyHelpers(t *testing.T) {
	table := Table{Columns: []Column{
		{Name: "region", IsPrimaryKey: true},
		{Name: "label"},
		{Name: "id", IsPrimaryKey: true},
	}}

	assert.Equal(t, []string{"region", "id"}, PrimaryKeyNames(table))
	cols := PrimaryKeyColumns(table)
	assert.Len(t, cols, 2)
	assert.Equal(t, "id", cols[1].Name)
	assert.Nil(t, PrimaryKeyNames(Table{}))
}
