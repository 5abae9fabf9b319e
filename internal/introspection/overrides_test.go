package introspection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relgraph/internal/sqltype"
)

func TestApplyTypeOverrides_UUIDColumns(t *testing.T) {
	schema := &Schema{Tables: []Table{{
		Name: "orders",
		Columns: []Column{
			{Name: "id", DataType: "binary", ColumnType: "binary(16)", Type: sqltype.Parse("binary", "binary(16)")},
			{Name: "external_ref", DataType: "char", ColumnType: "char(36)", Type: sqltype.Parse("char", "char(36)")},
			{Name: "note", DataType: "varchar", ColumnType: "varchar(255)", Type: sqltype.Parse("varchar", "varchar(255)")},
		},
	}}}

	err := ApplyTypeOverrides(schema, TypeOverrides{
		UUIDColumns: map[string][]string{"ORD*": {"id", "external_*"}},
	})
	require.NoError(t, err)

	cols := schema.Tables[0].Columns
	assert.Equal(t, sqltype.KindUUID, cols[0].Type.Kind)
	assert.Equal(t, sqltype.KindUUID, cols[1].Type.Kind)
	assert.Equal(t, sqltype.KindText, cols[2].Type.Kind)
}

func TestApplyTypeOverrides_RejectsNarrowUUIDStorage(t *testing.T) {
	schema := &Schema{Tables: []Table{{
		Name:    "orders",
		Columns: []Column{{Name: "id", DataType: "binary", ColumnType: "binary(8)"}},
	}}}

	err := ApplyTypeOverrides(schema, TypeOverrides{
		UUIDColumns: map[string][]string{"orders": {"id"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "orders.id")
}

func TestApplyTypeOverrides_CompositeColumns(t *testing.T) {
	schema := &Schema{Tables: []Table{{
		Name: "places",
		Columns: []Column{
			{Name: "location", DataType: "json", ColumnType: "json"},
			{Name: "name", DataType: "varchar", ColumnType: "varchar(64)"},
		},
	}}}

	err := ApplyTypeOverrides(schema, TypeOverrides{
		CompositeColumns: map[string]string{"places.loc*": "Point"},
	})
	require.NoError(t, err)

	loc := schema.Tables[0].Columns[0].Type
	assert.Equal(t, sqltype.KindComposite, loc.Kind)
	assert.Equal(t, "Point", loc.Class)
	assert.NotEqual(t, sqltype.KindComposite, schema.Tables[0].Columns[1].Type.Kind)
}

func TestApplyTypeOverrides_NilSchema(t *testing.T) {
	assert.NoError(t, ApplyTypeOverrides(nil, TypeOverrides{}))
}
