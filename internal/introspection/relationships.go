package introspection

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"relgraph/internal/naming"
)

// Direction is the cardinality/direction of a relationship as seen from its source entity.
type Direction int

const (
	ManyToOne Direction = iota + 1
	OneToMany
	ManyToMany
	OneToOne
)

func (d Direction) String() string {
	switch d {
	case ManyToOne:
		return "MANY_TO_ONE"
	case OneToMany:
		return "ONE_TO_MANY"
	case ManyToMany:
		return "MANY_TO_MANY"
	case OneToOne:
		return "ONE_TO_ONE"
	default:
		return "UNKNOWN"
	}
}

// Relationship describes one traversal from Source to Target along a foreign key path.
type Relationship struct {
	// Name is the proposed GraphQL field name, e.g. "author" or "posts".
	Name      string
	Direction Direction
	Source    string
	Target    string
	// UsesCollection is false when the target side is known to hold at most one row.
	UsesCollection bool
	// LocalColumns[i] on Source pairs with RemoteColumns[i] on Target. For
	// junction traversals both sides join through the junction columns instead.
	LocalColumns          []string
	RemoteColumns         []string
	JunctionTable         string
	JunctionLocalColumns  []string
	JunctionRemoteColumns []string
}

// IsSingle reports whether the relationship yields at most one related row.
func (r Relationship) IsSingle() bool {
	return r.Direction == ManyToOne || !r.UsesCollection
}

// Identity uniquely names the relationship's foreign key path.
func (r Relationship) Identity() string {
	id := fmt.Sprintf("%s(%s)->%s(%s)",
		r.Source, strings.Join(r.LocalColumns, ","),
		r.Target, strings.Join(r.RemoteColumns, ","),
	)
	if r.JunctionTable != "" {
		id += fmt.Sprintf(" via %s(%s|%s)", r.JunctionTable,
			strings.Join(r.JunctionLocalColumns, ","),
			strings.Join(r.JunctionRemoteColumns, ","),
		)
	}
	return id
}

type junction struct {
	table string
	left  ForeignKeyConstraint
	right ForeignKeyConstraint
}

// BuildRelationships replaces every table's relationships with those derived from foreign keys.
// Each FK yields a many-to-one on the referencing table and a one-to-many (or one-to-one when
// the FK columns are unique) on the referenced table. Pure junction tables, whose columns are
// exactly two FKs, additionally yield a many-to-many in each direction.
func BuildRelationships(ctx context.Context, schema *Schema, namer *naming.Namer) {
	_, span := tracer.Start(ctx, "introspection.build_relationships")
	defer span.End()

	if schema == nil {
		return
	}
	if namer == nil {
		namer = naming.Default()
	}
	for i := range schema.Tables {
		schema.Tables[i].Relationships = nil
	}

	junctions := detectJunctions(schema)
	isJunction := make(map[string]bool, len(junctions))
	for _, j := range junctions {
		isJunction[j.table] = true
	}

	// FK count per (source, target) decides whether reverse names need a prefix.
	fkCount := make(map[string]int)
	for _, table := range schema.Tables {
		for _, fk := range ForeignKeyConstraints(table) {
			fkCount[table.Name+"->"+fk.ReferencedTable]++
		}
	}

	for i := range schema.Tables {
		table := &schema.Tables[i]
		if table.IsView {
			continue
		}
		for _, fk := range ForeignKeyConstraints(*table) {
			if len(fk.ColumnNames) == 0 || len(fk.ColumnNames) != len(fk.ReferencedColumns) {
				slog.Default().Warn("skipping foreign key with mismatched columns",
					slog.String("table", table.Name),
					slog.String("constraint", fk.ConstraintName),
				)
				continue
			}
			target, ok := schema.Table(fk.ReferencedTable)
			if !ok {
				continue
			}

			table.Relationships = append(table.Relationships, Relationship{
				Name:          namer.ManyToOneFieldName(fk.ColumnNames[0]),
				Direction:     ManyToOne,
				Source:        table.Name,
				Target:        fk.ReferencedTable,
				LocalColumns:  slices.Clone(fk.ColumnNames),
				RemoteColumns: slices.Clone(fk.ReferencedColumns),
			})

			if isJunction[table.Name] {
				continue
			}

			onlyFK := fkCount[table.Name+"->"+fk.ReferencedTable] == 1
			reverse := Relationship{
				Source:        fk.ReferencedTable,
				Target:        table.Name,
				LocalColumns:  slices.Clone(fk.ReferencedColumns),
				RemoteColumns: slices.Clone(fk.ColumnNames),
			}
			if table.hasUniqueKey(fk.ColumnNames) {
				reverse.Direction = OneToOne
				reverse.Name = namer.OneToOneFieldName(table.Name, fk.ColumnNames[0], onlyFK)
			} else {
				reverse.Direction = OneToMany
				reverse.UsesCollection = true
				reverse.Name = namer.OneToManyFieldName(table.Name, fk.ColumnNames[0], onlyFK)
			}
			target.Relationships = append(target.Relationships, reverse)
		}
	}

	for _, j := range junctions {
		addManyToMany(schema, namer, j.table, j.left, j.right)
		addManyToMany(schema, namer, j.table, j.right, j.left)
	}
}

func addManyToMany(schema *Schema, namer *naming.Namer, junctionTable string, from, to ForeignKeyConstraint) {
	source, ok := schema.Table(from.ReferencedTable)
	if !ok {
		return
	}
	if _, ok := schema.Table(to.ReferencedTable); !ok {
		return
	}
	source.Relationships = append(source.Relationships, Relationship{
		Name:                  namer.ManyToManyFieldName(to.ReferencedTable),
		Direction:             ManyToMany,
		Source:                from.ReferencedTable,
		Target:                to.ReferencedTable,
		UsesCollection:        true,
		LocalColumns:          slices.Clone(from.ReferencedColumns),
		RemoteColumns:         slices.Clone(to.ReferencedColumns),
		JunctionTable:         junctionTable,
		JunctionLocalColumns:  slices.Clone(from.ColumnNames),
		JunctionRemoteColumns: slices.Clone(to.ColumnNames),
	})
}

// detectJunctions finds tables made of exactly two foreign keys and nothing else.
func detectJunctions(schema *Schema) []junction {
	var out []junction
	for _, table := range schema.Tables {
		if table.IsView {
			continue
		}
		fks := ForeignKeyConstraints(table)
		if len(fks) != 2 {
			continue
		}
		fkColumns := make(map[string]bool)
		for _, fk := range fks {
			for _, col := range fk.ColumnNames {
				fkColumns[col] = true
			}
		}
		pure := len(table.Columns) > 0
		for _, col := range table.Columns {
			if !fkColumns[col.Name] {
				pure = false
				break
			}
		}
		if !pure {
			continue
		}
		left, right := fks[0], fks[1]
		if left.ReferencedTable > right.ReferencedTable {
			left, right = right, left
		}
		out = append(out, junction{table: table.Name, left: left, right: right})
	}
	return out
}

// hasUniqueKey reports whether columns are exactly the primary key or a unique index.
func (t Table) hasUniqueKey(columns []string) bool {
	want := slices.Clone(columns)
	slices.Sort(want)

	pk := PrimaryKeyNames(t)
	slices.Sort(pk)
	if len(pk) > 0 && slices.Equal(pk, want) {
		return true
	}
	for _, uk := range t.UniqueKeys {
		got := slices.Clone(uk.Columns)
		slices.Sort(got)
		if slices.Equal(got, want) {
			return true
		}
	}
	return false
}
