// Package schemafilter narrows an introspected schema to the tables and
// columns the configuration exposes.
package schemafilter

import (
	"context"
	"path"
	"strings"

	"relgraph/internal/introspection"
	"relgraph/internal/naming"
)

// Config holds case-insensitive glob patterns. An empty allow list allows
// everything; a deny match always wins. Column maps are keyed by table name,
// with "*" applying to every table.
type Config struct {
	AllowTables  []string            `mapstructure:"allow_tables"`
	DenyTables   []string            `mapstructure:"deny_tables"`
	ScanViews    bool                `mapstructure:"scan_views"`
	AllowColumns map[string][]string `mapstructure:"allow_columns"`
	DenyColumns  map[string][]string `mapstructure:"deny_columns"`
}

// patterns is a set of globs matched against lowercased names.
type patterns []string

func (p patterns) match(name string) bool {
	name = strings.ToLower(name)
	for _, glob := range p {
		if glob == "" {
			continue
		}
		if ok, err := path.Match(strings.ToLower(glob), name); err == nil && ok {
			return true
		}
	}
	return false
}

// permits applies deny-over-allow with an empty allow list meaning all.
func permits(name string, allow, deny patterns) bool {
	if deny.match(name) {
		return false
	}
	return len(allow) == 0 || allow.match(name)
}

func forTable(byTable map[string][]string, table string) patterns {
	if len(byTable) == 0 {
		return nil
	}
	out := append(patterns{}, byTable["*"]...)
	return append(out, byTable[table]...)
}

// visible records which tables and columns survived filtering.
type visible map[string]map[string]bool

func (v visible) has(table, column string) bool {
	return v[table][column]
}

// Apply filters the schema in place and rebuilds relationships from what is
// left. Tables left without columns are removed. Keys that reference a
// filtered column are dropped as a whole constraint.
func Apply(ctx context.Context, schema *introspection.Schema, cfg Config, namer *naming.Namer) {
	if schema == nil {
		return
	}

	seen := visible{}
	kept := schema.Tables[:0:0]
	for _, table := range schema.Tables {
		if (table.IsView && !cfg.ScanViews) || !permits(table.Name, cfg.AllowTables, cfg.DenyTables) {
			continue
		}
		allow, deny := forTable(cfg.AllowColumns, table.Name), forTable(cfg.DenyColumns, table.Name)
		cols := table.Columns[:0:0]
		seen[table.Name] = map[string]bool{}
		for _, col := range table.Columns {
			if permits(col.Name, allow, deny) {
				cols = append(cols, col)
				seen[table.Name][col.Name] = true
			}
		}
		if len(cols) == 0 {
			delete(seen, table.Name)
			continue
		}
		table.Columns = cols
		kept = append(kept, table)
	}

	for i := range kept {
		t := &kept[i]
		t.UniqueKeys = keepUniqueKeys(t.Name, t.UniqueKeys, seen)
		t.ForeignKeys = keepForeignKeys(t.Name, t.ForeignKeys, seen)
		t.Relationships = nil
	}

	schema.Tables = kept
	if len(kept) > 0 {
		introspection.BuildRelationships(ctx, schema, namer)
	}
}

func keepUniqueKeys(table string, keys []introspection.UniqueKey, seen visible) []introspection.UniqueKey {
	out := make([]introspection.UniqueKey, 0, len(keys))
next:
	for _, key := range keys {
		for _, col := range key.Columns {
			if !seen.has(table, col) {
				continue next
			}
		}
		out = append(out, key)
	}
	return out
}

func keepForeignKeys(table string, fks []introspection.ForeignKey, seen visible) []introspection.ForeignKey {
	broken := map[string]bool{}
	for _, fk := range fks {
		if !seen.has(table, fk.ColumnName) || !seen.has(fk.ReferencedTable, fk.ReferencedColumn) {
			broken[constraintOf(fk)] = true
		}
	}
	out := make([]introspection.ForeignKey, 0, len(fks))
	for _, fk := range fks {
		if !broken[constraintOf(fk)] {
			out = append(out, fk)
		}
	}
	return out
}

// constraintOf names the constraint a key row belongs to; unnamed rows stand alone.
func constraintOf(fk introspection.ForeignKey) string {
	if fk.ConstraintName == "" {
		return fk.ReferencedTable + "." + fk.ColumnName
	}
	return fk.ConstraintName
}
