// Package introspection discovers entity metadata from a MySQL-compatible
// information_schema and derives the relationships its foreign keys imply.
package introspection

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"relgraph/internal/naming"
	"relgraph/internal/sqltype"
)

const (
	tablesQuery = `
		SELECT TABLE_NAME, TABLE_TYPE, TABLE_COMMENT
		FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_SCHEMA = ? AND TABLE_TYPE IN ('BASE TABLE', 'VIEW')
		ORDER BY TABLE_NAME`

	columnsQuery = `
		SELECT COLUMN_NAME, DATA_TYPE, COLUMN_TYPE, COLUMN_COMMENT, IS_NULLABLE
		FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?
		ORDER BY ORDINAL_POSITION`

	primaryKeyQuery = `
		SELECT COLUMN_NAME
		FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ? AND CONSTRAINT_NAME = 'PRIMARY'
		ORDER BY ORDINAL_POSITION`

	foreignKeysQuery = `
		SELECT COLUMN_NAME, REFERENCED_TABLE_NAME, REFERENCED_COLUMN_NAME, CONSTRAINT_NAME, ORDINAL_POSITION
		FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ? AND REFERENCED_TABLE_NAME IS NOT NULL
		ORDER BY CONSTRAINT_NAME, ORDINAL_POSITION`

	uniqueKeysQuery = `
		SELECT INDEX_NAME, COLUMN_NAME
		FROM INFORMATION_SCHEMA.STATISTICS
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ? AND NON_UNIQUE = 0
		ORDER BY INDEX_NAME, SEQ_IN_INDEX`
)

var tracer = otel.Tracer("relgraph/introspection")

// IntrospectDatabase reads tables, columns and keys for databaseName and derives relationships.
func IntrospectDatabase(ctx context.Context, db Queryer, databaseName string, namer *naming.Namer) (*Schema, error) {
	ctx, span := tracer.Start(ctx, "introspection.build_schema",
		trace.WithAttributes(attribute.String("db.name", databaseName)))
	defer span.End()

	if namer == nil {
		namer = naming.Default()
	}

	r := reader{db: db, database: databaseName}
	tables, err := r.tables(ctx)
	if err != nil {
		failSpan(span, err)
		return nil, fmt.Errorf("failed to get tables: %w", err)
	}
	for i := range tables {
		if err := r.fill(ctx, &tables[i]); err != nil {
			failSpan(span, err)
			return nil, err
		}
	}

	if tables == nil {
		tables = []Table{}
	}
	schema := &Schema{Tables: tables}
	BuildRelationships(ctx, schema, namer)
	return schema, nil
}

// reader issues the per-table information_schema queries for one database.
type reader struct {
	db       Queryer
	database string
}

// fill loads columns for t and, for base tables, its keys.
func (r reader) fill(ctx context.Context, t *Table) error {
	var err error
	if t.Columns, err = r.columns(ctx, t.Name); err != nil {
		return fmt.Errorf("failed to get columns for %s: %w", t.Name, err)
	}
	if t.IsView {
		return nil
	}

	pk, err := r.primaryKey(ctx, t.Name)
	if err != nil {
		return fmt.Errorf("failed to get primary keys for table %s: %w", t.Name, err)
	}
	for i := range t.Columns {
		t.Columns[i].IsPrimaryKey = slices.Contains(pk, t.Columns[i].Name)
	}

	if t.ForeignKeys, err = r.foreignKeys(ctx, t.Name); err != nil {
		return fmt.Errorf("failed to get foreign keys for table %s: %w", t.Name, err)
	}
	if t.UniqueKeys, err = r.uniqueKeys(ctx, t.Name); err != nil {
		return fmt.Errorf("failed to get unique keys for table %s: %w", t.Name, err)
	}
	return nil
}

func (r reader) tables(ctx context.Context) ([]Table, error) {
	return collect(ctx, r, "introspection.get_tables", "", tablesQuery, func(rows *sql.Rows) (Table, error) {
		var t Table
		var kind string
		var comment sql.NullString
		err := rows.Scan(&t.Name, &kind, &comment)
		t.IsView = strings.EqualFold(kind, "VIEW")
		t.Comment = strings.TrimSpace(comment.String)
		return t, err
	})
}

func (r reader) columns(ctx context.Context, table string) ([]Column, error) {
	return collect(ctx, r, "introspection.get_columns", table, columnsQuery, func(rows *sql.Rows) (Column, error) {
		var c Column
		var comment sql.NullString
		var nullable string
		if err := rows.Scan(&c.Name, &c.DataType, &c.ColumnType, &comment, &nullable); err != nil {
			return c, err
		}
		c.Comment = strings.TrimSpace(comment.String)
		c.IsNullable = strings.EqualFold(nullable, "YES")
		c.Type = sqltype.Parse(c.DataType, c.ColumnType)
		return c, nil
	})
}

func (r reader) primaryKey(ctx context.Context, table string) ([]string, error) {
	return collect(ctx, r, "introspection.get_primary_keys", table, primaryKeyQuery, func(rows *sql.Rows) (string, error) {
		var name string
		return name, rows.Scan(&name)
	})
}

func (r reader) foreignKeys(ctx context.Context, table string) ([]ForeignKey, error) {
	return collect(ctx, r, "introspection.get_foreign_keys", table, foreignKeysQuery, func(rows *sql.Rows) (ForeignKey, error) {
		var fk ForeignKey
		return fk, rows.Scan(&fk.ColumnName, &fk.ReferencedTable, &fk.ReferencedColumn, &fk.ConstraintName, &fk.OrdinalPosition)
	})
}

// uniqueKeys folds consecutive index rows into one key per index.
func (r reader) uniqueKeys(ctx context.Context, table string) ([]UniqueKey, error) {
	type entry struct{ index, column string }
	entries, err := collect(ctx, r, "introspection.get_unique_keys", table, uniqueKeysQuery, func(rows *sql.Rows) (entry, error) {
		var e entry
		return e, rows.Scan(&e.index, &e.column)
	})
	if err != nil {
		return nil, err
	}
	var keys []UniqueKey
	for _, e := range entries {
		if n := len(keys); n > 0 && keys[n-1].Name == e.index {
			keys[n-1].Columns = append(keys[n-1].Columns, e.column)
			continue
		}
		keys = append(keys, UniqueKey{Name: e.index, Columns: []string{e.column}})
	}
	return keys, nil
}

// collect runs one metadata query inside its own span and scans every row.
// A non-empty table is passed as the second query argument.
func collect[T any](ctx context.Context, r reader, spanName, table, query string, scan func(*sql.Rows) (T, error)) ([]T, error) {
	attrs := []attribute.KeyValue{attribute.String("db.name", r.database)}
	args := []any{r.database}
	if table != "" {
		attrs = append(attrs, attribute.String("db.table", table))
		args = append(args, table)
	}
	ctx, span := tracer.Start(ctx, spanName, trace.WithAttributes(attrs...))
	defer span.End()

	out, err := scanAll(ctx, r.db, query, args, scan)
	if err != nil {
		failSpan(span, err)
		return nil, err
	}
	return out, nil
}

func scanAll[T any](ctx context.Context, db Queryer, query string, args []any, scan func(*sql.Rows) (T, error)) ([]T, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func failSpan(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
