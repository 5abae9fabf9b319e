package resolver

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/graphql-go/graphql"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"relgraph/internal/binding"
	"relgraph/internal/dbexec"
	"relgraph/internal/introspection"
	"relgraph/internal/naming"
	"relgraph/internal/sqltype"
)

// countingExecutor records every statement and can fail those touching a table.
type countingExecutor struct {
	inner dbexec.QueryExecutor

	mu      sync.Mutex
	queries []string
	failOn  string
	failErr error
}

func (e *countingExecutor) QueryContext(ctx context.Context, query string, args ...any) (dbexec.Rows, error) {
	e.mu.Lock()
	e.queries = append(e.queries, query)
	fail := e.failOn != "" && strings.Contains(query, "FROM `"+e.failOn+"`")
	e.mu.Unlock()
	if fail {
		return nil, e.failErr
	}
	return e.inner.QueryContext(ctx, query, args...)
}

func (e *countingExecutor) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queries)
}

func (e *countingExecutor) countFrom(table string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, q := range e.queries {
		if strings.Contains(q, "FROM `"+table+"`") {
			n++
		}
	}
	return n
}

func (e *countingExecutor) reset() {
	e.mu.Lock()
	e.queries = nil
	e.mu.Unlock()
}

func col(name, dataType, columnType string, pk, nullable bool) introspection.Column {
	return introspection.Column{
		Name:         name,
		DataType:     dataType,
		ColumnType:   columnType,
		Type:         sqltype.Parse(dataType, columnType),
		IsPrimaryKey: pk,
		IsNullable:   nullable,
	}
}

func fk(column, table, ref, name string) introspection.ForeignKey {
	return introspection.ForeignKey{
		ColumnName:       column,
		ReferencedTable:  table,
		ReferencedColumn: ref,
		ConstraintName:   name,
		OrdinalPosition:  1,
	}
}

// blogTables describes users, posts, profiles, tags and the post_tags junction.
func blogTables(t *testing.T) []introspection.Table {
	t.Helper()
	schema := &introspection.Schema{Tables: []introspection.Table{
		{
			Name: "users",
			Columns: []introspection.Column{
				col("id", "int", "int", true, false),
				col("name", "varchar", "varchar(64)", false, false),
			},
		},
		{
			Name: "posts",
			Columns: []introspection.Column{
				col("id", "int", "int", true, false),
				col("author_id", "int", "int", false, false),
				col("title", "varchar", "varchar(255)", false, false),
				col("status", "enum", "enum('draft','published')", false, false),
				col("labels", "set", "set('go','sql')", false, true),
			},
			ForeignKeys: []introspection.ForeignKey{fk("author_id", "users", "id", "fk_posts_author")},
		},
		{
			Name: "profiles",
			Columns: []introspection.Column{
				col("id", "int", "int", true, false),
				col("user_id", "int", "int", false, false),
				col("bio", "text", "text", false, true),
			},
			ForeignKeys: []introspection.ForeignKey{fk("user_id", "users", "id", "fk_profiles_user")},
			UniqueKeys:  []introspection.UniqueKey{{Name: "uq_profiles_user", Columns: []string{"user_id"}}},
		},
		{
			Name: "tags",
			Columns: []introspection.Column{
				col("id", "int", "int", true, false),
				col("label", "varchar", "varchar(32)", false, false),
			},
		},
		{
			Name: "post_tags",
			Columns: []introspection.Column{
				col("post_id", "int", "int", true, false),
				col("tag_id", "int", "int", true, false),
			},
			ForeignKeys: []introspection.ForeignKey{
				fk("post_id", "posts", "id", "fk_post_tags_post"),
				fk("tag_id", "tags", "id", "fk_post_tags_tag"),
			},
		},
	}}
	introspection.BuildRelationships(context.Background(), schema, naming.Default())
	return schema.Tables
}

const blogDDL = `
CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT NOT NULL);
CREATE TABLE posts (id INTEGER PRIMARY KEY, author_id INTEGER NOT NULL REFERENCES users(id), title TEXT NOT NULL, status TEXT NOT NULL, labels TEXT);
CREATE TABLE profiles (id INTEGER PRIMARY KEY, user_id INTEGER NOT NULL REFERENCES users(id), bio TEXT);
CREATE TABLE tags (id INTEGER PRIMARY KEY, label TEXT NOT NULL);
CREATE TABLE post_tags (post_id INTEGER NOT NULL, tag_id INTEGER NOT NULL, PRIMARY KEY (post_id, tag_id));
`

// openBlogDB creates an in-memory database with users users, two posts each,
// one profile each and two tags. Odd posts carry both tags, even posts one.
func openBlogDB(t *testing.T, users int) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	for _, stmt := range strings.Split(blogDDL, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		_, err = db.Exec(stmt)
		require.NoError(t, err)
	}

	tx, err := db.Begin()
	require.NoError(t, err)
	_, err = tx.Exec(`INSERT INTO tags (id, label) VALUES (1, 'go'), (2, 'sql')`)
	require.NoError(t, err)
	for u := 1; u <= users; u++ {
		_, err = tx.Exec(`INSERT INTO users (id, name) VALUES (?, ?)`, u, fmt.Sprintf("user-%d", u))
		require.NoError(t, err)
		_, err = tx.Exec(`INSERT INTO profiles (id, user_id, bio) VALUES (?, ?, ?)`, u, u, fmt.Sprintf("bio-%d", u))
		require.NoError(t, err)
		for _, p := range []int{2*u - 1, 2 * u} {
			status, labels := "published", interface{}(nil)
			if p%2 == 1 {
				status, labels = "draft", "go,sql"
			}
			_, err = tx.Exec(`INSERT INTO posts (id, author_id, title, status, labels) VALUES (?, ?, ?, ?, ?)`,
				p, u, fmt.Sprintf("post-%d", p), status, labels)
			require.NoError(t, err)
			_, err = tx.Exec(`INSERT INTO post_tags (post_id, tag_id) VALUES (?, 1)`, p)
			require.NoError(t, err)
			if p%2 == 1 {
				_, err = tx.Exec(`INSERT INTO post_tags (post_id, tag_id) VALUES (?, 2)`, p)
				require.NoError(t, err)
			}
		}
	}
	require.NoError(t, tx.Commit())
	return db
}

type blogEnv struct {
	db       *sql.DB
	exec     *countingExecutor
	schema   graphql.Schema
	bindings *binding.Registry
}

func newBlogEnv(t *testing.T, users int, opts Options) *blogEnv {
	t.Helper()
	db := openBlogDB(t, users)
	exec := &countingExecutor{inner: dbexec.NewStandardExecutor(db)}
	opts.Executor = exec
	bindings := binding.NewRegistry()
	schema, err := BuildSchema(blogTables(t), bindings, opts)
	require.NoError(t, err)
	return &blogEnv{db: db, exec: exec, schema: schema, bindings: bindings}
}

func (e *blogEnv) run(t *testing.T, query string, ec ExecutionContext) *graphql.Result {
	t.Helper()
	e.exec.reset()
	return Execute(context.Background(), e.schema, query, nil, ec)
}

func data(t *testing.T, result *graphql.Result) map[string]interface{} {
	t.Helper()
	require.Empty(t, result.Errors)
	m, ok := result.Data.(map[string]interface{})
	require.True(t, ok, "unexpected data %T", result.Data)
	return m
}

func obj(v interface{}) map[string]interface{} {
	m, _ := v.(map[string]interface{})
	return m
}

func list(v interface{}) []interface{} {
	l, _ := v.([]interface{})
	return l
}

func boolPtr(b bool) *bool { return &b }
