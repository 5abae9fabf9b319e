package schemarefresh

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"relgraph/internal/dbexec"
	"relgraph/internal/introspection"
	"relgraph/internal/schemafilter"
)

// expectBlogIntrospection answers the information_schema queries for users
// and posts, in the order IntrospectDatabase issues them.
func expectBlogIntrospection(mock sqlmock.Sqlmock) {
	columns := []string{"COLUMN_NAME", "DATA_TYPE", "COLUMN_TYPE", "COLUMN_COMMENT", "IS_NULLABLE"}
	fkColumns := []string{"COLUMN_NAME", "REFERENCED_TABLE_NAME", "REFERENCED_COLUMN_NAME", "CONSTRAINT_NAME", "ORDINAL_POSITION"}
	indexColumns := []string{"INDEX_NAME", "COLUMN_NAME"}

	mock.ExpectQuery("FROM INFORMATION_SCHEMA.TABLES").
		WithArgs("blog").
		WillReturnRows(sqlmock.NewRows([]string{"TABLE_NAME", "TABLE_TYPE", "TABLE_COMMENT"}).
			AddRow("posts", "BASE TABLE", "Blog posts").
			AddRow("secrets", "BASE TABLE", "").
			AddRow("users", "BASE TABLE", ""))

	mock.ExpectQuery("FROM INFORMATION_SCHEMA.COLUMNS").
		WithArgs("blog", "posts").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("id", "int", "int(11)", "", "NO").
			AddRow("author_id", "int", "int(11)", "", "NO").
			AddRow("title", "varchar", "varchar(255)", "Headline", "NO"))
	mock.ExpectQuery("CONSTRAINT_NAME = 'PRIMARY'").
		WithArgs("blog", "posts").
		WillReturnRows(sqlmock.NewRows([]string{"COLUMN_NAME"}).AddRow("id"))
	mock.ExpectQuery("REFERENCED_TABLE_NAME IS NOT NULL").
		WithArgs("blog", "posts").
		WillReturnRows(sqlmock.NewRows(fkColumns).AddRow("author_id", "users", "id", "fk_posts_author", 1))
	mock.ExpectQuery("FROM INFORMATION_SCHEMA.STATISTICS").
		WithArgs("blog", "posts").
		WillReturnRows(sqlmock.NewRows(indexColumns).AddRow("PRIMARY", "id"))

	mock.ExpectQuery("FROM INFORMATION_SCHEMA.COLUMNS").
		WithArgs("blog", "secrets").
		WillReturnRows(sqlmock.NewRows(columns).AddRow("id", "int", "int(11)", "", "NO"))
	mock.ExpectQuery("CONSTRAINT_NAME = 'PRIMARY'").
		WithArgs("blog", "secrets").
		WillReturnRows(sqlmock.NewRows([]string{"COLUMN_NAME"}).AddRow("id"))
	mock.ExpectQuery("REFERENCED_TABLE_NAME IS NOT NULL").
		WithArgs("blog", "secrets").
		WillReturnRows(sqlmock.NewRows(fkColumns))
	mock.ExpectQuery("FROM INFORMATION_SCHEMA.STATISTICS").
		WithArgs("blog", "secrets").
		WillReturnRows(sqlmock.NewRows(indexColumns).AddRow("PRIMARY", "id"))

	mock.ExpectQuery("FROM INFORMATION_SCHEMA.COLUMNS").
		WithArgs("blog", "users").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("id", "int", "int(11)", "", "NO").
			AddRow("name", "varchar", "varchar(64)", "", "NO"))
	mock.ExpectQuery("CONSTRAINT_NAME = 'PRIMARY'").
		WithArgs("blog", "users").
		WillReturnRows(sqlmock.NewRows([]string{"COLUMN_NAME"}).AddRow("id"))
	mock.ExpectQuery("REFERENCED_TABLE_NAME IS NOT NULL").
		WithArgs("blog", "users").
		WillReturnRows(sqlmock.NewRows(fkColumns))
	mock.ExpectQuery("FROM INFORMATION_SCHEMA.STATISTICS").
		WithArgs("blog", "users").
		WillReturnRows(sqlmock.NewRows(indexColumns).AddRow("PRIMARY", "id"))
}

func openBlogData(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	for _, stmt := range []string{
		`CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT NOT NULL)`,
		`CREATE TABLE posts (id INTEGER PRIMARY KEY, author_id INTEGER NOT NULL, title TEXT NOT NULL)`,
		`INSERT INTO users (id, name) VALUES (1, 'ada'), (2, 'grace')`,
		`INSERT INTO posts (id, author_id, title) VALUES (1, 1, 'hello'), (2, 1, 'world'), (3, 2, 'compilers')`,
	} {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
	return db
}

func buildBlog(t *testing.T, cfg BuildSchemaConfig) (*BuildSchemaResult, *sql.DB) {
	t.Helper()
	meta, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = meta.Close() })
	expectBlogIntrospection(mock)

	data := openBlogData(t)
	cfg.Queryer = meta
	cfg.Executor = dbexec.NewStandardExecutor(data)
	cfg.DatabaseName = "blog"
	result, err := BuildSchema(context.Background(), cfg)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
	return result, data
}

func serve(t *testing.T, h http.Handler, method, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, "/graphql", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestBuildSchema_RequiresCollaborators(t *testing.T) {
	_, err := BuildSchema(context.Background(), BuildSchemaConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queryer")

	meta, _, err := sqlmock.New()
	require.NoError(t, err)
	defer meta.Close()
	_, err = BuildSchema(context.Background(), BuildSchemaConfig{Queryer: meta})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "executor")
}

func TestBuildSchema_FiltersAndBinds(t *testing.T) {
	result, _ := buildBlog(t, BuildSchemaConfig{
		Filters:    schemafilter.Config{DenyTables: []string{"secrets"}},
		ListTables: []string{"posts"},
		Batching:   true,
	})

	_, hidden := result.DBSchema.Table("secrets")
	assert.False(t, hidden)
	assert.True(t, result.Bindings.Frozen())

	posts, ok := result.Bindings.Lookup("posts")
	require.True(t, ok)
	assert.False(t, posts.Connection)
	users, ok := result.Bindings.Lookup("users")
	require.True(t, ok)
	assert.True(t, users.Connection)

	query := result.GraphQLSchema.QueryType().Fields()
	assert.Contains(t, query, "users")
	assert.Contains(t, query, "user")
	assert.Contains(t, query, "posts")
	assert.NotContains(t, query, "secrets")
	assert.Equal(t, "[Post!]!", query["posts"].Type.String())
}

func TestBuildSchema_RejectsBadTypeOverride(t *testing.T) {
	meta, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer meta.Close()
	expectBlogIntrospection(mock)

	_, err = BuildSchema(context.Background(), BuildSchemaConfig{
		Queryer:      meta,
		Executor:     dbexec.NewStandardExecutor(meta),
		DatabaseName: "blog",
		TypeOverrides: introspection.TypeOverrides{
			UUIDColumns: map[string][]string{"users": {"id"}},
		},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to apply type overrides")
}

func TestExecutionHandler_ServesBatchedQuery(t *testing.T) {
	result, data := buildBlog(t, BuildSchemaConfig{Batching: true})
	h := newExecutionHandler(&result.GraphQLSchema, data, 100, false)

	rec := serve(t, h, http.MethodPost, `{"query":"{ users { nodes { name posts { totalCount nodes { title } } } } }"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")

	var payload struct {
		Data struct {
			Users struct {
				Nodes []struct {
					Name  string `json:"name"`
					Posts struct {
						TotalCount int `json:"totalCount"`
						Nodes      []struct {
							Title string `json:"title"`
						} `json:"nodes"`
					} `json:"posts"`
				} `json:"nodes"`
			} `json:"users"`
		} `json:"data"`
		Errors []json.RawMessage `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Empty(t, payload.Errors)
	require.Len(t, payload.Data.Users.Nodes, 2)
	assert.Equal(t, "ada", payload.Data.Users.Nodes[0].Name)
	assert.Equal(t, 2, payload.Data.Users.Nodes[0].Posts.TotalCount)
	assert.Equal(t, "compilers", payload.Data.Users.Nodes[1].Posts.Nodes[0].Title)
}

func TestExecutionHandler_GraphiQL(t *testing.T) {
	result, data := buildBlog(t, BuildSchemaConfig{})
	h := newExecutionHandler(&result.GraphQLSchema, data, 0, true)

	req := httptest.NewRequest(http.MethodGet, "/graphql", nil)
	req.Header.Set("Accept", "text/html")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "graphiql")
}

func TestExecutionHandler_RejectsOtherMethods(t *testing.T) {
	result, data := buildBlog(t, BuildSchemaConfig{})
	h := newExecutionHandler(&result.GraphQLSchema, data, 0, false)

	rec := serve(t, h, http.MethodDelete, "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
