package connection

import (
	"context"
	"errors"
	"testing"

	"github.com/graphql-go/graphql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func postSchema(t *testing.T, source Source) graphql.Schema {
	t.Helper()
	types := NewTypes()
	post := graphql.NewObject(graphql.ObjectConfig{
		Name: "Post",
		Fields: graphql.Fields{
			"id": &graphql.Field{Type: graphql.NewNonNull(graphql.ID)},
		},
	})
	schema, err := graphql.NewSchema(graphql.SchemaConfig{
		Query: graphql.NewObject(graphql.ObjectConfig{
			Name: "Query",
			Fields: graphql.Fields{
				"posts": DefaultFactory(types, FieldSpec{Node: post, Keyer: postKeyer, Source: source}),
			},
		}),
	})
	require.NoError(t, err)
	return schema
}

func staticSource(rows []Row) Source {
	return func(graphql.ResolveParams) (func() ([]Row, error), error) {
		return func() ([]Row, error) { return rows, nil }, nil
	}
}

func TestDefaultFactory_Executes(t *testing.T) {
	schema := postSchema(t, staticSource(fiveRows()))

	result := graphql.Do(graphql.Params{
		Schema:        schema,
		Context:       context.Background(),
		RequestString: `{ posts(first: 2) { totalCount edges { cursor node { id } } pageInfo { hasNextPage hasPreviousPage } } }`,
	})
	require.Empty(t, result.Errors)

	posts := result.Data.(map[string]interface{})["posts"].(map[string]interface{})
	assert.Equal(t, 5, posts["totalCount"])
	edges := posts["edges"].([]interface{})
	require.Len(t, edges, 2)
	assert.Equal(t, "1", edges[0].(map[string]interface{})["node"].(map[string]interface{})["id"])
	pageInfo := posts["pageInfo"].(map[string]interface{})
	assert.Equal(t, true, pageInfo["hasNextPage"])
	assert.Equal(t, false, pageInfo["hasPreviousPage"])
}

func TestDefaultFactory_ArgumentErrorsAreFieldErrors(t *testing.T) {
	schema := postSchema(t, staticSource(fiveRows()))

	result := graphql.Do(graphql.Params{
		Schema:        schema,
		RequestString: `{ posts(first: 1, last: 1) { totalCount } }`,
	})
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Message, "cannot combine")

	result = graphql.Do(graphql.Params{
		Schema:        schema,
		RequestString: `{ posts(after: "nope") { totalCount } }`,
	})
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Message, "invalid cursor")
}

func TestDefaultFactory_NegativeCountRejected(t *testing.T) {
	schema := postSchema(t, staticSource(fiveRows()))
	result := graphql.Do(graphql.Params{
		Schema:        schema,
		RequestString: `{ posts(first: -1) { totalCount } }`,
	})
	require.NotEmpty(t, result.Errors)
}

func TestDefaultFactory_SourceError(t *testing.T) {
	schema := postSchema(t, func(graphql.ResolveParams) (func() ([]Row, error), error) {
		return func() ([]Row, error) { return nil, errors.New("fetch failed") }, nil
	})
	result := graphql.Do(graphql.Params{
		Schema:        schema,
		RequestString: `{ posts { totalCount } }`,
	})
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Message, "fetch failed")
}

func TestTypes_Cached(t *testing.T) {
	types := NewTypes()
	node := graphql.NewObject(graphql.ObjectConfig{
		Name:   "Tag",
		Fields: graphql.Fields{"id": &graphql.Field{Type: graphql.ID}},
	})

	conn := types.Connection(node)
	assert.Same(t, conn, types.Connection(node))
	assert.Equal(t, "TagConnection", conn.Name())
	assert.Same(t, types.PageInfo(), types.PageInfo())
	assert.Contains(t, conn.Fields(), "totalCount")
}
