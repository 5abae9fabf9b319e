// Package connection builds cursor-paginated fields over ordered row sets.
package connection

import (
	"sync"

	"github.com/graphql-go/graphql"

	"relgraph/internal/scalars"
)

// Types builds and caches the Connection/Edge object types of one schema.
type Types struct {
	mu          sync.Mutex
	pageInfo    *graphql.Object
	connections map[string]*graphql.Object
}

// NewTypes returns an empty type cache. Use one per schema.
func NewTypes() *Types {
	return &Types{connections: make(map[string]*graphql.Object)}
}

// PageInfo returns the shared PageInfo type.
func (t *Types) PageInfo() *graphql.Object {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pageInfoLocked()
}

func (t *Types) pageInfoLocked() *graphql.Object {
	if t.pageInfo == nil {
		t.pageInfo = graphql.NewObject(graphql.ObjectConfig{
			Name: "PageInfo",
			Fields: graphql.Fields{
				"hasNextPage":     &graphql.Field{Type: graphql.NewNonNull(graphql.Boolean)},
				"hasPreviousPage": &graphql.Field{Type: graphql.NewNonNull(graphql.Boolean)},
				"startCursor":     &graphql.Field{Type: graphql.String},
				"endCursor":       &graphql.Field{Type: graphql.String},
			},
		})
	}
	return t.pageInfo
}

// Connection returns the <Node>Connection type for node.
func (t *Types) Connection(node *graphql.Object) *graphql.Object {
	t.mu.Lock()
	defer t.mu.Unlock()
	name := node.Name() + "Connection"
	if conn, ok := t.connections[name]; ok {
		return conn
	}

	edge := graphql.NewObject(graphql.ObjectConfig{
		Name: node.Name() + "Edge",
		Fields: graphql.Fields{
			"cursor": &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
			"node":   &graphql.Field{Type: graphql.NewNonNull(node)},
		},
	})
	conn := graphql.NewObject(graphql.ObjectConfig{
		Name: name,
		Fields: graphql.Fields{
			"edges":      &graphql.Field{Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(edge)))},
			"nodes":      &graphql.Field{Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(node)))},
			"pageInfo":   &graphql.Field{Type: graphql.NewNonNull(t.pageInfoLocked())},
			"totalCount": &graphql.Field{Type: graphql.NewNonNull(graphql.Int)},
		},
	})
	t.connections[name] = conn
	return conn
}

// Arguments are the pagination arguments every connection field accepts.
func Arguments() graphql.FieldConfigArgument {
	return graphql.FieldConfigArgument{
		"first":  &graphql.ArgumentConfig{Type: scalars.NonNegativeInt(), Description: "Maximum edges from the start of the window"},
		"after":  &graphql.ArgumentConfig{Type: graphql.String, Description: "Return edges after this cursor"},
		"last":   &graphql.ArgumentConfig{Type: scalars.NonNegativeInt(), Description: "Maximum edges from the end of the window"},
		"before": &graphql.ArgumentConfig{Type: graphql.String, Description: "Return edges before this cursor"},
	}
}
