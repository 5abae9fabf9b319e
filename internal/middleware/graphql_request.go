package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/parser"
	"github.com/graphql-go/graphql/language/source"
)

// operationInfo summarizes the operation a request selects.
type operationInfo struct {
	Name       string
	Type       string
	FieldCount int
	Depth      int
	Variables  int
}

// readGraphQLRequest returns the query and operation name of r. POST bodies
// are restored so the GraphQL handler can read them again.
func readGraphQLRequest(r *http.Request) (string, string) {
	if r.Method == http.MethodGet {
		return r.URL.Query().Get("query"), r.URL.Query().Get("operationName")
	}
	if r.Method != http.MethodPost || r.Body == nil {
		return "", ""
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return "", ""
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	if strings.Contains(r.Header.Get("Content-Type"), "application/graphql") {
		return string(body), ""
	}

	var payload struct {
		Query         string `json:"query"`
		OperationName string `json:"operationName"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", ""
	}
	return payload.Query, payload.OperationName
}

// analyzeOperation parses query and measures the selected operation. It
// returns nil without error for an empty query or an unknown operation name.
func analyzeOperation(query, operationName string) (*operationInfo, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}

	doc, err := parser.Parse(parser.ParseParams{
		Source: source.NewSource(&source.Source{
			Body: []byte(query),
			Name: "GraphQL request",
		}),
	})
	if err != nil {
		return nil, err
	}

	fragments := make(map[string]*ast.FragmentDefinition)
	var operations []*ast.OperationDefinition
	for _, def := range doc.Definitions {
		switch d := def.(type) {
		case *ast.FragmentDefinition:
			fragments[d.Name.Value] = d
		case *ast.OperationDefinition:
			operations = append(operations, d)
		}
	}

	op := selectOperation(operations, operationName)
	if op == nil {
		return nil, nil
	}

	info := &operationInfo{
		Type:      string(op.Operation),
		Variables: len(op.VariableDefinitions),
	}
	if op.Name != nil {
		info.Name = op.Name.Value
	}
	if op.SelectionSet != nil {
		info.FieldCount, info.Depth = measureSelection(op.SelectionSet, fragments, 1, map[string]bool{})
	}
	return info, nil
}

func selectOperation(operations []*ast.OperationDefinition, name string) *ast.OperationDefinition {
	if name == "" {
		if len(operations) > 0 {
			return operations[0]
		}
		return nil
	}
	for _, op := range operations {
		if op.Name != nil && op.Name.Value == name {
			return op
		}
	}
	return nil
}

// measureSelection counts fields and the deepest field level. Each fragment
// is expanded at most once, which also stops cyclic spreads.
func measureSelection(set *ast.SelectionSet, fragments map[string]*ast.FragmentDefinition, depth int, expanded map[string]bool) (int, int) {
	if set == nil {
		return 0, depth - 1
	}
	fields, maxDepth := 0, depth
	visit := func(n, d int) {
		fields += n
		if d > maxDepth {
			maxDepth = d
		}
	}

	for _, selection := range set.Selections {
		switch sel := selection.(type) {
		case *ast.Field:
			fields++
			if sel.SelectionSet != nil {
				visit(measureSelection(sel.SelectionSet, fragments, depth+1, expanded))
			}
		case *ast.InlineFragment:
			visit(measureSelection(sel.SelectionSet, fragments, depth, expanded))
		case *ast.FragmentSpread:
			name := sel.Name.Value
			if expanded[name] {
				continue
			}
			expanded[name] = true
			if frag, ok := fragments[name]; ok {
				visit(measureSelection(frag.SelectionSet, fragments, depth, expanded))
			}
		}
	}
	return fields, maxDepth
}
