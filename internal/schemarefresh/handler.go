package schemarefresh

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/handler"

	"relgraph/internal/logging"
	"relgraph/internal/resolver"
)

// executionHandler serves one schema snapshot. Queries run through
// resolver.Execute so every request gets its own batch loader and warnings
// reach the response extensions; the GraphiQL page is rendered by
// graphql-go/handler.
type executionHandler struct {
	schema     *graphql.Schema
	db         *sql.DB
	maxParents int
	ui         http.Handler
}

func newExecutionHandler(schema *graphql.Schema, db *sql.DB, maxParents int, graphiQL bool) *executionHandler {
	h := &executionHandler{
		schema:     schema,
		db:         db,
		maxParents: maxParents,
	}
	if graphiQL {
		h.ui = handler.New(&handler.Config{
			Schema:   schema,
			Pretty:   true,
			GraphiQL: true,
		})
	}
	return h
}

func (h *executionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.ui != nil && r.Method == http.MethodGet && wantsHTML(r) {
		h.ui.ServeHTTP(w, r)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	opts := handler.NewRequestOptions(r)
	result := resolver.Execute(r.Context(), *h.schema, opts.Query, opts.Variables, resolver.ExecutionContext{
		OperationName: opts.OperationName,
		DB:            h.db,
		MaxParents:    h.maxParents,
	})

	body, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to encode GraphQL response", "error", err.Error())
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func wantsHTML(r *http.Request) bool {
	if _, raw := r.URL.Query()["raw"]; raw {
		return false
	}
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "text/html") && !strings.Contains(accept, "application/json")
}
