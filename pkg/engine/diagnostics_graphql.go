package engine

import (
	"encoding/json"
	"net/http"

	"github.com/graphql-go/graphql"
)

// DiagnosticsSchema builds a tiny read-only GraphQL schema over an
// Engine's buffer pool and hash index stats, grounded the same way
// pkg/graphql/schema.go builds its Document schema over the database —
// one query field per diagnostic, no mutations, since nothing here is
// meant to be written through GraphQL.
func DiagnosticsSchema(eng *Engine) (graphql.Schema, error) {
	bufferPoolType := graphql.NewObject(graphql.ObjectConfig{
		Name:        "BufferPoolStats",
		Description: "Point-in-time counters for a buffer pool",
		Fields: graphql.Fields{
			"capacity":  &graphql.Field{Type: graphql.Int},
			"size":      &graphql.Field{Type: graphql.Int},
			"hits":      &graphql.Field{Type: graphql.Int},
			"misses":    &graphql.Field{Type: graphql.Int},
			"evictions": &graphql.Field{Type: graphql.Int},
		},
	})

	hashIndexType := graphql.NewObject(graphql.ObjectConfig{
		Name:        "HashIndexStats",
		Description: "Extendible hash index diagnostics",
		Fields: graphql.Fields{
			"globalDepth": &graphql.Field{Type: graphql.Int},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"bufferPool": &graphql.Field{
				Type: bufferPoolType,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					stats := eng.DataPool().Stats()
					return map[string]interface{}{
						"capacity":  stats["capacity"],
						"size":      stats["size"],
						"hits":      stats["hits"],
						"misses":    stats["misses"],
						"evictions": stats["evictions"],
					}, nil
				},
			},
			"hashIndex": &graphql.Field{
				Type: hashIndexType,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					depth, err := eng.HashIndex().GlobalDepth()
					if err != nil {
						return nil, err
					}
					return map[string]interface{}{"globalDepth": depth}, nil
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{Query: queryType})
}

// GraphQLHandler is an HTTP handler serving DiagnosticsSchema, the same
// request/response shape as pkg/graphql/handler.go's Handler.
type GraphQLHandler struct {
	schema graphql.Schema
}

// NewGraphQLHandler builds a handler bound to eng's diagnostics schema.
func NewGraphQLHandler(eng *Engine) (*GraphQLHandler, error) {
	schema, err := DiagnosticsSchema(eng)
	if err != nil {
		return nil, err
	}
	return &GraphQLHandler{schema: schema}, nil
}

type graphQLRequest struct {
	Query         string                 `json:"query"`
	OperationName string                 `json:"operationName"`
	Variables     map[string]interface{} `json:"variables"`
}

func (h *GraphQLHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "GraphQL only accepts POST requests", http.StatusMethodNotAllowed)
		return
	}

	var req graphQLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	result := graphql.Do(graphql.Params{
		Schema:         h.schema,
		RequestString:  req.Query,
		VariableValues: req.Variables,
		OperationName:  req.OperationName,
		Context:        r.Context(),
	})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}
