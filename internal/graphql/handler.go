package graphql

import (
	"encoding/json"
	"log"
	"net/http"

	gql "github.com/99designs/gqlgen/graphql"
	"github.com/vektah/gqlparser/v2/gqlerror"
)

// Handler serves GraphQL over HTTP: POST with a JSON body, or GET with
// query, operationName and variables parameters.
type Handler struct {
	exec *Executor
}

func NewHandler(exec *Executor) *Handler {
	return &Handler{exec: exec}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req Request
	switch r.Method {
	case http.MethodPost:
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeResponse(w, http.StatusBadRequest, &gql.Response{Errors: gqlerror.List{gqlerror.Errorf("invalid request body: %v", err)}})
			return
		}
	case http.MethodGet:
		q := r.URL.Query()
		req.Query = q.Get("query")
		req.OperationName = q.Get("operationName")
		if raw := q.Get("variables"); raw != "" {
			if err := json.Unmarshal([]byte(raw), &req.Variables); err != nil {
				writeResponse(w, http.StatusBadRequest, &gql.Response{Errors: gqlerror.List{gqlerror.Errorf("invalid variables: %v", err)}})
				return
			}
		}
	default:
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if req.Query == "" {
		writeResponse(w, http.StatusBadRequest, &gql.Response{Errors: gqlerror.List{gqlerror.Errorf("no query provided")}})
		return
	}

	writeResponse(w, http.StatusOK, h.exec.Execute(r.Context(), req))
}

func writeResponse(w http.ResponseWriter, status int, resp *gql.Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Printf("[GRAPHQL] failed to write response: %v", err)
	}
}
