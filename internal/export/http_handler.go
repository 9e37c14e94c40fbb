package export

import (
	"bytes"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
)

const contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type Handler struct {
	service *Service
}

// NewHTTPHandler serves GET /export/{entity}?filters=<json>.
func NewHTTPHandler(service *Service) http.Handler {
	return &Handler{service: service}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	entity := r.PathValue("entity")
	if entity == "" {
		entity = strings.Trim(strings.TrimPrefix(r.URL.Path, "/export/"), "/")
	}
	if entity == "" {
		http.Error(w, "entity is required", http.StatusBadRequest)
		return
	}

	var buf bytes.Buffer
	result, err := h.service.Export(r.Context(), entity, r.URL.Query().Get("filters"), &buf)
	if err != nil {
		var filterErr *FilterError
		switch {
		case errors.Is(err, ErrUnknownEntity):
			http.Error(w, err.Error(), http.StatusNotFound)
		case errors.As(err, &filterErr):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			log.Printf("[EXPORT] %s failed: %v", entity, err)
			http.Error(w, "export failed", http.StatusInternalServerError)
		}
		return
	}

	log.Printf("[EXPORT] %s: %d rows", result.Entity.QualifiedName(), result.Rows)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", result.FileName))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
