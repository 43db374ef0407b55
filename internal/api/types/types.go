package types

import (
	"encoding/json"
	"net/http"

	"github.com/datacloud-project/orchestrator/pkg/errors"
	"github.com/datacloud-project/orchestrator/pkg/pagination"
)

// ErrorMessage is the error envelope returned on every failure. The status
// field repeats the HTTP status so clients parsing only the body still see it.
type ErrorMessage struct {
	Status int    `json:"status"`
	Detail string `json:"detail"`
}

// PaginatedResponse is the envelope for every list endpoint.
type PaginatedResponse[T any] struct {
	Data  []T                   `json:"data"`
	Page  pagination.Page       `json:"page"`
	Links pagination.Navigation `json:"links"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// WriteError maps the error through the application taxonomy. Anything
// without a code becomes an opaque 500 so internals never leak to clients.
func WriteError(w http.ResponseWriter, err error) {
	status := errors.HTTPStatus(err)
	detail := errors.Message(err)
	if status == http.StatusInternalServerError && !errors.IsCode(err, errors.CodeAuthzBackend) {
		detail = "internal server error"
	}
	WriteJSON(w, status, ErrorMessage{Status: status, Detail: detail})
}
