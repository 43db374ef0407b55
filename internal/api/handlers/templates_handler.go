package handlers

import (
	"io"
	"net/http"

	"github.com/datacloud-project/orchestrator/internal/api/middleware"
	"github.com/datacloud-project/orchestrator/internal/api/types"
	"github.com/datacloud-project/orchestrator/internal/repository"
	"github.com/datacloud-project/orchestrator/internal/services"
	appErr "github.com/datacloud-project/orchestrator/pkg/errors"
)

const maxTemplateBytes = 1 << 20

type TemplatesHandler struct {
	templates services.TemplateService
}

func NewTemplatesHandler(templates services.TemplateService) *TemplatesHandler {
	return &TemplatesHandler{templates: templates}
}

func (h *TemplatesHandler) List(w http.ResponseWriter, r *http.Request) {
	p, err := parseListParams(r)
	if err != nil {
		types.WriteError(w, err)
		return
	}
	tf, err := parseTimeFilters(r)
	if err != nil {
		types.WriteError(w, err)
		return
	}
	q := repository.TemplateQuery{
		Name:                    queryString(r, "name"),
		Version:                 queryString(r, "version"),
		TargetProviderType:      queryString(r, "target_provider_type"),
		ToscaDefinitionsVersion: queryString(r, "tosca_definitions_version"),
		Content:                 queryString(r, "content"),
		HashContent:             queryString(r, "hash_content"),
		CreatedBefore:           tf.CreatedBefore,
		CreatedAfter:            tf.CreatedAfter,
		UpdatedBefore:           tf.UpdatedBefore,
		UpdatedAfter:            tf.UpdatedAfter,
	}
	items, total, err := h.templates.List(r.Context(), p, q)
	if err != nil {
		types.WriteError(w, err)
		return
	}
	writePaginated(w, r, items, total, p)
}

// Create accepts the raw TOSCA document as the request body. A duplicate of
// an existing document is a conflict keyed on the content hash.
func (h *TemplatesHandler) Create(w http.ResponseWriter, r *http.Request) {
	caller, err := middleware.MustCaller(r.Context())
	if err != nil {
		types.WriteError(w, err)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxTemplateBytes+1))
	if err != nil {
		types.WriteError(w, appErr.Wrap(err, appErr.CodeValidation, "unreadable request body"))
		return
	}
	if len(body) > maxTemplateBytes {
		types.WriteError(w, appErr.New(appErr.CodeValidation, "template exceeds the size limit"))
		return
	}
	tpl, err := h.templates.Create(r.Context(), caller, string(body))
	if err != nil {
		types.WriteError(w, err)
		return
	}
	types.WriteJSON(w, http.StatusCreated, tpl)
}

func (h *TemplatesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		types.WriteError(w, err)
		return
	}
	tpl, err := h.templates.Get(r.Context(), id)
	if err != nil {
		types.WriteError(w, err)
		return
	}
	types.WriteJSON(w, http.StatusOK, tpl)
}

func (h *TemplatesHandler) Update(w http.ResponseWriter, r *http.Request) {
	caller, err := middleware.MustCaller(r.Context())
	if err != nil {
		types.WriteError(w, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		types.WriteError(w, err)
		return
	}
	var req struct {
		Name               *string `json:"name"`
		Version            *string `json:"version"`
		TargetProviderType *string `json:"target_provider_type"`
	}
	if err := decodeJSON(r, &req); err != nil {
		types.WriteError(w, err)
		return
	}
	tpl, err := h.templates.Update(r.Context(), caller, id, &services.UpdateTemplateInput{
		Name:               req.Name,
		Version:            req.Version,
		TargetProviderType: req.TargetProviderType,
	})
	if err != nil {
		types.WriteError(w, err)
		return
	}
	types.WriteJSON(w, http.StatusOK, tpl)
}

func (h *TemplatesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		types.WriteError(w, err)
		return
	}
	if err := h.templates.Delete(r.Context(), id); err != nil {
		types.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
