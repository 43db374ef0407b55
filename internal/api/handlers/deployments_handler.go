package handlers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/datacloud-project/orchestrator/internal/api/middleware"
	"github.com/datacloud-project/orchestrator/internal/api/types"
	"github.com/datacloud-project/orchestrator/internal/models"
	"github.com/datacloud-project/orchestrator/internal/repository"
	"github.com/datacloud-project/orchestrator/internal/services"
	appErr "github.com/datacloud-project/orchestrator/pkg/errors"
)

type DeploymentsHandler struct {
	deployments services.DeploymentService
	resources   repository.ResourceRepository
}

func NewDeploymentsHandler(deployments services.DeploymentService, resources repository.ResourceRepository) *DeploymentsHandler {
	return &DeploymentsHandler{deployments: deployments, resources: resources}
}

func (h *DeploymentsHandler) List(w http.ResponseWriter, r *http.Request) {
	p, err := parseListParams(r)
	if err != nil {
		types.WriteError(w, err)
		return
	}
	templateID, err := queryUUID(r, "template_id")
	if err != nil {
		types.WriteError(w, err)
		return
	}
	keepLast, err := queryBool(r, "keep_last_attempt")
	if err != nil {
		types.WriteError(w, err)
		return
	}
	tf, err := parseTimeFilters(r)
	if err != nil {
		types.WriteError(w, err)
		return
	}
	q := repository.DeploymentQuery{
		TemplateID:      templateID,
		Status:          queryString(r, "status"),
		Task:            queryString(r, "task"),
		UserGroup:       queryString(r, "user_group"),
		UserGroupIssuer: queryString(r, "user_group_issuer"),
		TargetProvider:  queryString(r, "target_provider"),
		TargetRegion:    queryString(r, "target_region"),
		KeepLastAttempt: keepLast,
		CreatedBefore:   tf.CreatedBefore,
		CreatedAfter:    tf.CreatedAfter,
		UpdatedBefore:   tf.UpdatedBefore,
		UpdatedAfter:    tf.UpdatedAfter,
	}
	items, total, err := h.deployments.List(r.Context(), p, q)
	if err != nil {
		types.WriteError(w, err)
		return
	}
	writePaginated(w, r, items, total, p)
}

func (h *DeploymentsHandler) Create(w http.ResponseWriter, r *http.Request) {
	caller, err := middleware.MustCaller(r.Context())
	if err != nil {
		types.WriteError(w, err)
		return
	}
	var req struct {
		TemplateID            uuid.UUID      `json:"template_id"`
		Inputs                map[string]any `json:"inputs"`
		UserGroup             string         `json:"user_group"`
		UserGroupIssuer       string         `json:"user_group_issuer"`
		PerProviderMaxRetries *int           `json:"per_provider_max_retries"`
		MaxProviders          *int           `json:"max_providers"`
		TotalTimeout          *int           `json:"timeout"`
		PerProviderTimeout    *int           `json:"per_provider_timeout"`
		KeepLastAttempt       bool           `json:"keep_last_attempt"`
		TargetProvider        *string        `json:"target_provider"`
		TargetRegion          *string        `json:"target_region"`
	}
	if err := decodeJSON(r, &req); err != nil {
		types.WriteError(w, err)
		return
	}
	if req.TemplateID == uuid.Nil {
		types.WriteError(w, appErr.New(appErr.CodeValidation, "template_id is required"))
		return
	}
	dep, err := h.deployments.Create(r.Context(), caller, rawToken(r), &services.CreateDeploymentInput{
		TemplateID:            req.TemplateID,
		Inputs:                req.Inputs,
		UserGroup:             req.UserGroup,
		UserGroupIssuer:       req.UserGroupIssuer,
		PerProviderMaxRetries: req.PerProviderMaxRetries,
		MaxProviders:          req.MaxProviders,
		TotalTimeout:          req.TotalTimeout,
		PerProviderTimeout:    req.PerProviderTimeout,
		KeepLastAttempt:       req.KeepLastAttempt,
		TargetProvider:        req.TargetProvider,
		TargetRegion:          req.TargetRegion,
	})
	if err != nil {
		types.WriteError(w, err)
		return
	}
	types.WriteJSON(w, http.StatusCreated, dep)
}

func (h *DeploymentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		types.WriteError(w, err)
		return
	}
	dep, err := h.deployments.Get(r.Context(), id)
	if err != nil {
		types.WriteError(w, err)
		return
	}
	types.WriteJSON(w, http.StatusOK, dep)
}

func (h *DeploymentsHandler) Update(w http.ResponseWriter, r *http.Request) {
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
		UserGroup       *string `json:"user_group"`
		UserGroupIssuer *string `json:"user_group_issuer"`
		MaxProviders    *int    `json:"max_providers"`
		KeepLastAttempt *bool   `json:"keep_last_attempt"`
		TargetProvider  *string `json:"target_provider"`
		TargetRegion    *string `json:"target_region"`
	}
	if err := decodeJSON(r, &req); err != nil {
		types.WriteError(w, err)
		return
	}
	dep, err := h.deployments.Update(r.Context(), caller, id, &services.UpdateDeploymentInput{
		UserGroup:       req.UserGroup,
		UserGroupIssuer: req.UserGroupIssuer,
		MaxProviders:    req.MaxProviders,
		KeepLastAttempt: req.KeepLastAttempt,
		TargetProvider:  req.TargetProvider,
		TargetRegion:    req.TargetRegion,
	})
	if err != nil {
		types.WriteError(w, err)
		return
	}
	types.WriteJSON(w, http.StatusOK, dep)
}

// Delete is bimodal on the force query parameter: force removes the row now,
// the default hands teardown to the provisioning pipeline.
func (h *DeploymentsHandler) Delete(w http.ResponseWriter, r *http.Request) {
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
	force, err := queryBool(r, "force")
	if err != nil {
		types.WriteError(w, err)
		return
	}
	if err := h.deployments.Delete(r.Context(), caller, id, force != nil && *force); err != nil {
		types.WriteError(w, err)
		return
	}
	if force != nil && *force {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// resourceResponse adds the symbolic status name to the stored row.
type resourceResponse struct {
	models.Resource
	StatusName string `json:"status_name"`
}

func (h *DeploymentsHandler) ListResources(w http.ResponseWriter, r *http.Request) {
	deploymentID, err := pathID(r, "id")
	if err != nil {
		types.WriteError(w, err)
		return
	}
	if _, err := h.deployments.Get(r.Context(), deploymentID); err != nil {
		types.WriteError(w, err)
		return
	}
	p, err := parseListParams(r)
	if err != nil {
		types.WriteError(w, err)
		return
	}
	status, err := queryInt(r, "status")
	if err != nil {
		types.WriteError(w, err)
		return
	}
	vmIndexLTE, err := queryInt(r, "im_vm_index_lte")
	if err != nil {
		types.WriteError(w, err)
		return
	}
	vmIndexGTE, err := queryInt(r, "im_vm_index_gte")
	if err != nil {
		types.WriteError(w, err)
		return
	}
	tf, err := parseTimeFilters(r)
	if err != nil {
		types.WriteError(w, err)
		return
	}
	q := repository.ResourceQuery{
		Status:        status,
		ToscaNodeName: queryString(r, "tosca_node_name"),
		ToscaNodeType: queryString(r, "tosca_node_type"),
		IMVMIndexLTE:  vmIndexLTE,
		IMVMIndexGTE:  vmIndexGTE,
		CreatedBefore: tf.CreatedBefore,
		CreatedAfter:  tf.CreatedAfter,
		UpdatedBefore: tf.UpdatedBefore,
		UpdatedAfter:  tf.UpdatedAfter,
	}
	items, total, err := h.resources.ListByDeployment(r.Context(), deploymentID, p, q)
	if err != nil {
		types.WriteError(w, err)
		return
	}
	out := make([]resourceResponse, len(items))
	for i, res := range items {
		out[i] = resourceResponse{Resource: res, StatusName: res.Status.String()}
	}
	writePaginated(w, r, out, total, p)
}

func (h *DeploymentsHandler) GetResource(w http.ResponseWriter, r *http.Request) {
	deploymentID, err := pathID(r, "id")
	if err != nil {
		types.WriteError(w, err)
		return
	}
	resourceID, err := pathID(r, "resourceID")
	if err != nil {
		types.WriteError(w, err)
		return
	}
	res, err := h.resources.GetByID(r.Context(), deploymentID, resourceID)
	if err != nil {
		types.WriteError(w, err)
		return
	}
	if res == nil {
		types.WriteError(w, appErr.New(appErr.CodeNotFound, "resource not found"))
		return
	}
	types.WriteJSON(w, http.StatusOK, resourceResponse{Resource: *res, StatusName: res.Status.String()})
}

// DeleteResource is administrative. force removes the row; the default marks
// the resource DELETED and leaves the row for audit.
func (h *DeploymentsHandler) DeleteResource(w http.ResponseWriter, r *http.Request) {
	deploymentID, err := pathID(r, "id")
	if err != nil {
		types.WriteError(w, err)
		return
	}
	resourceID, err := pathID(r, "resourceID")
	if err != nil {
		types.WriteError(w, err)
		return
	}
	force, err := queryBool(r, "force")
	if err != nil {
		types.WriteError(w, err)
		return
	}
	if force != nil && *force {
		n, err := h.resources.Delete(r.Context(), deploymentID, resourceID)
		if err != nil {
			types.WriteError(w, err)
			return
		}
		if n == 0 {
			types.WriteError(w, appErr.New(appErr.CodeNotFound, "resource not found"))
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}
	res, err := h.resources.GetByID(r.Context(), deploymentID, resourceID)
	if err != nil {
		types.WriteError(w, err)
		return
	}
	if res == nil {
		types.WriteError(w, appErr.New(appErr.CodeNotFound, "resource not found"))
		return
	}
	if err := h.resources.UpdateStatus(r.Context(), resourceID, models.ResourceDeleted); err != nil {
		types.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
