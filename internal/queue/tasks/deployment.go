package tasks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
	"gorm.io/datatypes"

	"github.com/datacloud-project/orchestrator/internal/models"
	"github.com/datacloud-project/orchestrator/internal/queue"
	"github.com/datacloud-project/orchestrator/internal/repository"
	appErr "github.com/datacloud-project/orchestrator/pkg/errors"
	"github.com/datacloud-project/orchestrator/pkg/logger"
)

// DeploymentTaskHandler consumes the deployment lifecycle tasks. It advances
// the deployment through the pipeline stages and records the terminal status;
// a failed stage marks the deployment failed instead of crashing the worker.
type DeploymentTaskHandler struct {
	deployRepo   repository.DeploymentRepository
	resourceRepo repository.ResourceRepository
}

func NewDeploymentTaskHandler(deployRepo repository.DeploymentRepository, resourceRepo repository.ResourceRepository) *DeploymentTaskHandler {
	return &DeploymentTaskHandler{deployRepo: deployRepo, resourceRepo: resourceRepo}
}

func (h *DeploymentTaskHandler) HandleCreate(ctx context.Context, t *asynq.Task) error {
	var msg queue.CreateDeploymentMessage
	if err := json.Unmarshal(t.Payload(), &msg); err != nil {
		logger.L().Error("invalid create task payload", zap.Error(err))
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	id, err := uuid.Parse(msg.DeploymentID)
	if err != nil {
		logger.L().Error("invalid deployment id in task", zap.Error(err))
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	logger.L().Info("handling deployment create",
		zap.String("deployment_id", id.String()),
		zap.String("msg_version", msg.MsgVersion))

	_ = h.deployRepo.UpdateTask(ctx, id, models.TaskTemplateValidation)
	doc, err := parseTosca(msg.Template)
	if err != nil {
		return h.fail(ctx, id, models.DeploymentCreationFailed, fmt.Sprintf("template validation failed: %v", err))
	}

	// Provider selection runs downstream; the stages are recorded here so
	// clients polling the deployment see progress.
	_ = h.deployRepo.UpdateTask(ctx, id, models.TaskProviderFiltering)
	_ = h.deployRepo.UpdateTask(ctx, id, models.TaskRanking)
	_ = h.deployRepo.UpdateTask(ctx, id, models.TaskInfrastructureCreation)

	resources := materializeResources(id, doc)
	if err := h.resourceRepo.CreateBatch(ctx, resources); err != nil {
		return h.fail(ctx, id, models.DeploymentCreationFailed, fmt.Sprintf("resource creation failed: %v", err))
	}
	_ = h.deployRepo.UpdateTask(ctx, id, models.TaskResourcesGenerated)

	if err := h.deployRepo.UpdateStatus(ctx, id, models.DeploymentCreationComplete, ""); err != nil {
		logger.L().Error("mark creation complete failed", zap.Error(err))
		return err
	}
	_ = h.deployRepo.UpdateTask(ctx, id, models.TaskNone)
	logger.L().Info("deployment created",
		zap.String("deployment_id", id.String()),
		zap.Int("resources", len(resources)))
	return nil
}

func (h *DeploymentTaskHandler) HandleDelete(ctx context.Context, t *asynq.Task) error {
	var msg queue.DeleteDeploymentMessage
	if err := json.Unmarshal(t.Payload(), &msg); err != nil {
		logger.L().Error("invalid delete task payload", zap.Error(err))
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	id, err := uuid.Parse(msg.DeploymentID)
	if err != nil {
		logger.L().Error("invalid deployment id in task", zap.Error(err))
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	logger.L().Info("handling deployment delete", zap.String("deployment_id", id.String()))

	if err := h.resourceRepo.UpdateStatusByDeployment(ctx, id, models.ResourceDeleted); err != nil {
		return h.fail(ctx, id, models.DeploymentDeletionFailed, fmt.Sprintf("resource teardown failed: %v", err))
	}
	if err := h.deployRepo.UpdateStatus(ctx, id, models.DeploymentDeletionComplete, ""); err != nil {
		if appErr.IsCode(err, appErr.CodeNotFound) {
			// Deployment was force-deleted while the task was queued.
			return nil
		}
		return err
	}
	return nil
}

func (h *DeploymentTaskHandler) fail(ctx context.Context, id uuid.UUID, status models.DeploymentStatus, reason string) error {
	logger.L().Error("deployment task failed",
		zap.String("deployment_id", id.String()),
		zap.String("reason", reason))
	if err := h.deployRepo.UpdateStatus(ctx, id, status, reason); err != nil {
		logger.L().Error("record failure status failed", zap.Error(err))
	}
	// Terminal failure is recorded on the deployment; retrying the task
	// would enqueue duplicate work.
	return fmt.Errorf("%s: %w", reason, asynq.SkipRetry)
}

// toscaDocument is the subset of a TOSCA template the worker needs.
type toscaDocument struct {
	ToscaDefinitionsVersion string `yaml:"tosca_definitions_version"`
	TopologyTemplate        struct {
		NodeTemplates map[string]toscaNode `yaml:"node_templates"`
	} `yaml:"topology_template"`
}

type toscaNode struct {
	Type         string           `yaml:"type"`
	Requirements []map[string]any `yaml:"requirements"`
}

func parseTosca(content string) (*toscaDocument, error) {
	var doc toscaDocument
	if err := yaml.Unmarshal([]byte(content), &doc); err != nil {
		return nil, err
	}
	if doc.ToscaDefinitionsVersion == "" {
		return nil, fmt.Errorf("missing tosca_definitions_version")
	}
	if len(doc.TopologyTemplate.NodeTemplates) == 0 {
		return nil, fmt.Errorf("topology_template has no node_templates")
	}
	return &doc, nil
}

// materializeResources builds one resource row per node template. RequiredBy
// on node B lists the ids of nodes whose requirements point at B.
func materializeResources(deploymentID uuid.UUID, doc *toscaDocument) []models.Resource {
	ids := make(map[string]uuid.UUID, len(doc.TopologyTemplate.NodeTemplates))
	for name := range doc.TopologyTemplate.NodeTemplates {
		ids[name] = uuid.New()
	}

	requiredBy := make(map[string][]uuid.UUID)
	for name, node := range doc.TopologyTemplate.NodeTemplates {
		for _, req := range node.Requirements {
			for _, raw := range req {
				if target := requirementTarget(raw); target != "" {
					if _, ok := ids[target]; ok {
						requiredBy[target] = append(requiredBy[target], ids[name])
					}
				}
			}
		}
	}

	resources := make([]models.Resource, 0, len(ids))
	for name, node := range doc.TopologyTemplate.NodeTemplates {
		resources = append(resources, models.Resource{
			ID:            ids[name],
			DeploymentID:  deploymentID,
			Status:        models.ResourceInitial,
			ToscaNodeName: name,
			ToscaNodeType: node.Type,
			Info:          datatypes.JSONMap{},
			RequiredBy:    requiredBy[name],
		})
	}
	return resources
}

// requirementTarget handles both requirement forms: a bare node name and a
// mapping with an explicit node key.
func requirementTarget(raw any) string {
	switch v := raw.(type) {
	case string:
		return v
	case map[string]any:
		if s, ok := v["node"].(string); ok {
			return s
		}
	}
	return ""
}
