package services

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/datacloud-project/orchestrator/internal/models"
	"github.com/datacloud-project/orchestrator/internal/queue"
	"github.com/datacloud-project/orchestrator/internal/repository"
	"github.com/datacloud-project/orchestrator/pkg/config"
	appErr "github.com/datacloud-project/orchestrator/pkg/errors"
	"github.com/datacloud-project/orchestrator/pkg/logger"
)

type DeploymentService interface {
	Create(ctx context.Context, caller *models.User, rawToken string, input *CreateDeploymentInput) (*models.Deployment, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Deployment, error)
	List(ctx context.Context, p repository.ListParams, q repository.DeploymentQuery) ([]models.Deployment, int64, error)
	Update(ctx context.Context, caller *models.User, id uuid.UUID, input *UpdateDeploymentInput) (*models.Deployment, error)
	Delete(ctx context.Context, caller *models.User, id uuid.UUID, force bool) error
}

type CreateDeploymentInput struct {
	TemplateID            uuid.UUID
	Inputs                map[string]any
	UserGroup             string
	UserGroupIssuer       string
	PerProviderMaxRetries *int
	MaxProviders          *int
	TotalTimeout          *int
	PerProviderTimeout    *int
	KeepLastAttempt       bool
	TargetProvider        *string
	TargetRegion          *string
}

type UpdateDeploymentInput struct {
	UserGroup       *string
	UserGroupIssuer *string
	MaxProviders    *int
	KeepLastAttempt *bool
	TargetProvider  *string
	TargetRegion    *string
}

const (
	defaultPerProviderMaxRetries = 3
	maxPerProviderMaxRetries     = 10
	defaultTotalTimeout          = 14400
	defaultPerProviderTimeout    = 1440
)

type deploymentService struct {
	cfg          *config.Config
	repo         repository.DeploymentRepository
	templateRepo repository.TemplateRepository
	resourceRepo repository.ResourceRepository
	enqueuer     queue.Enqueuer
}

func NewDeploymentService(
	cfg *config.Config,
	repo repository.DeploymentRepository,
	templateRepo repository.TemplateRepository,
	resourceRepo repository.ResourceRepository,
	enqueuer queue.Enqueuer,
) DeploymentService {
	return &deploymentService{
		cfg:          cfg,
		repo:         repo,
		templateRepo: templateRepo,
		resourceRepo: resourceRepo,
		enqueuer:     enqueuer,
	}
}

// Create persists the deployment in CREATION_IN_PROGRESS and hands the work
// to the provisioning pipeline. The row is written before the enqueue so a
// queue outage leaves a visible failed deployment instead of losing the
// request silently.
func (s *deploymentService) Create(ctx context.Context, caller *models.User, rawToken string, input *CreateDeploymentInput) (*models.Deployment, error) {
	tpl, err := s.templateRepo.GetByID(ctx, input.TemplateID)
	if err != nil {
		return nil, err
	}
	if tpl == nil {
		return nil, appErr.New(appErr.CodeNotFound, "template not found")
	}
	if err := validateCreateInput(input); err != nil {
		return nil, err
	}

	dep := &models.Deployment{
		TemplateID:            tpl.ID,
		Inputs:                datatypes.JSONMap(input.Inputs),
		UserGroup:             input.UserGroup,
		UserGroupIssuer:       input.UserGroupIssuer,
		PerProviderMaxRetries: valueOr(input.PerProviderMaxRetries, defaultPerProviderMaxRetries),
		MaxProviders:          input.MaxProviders,
		TotalTimeout:          valueOr(input.TotalTimeout, defaultTotalTimeout),
		PerProviderTimeout:    valueOr(input.PerProviderTimeout, defaultPerProviderTimeout),
		KeepLastAttempt:       input.KeepLastAttempt,
		TargetProvider:        input.TargetProvider,
		TargetRegion:          input.TargetRegion,
		Status:                models.DeploymentCreationInProgress,
		Task:                  models.TaskNone,
		CreatedByID:           caller.ID,
		UpdatedByID:           caller.ID,
	}
	if err := s.repo.Create(ctx, dep); err != nil {
		return nil, err
	}
	if err := s.repo.AddOwner(ctx, dep, caller); err != nil {
		return nil, err
	}

	msg := &queue.CreateDeploymentMessage{
		DeploymentID:          dep.ID.String(),
		Template:              tpl.Content,
		TemplateInputs:        input.Inputs,
		UserGroup:             dep.UserGroup,
		UserGroupIssuer:       dep.UserGroupIssuer,
		PerProviderMaxRetries: dep.PerProviderMaxRetries,
		MaxProviders:          dep.MaxProviders,
		TotalTimeout:          dep.TotalTimeout,
		PerProviderTimeout:    dep.PerProviderTimeout,
		KeepLastAttempt:       dep.KeepLastAttempt,
		TargetProvider:        deref(dep.TargetProvider),
		TargetRegion:          deref(dep.TargetRegion),
		OwnersSSHKeys:         ownerKeys(caller),
		AccessToken:           rawToken,
		RefreshToken:          caller.RefreshToken,
	}
	if err := s.enqueuer.EnqueueDeploymentCreate(ctx, msg); err != nil {
		logger.L().Error("deployment handoff failed",
			zap.String("deployment_id", dep.ID.String()), zap.Error(err))
		_ = s.repo.UpdateStatus(ctx, dep.ID, models.DeploymentCreationFailed, "handoff to provisioning pipeline failed")
		return nil, err
	}
	return dep, nil
}

func (s *deploymentService) Get(ctx context.Context, id uuid.UUID) (*models.Deployment, error) {
	dep, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if dep == nil {
		return nil, appErr.New(appErr.CodeNotFound, "deployment not found")
	}
	return dep, nil
}

func (s *deploymentService) List(ctx context.Context, p repository.ListParams, q repository.DeploymentQuery) ([]models.Deployment, int64, error) {
	return s.repo.List(ctx, p, q)
}

func (s *deploymentService) Update(ctx context.Context, caller *models.User, id uuid.UUID, input *UpdateDeploymentInput) (*models.Deployment, error) {
	dep, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	changes := map[string]any{"updated_by_id": caller.ID}
	if input.UserGroup != nil {
		changes["user_group"] = *input.UserGroup
	}
	if input.UserGroupIssuer != nil {
		changes["user_group_issuer"] = *input.UserGroupIssuer
	}
	if input.MaxProviders != nil {
		changes["max_providers"] = *input.MaxProviders
	}
	if input.KeepLastAttempt != nil {
		changes["keep_last_attempt"] = *input.KeepLastAttempt
	}
	if input.TargetProvider != nil {
		changes["target_provider"] = *input.TargetProvider
	}
	if input.TargetRegion != nil {
		changes["target_region"] = *input.TargetRegion
	}
	if err := s.repo.Update(ctx, dep, changes); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// Delete is bimodal. force removes the row immediately and is refused while
// resources still reference it; the default marks the deployment
// DELETION_IN_PROGRESS and lets the pipeline tear it down.
func (s *deploymentService) Delete(ctx context.Context, caller *models.User, id uuid.UUID, force bool) error {
	dep, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	if force {
		n, err := s.repo.Delete(ctx, id)
		if err != nil {
			return err
		}
		if n == 0 {
			return appErr.New(appErr.CodeNotFound, "deployment not found")
		}
		return nil
	}

	if dep.Status == models.DeploymentDeletionInProgress {
		return appErr.New(appErr.CodeConflict, "deletion already in progress")
	}
	if err := s.repo.UpdateStatus(ctx, id, models.DeploymentDeletionInProgress, ""); err != nil {
		return err
	}
	msg := &queue.DeleteDeploymentMessage{DeploymentID: id.String(), AccessToken: ""}
	if err := s.enqueuer.EnqueueDeploymentDelete(ctx, msg); err != nil {
		logger.L().Error("deployment delete handoff failed",
			zap.String("deployment_id", id.String()), zap.Error(err))
		_ = s.repo.UpdateStatus(ctx, id, models.DeploymentDeletionFailed, "handoff to provisioning pipeline failed")
		return err
	}
	return nil
}

func validateCreateInput(input *CreateDeploymentInput) error {
	if input.UserGroup == "" {
		return appErr.New(appErr.CodeValidation, "user_group is required")
	}
	if r := input.PerProviderMaxRetries; r != nil && (*r < 1 || *r > maxPerProviderMaxRetries) {
		return appErr.Newf(appErr.CodeValidation, "per_provider_max_retries must be between 1 and %d", maxPerProviderMaxRetries)
	}
	if input.MaxProviders != nil && *input.MaxProviders < 1 {
		return appErr.New(appErr.CodeValidation, "max_providers must be at least 1")
	}
	if input.TotalTimeout != nil && *input.TotalTimeout < 1 {
		return appErr.New(appErr.CodeValidation, "timeout must be positive")
	}
	if input.PerProviderTimeout != nil && *input.PerProviderTimeout < 1 {
		return appErr.New(appErr.CodeValidation, "per_provider_timeout must be positive")
	}
	return nil
}

func ownerKeys(owners ...*models.User) []string {
	var keys []string
	for _, o := range owners {
		if o != nil && o.SSHPublicKey != "" {
			keys = append(keys, o.SSHPublicKey)
		}
	}
	return keys
}

func valueOr(v *int, def int) int {
	if v != nil {
		return *v
	}
	return def
}

func deref(s *string) string {
	if s != nil {
		return *s
	}
	return ""
}
