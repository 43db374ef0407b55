package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/datacloud-project/orchestrator/internal/models"
	"github.com/datacloud-project/orchestrator/internal/storage"
	appErr "github.com/datacloud-project/orchestrator/pkg/errors"
)

type DeploymentQuery struct {
	TemplateID      *uuid.UUID
	Status          *string
	Task            *string
	UserGroup       *string
	UserGroupIssuer *string
	TargetProvider  *string
	TargetRegion    *string
	KeepLastAttempt *bool
	CreatedBefore   *time.Time
	CreatedAfter    *time.Time
	UpdatedBefore   *time.Time
	UpdatedAfter    *time.Time
}

func (q DeploymentQuery) Filters() map[string]any {
	f := map[string]any{}
	putUUID(f, "template_id", q.TemplateID)
	putString(f, "status", q.Status)
	putString(f, "task", q.Task)
	putString(f, "user_group", q.UserGroup)
	putString(f, "user_group_issuer", q.UserGroupIssuer)
	putString(f, "target_provider", q.TargetProvider)
	putString(f, "target_region", q.TargetRegion)
	putBool(f, "keep_last_attempt", q.KeepLastAttempt)
	putTime(f, "created_before", q.CreatedBefore)
	putTime(f, "created_after", q.CreatedAfter)
	putTime(f, "updated_before", q.UpdatedBefore)
	putTime(f, "updated_after", q.UpdatedAfter)
	return f
}

type DeploymentRepository interface {
	Create(ctx context.Context, dep *models.Deployment) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Deployment, error)
	List(ctx context.Context, p ListParams, q DeploymentQuery) ([]models.Deployment, int64, error)
	Update(ctx context.Context, dep *models.Deployment, changes map[string]any) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.DeploymentStatus, reason string) error
	UpdateTask(ctx context.Context, id uuid.UUID, task models.TaskStage) error
	Delete(ctx context.Context, id uuid.UUID) (int64, error)
	Owners(ctx context.Context, dep *models.Deployment) ([]models.User, error)
	AddOwner(ctx context.Context, dep *models.Deployment, user *models.User) error
}

type deploymentRepository struct {
	db *gorm.DB
}

func NewDeploymentRepository(db *gorm.DB) DeploymentRepository {
	return &deploymentRepository{db: db}
}

func (r *deploymentRepository) Create(ctx context.Context, dep *models.Deployment) error {
	return storage.Create(ctx, r.db, dep)
}

func (r *deploymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Deployment, error) {
	return storage.GetBy[models.Deployment](ctx, r.db, map[string]any{"id": id})
}

func (r *deploymentRepository) List(ctx context.Context, p ListParams, q DeploymentQuery) ([]models.Deployment, int64, error) {
	p = p.Normalize()
	preds := storage.BuildPredicates(q.Filters())
	return storage.List[models.Deployment](ctx, r.db, p.Window(), p.SortSpec(), preds)
}

func (r *deploymentRepository) Update(ctx context.Context, dep *models.Deployment, changes map[string]any) error {
	return storage.Updates(ctx, r.db, dep, changes)
}

// UpdateStatus transitions the deployment state. A non-empty reason replaces
// the previous one; an empty reason clears it so stale failure text does not
// survive a later successful transition.
func (r *deploymentRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.DeploymentStatus, reason string) error {
	res := r.db.WithContext(ctx).Model(&models.Deployment{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": status, "status_reason": reason})
	if res.Error != nil {
		return appErr.Wrap(res.Error, appErr.CodeInternal, "update deployment status failed")
	}
	if res.RowsAffected == 0 {
		return appErr.New(appErr.CodeNotFound, "deployment not found")
	}
	return nil
}

func (r *deploymentRepository) UpdateTask(ctx context.Context, id uuid.UUID, task models.TaskStage) error {
	res := r.db.WithContext(ctx).Model(&models.Deployment{}).
		Where("id = ?", id).
		Update("task", task)
	if res.Error != nil {
		return appErr.Wrap(res.Error, appErr.CodeInternal, "update deployment task failed")
	}
	if res.RowsAffected == 0 {
		return appErr.New(appErr.CodeNotFound, "deployment not found")
	}
	return nil
}

func (r *deploymentRepository) Delete(ctx context.Context, id uuid.UUID) (int64, error) {
	return storage.DeleteBy[models.Deployment](ctx, r.db, map[string]any{"id": id})
}

func (r *deploymentRepository) Owners(ctx context.Context, dep *models.Deployment) ([]models.User, error) {
	var owners []models.User
	if err := r.db.WithContext(ctx).Model(dep).Association("Owners").Find(&owners); err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "load deployment owners failed")
	}
	return owners, nil
}

func (r *deploymentRepository) AddOwner(ctx context.Context, dep *models.Deployment, user *models.User) error {
	if err := r.db.WithContext(ctx).Model(dep).Association("Owners").Append(user); err != nil {
		return appErr.Wrap(err, appErr.CodeInternal, "add deployment owner failed")
	}
	return nil
}
