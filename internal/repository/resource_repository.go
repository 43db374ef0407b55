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

type ResourceQuery struct {
	Status        *int
	ToscaNodeName *string
	ToscaNodeType *string
	IMVMIndexLTE  *int
	IMVMIndexGTE  *int
	CreatedBefore *time.Time
	CreatedAfter  *time.Time
	UpdatedBefore *time.Time
	UpdatedAfter  *time.Time
}

func (q ResourceQuery) Filters() map[string]any {
	f := map[string]any{}
	putInt(f, "status", q.Status)
	putString(f, "tosca_node_name", q.ToscaNodeName)
	putString(f, "tosca_node_type", q.ToscaNodeType)
	putInt(f, "im_vm_index_lte", q.IMVMIndexLTE)
	putInt(f, "im_vm_index_gte", q.IMVMIndexGTE)
	putTime(f, "created_before", q.CreatedBefore)
	putTime(f, "created_after", q.CreatedAfter)
	putTime(f, "updated_before", q.UpdatedBefore)
	putTime(f, "updated_after", q.UpdatedAfter)
	return f
}

type ResourceRepository interface {
	CreateBatch(ctx context.Context, resources []models.Resource) error
	GetByID(ctx context.Context, deploymentID, id uuid.UUID) (*models.Resource, error)
	ListByDeployment(ctx context.Context, deploymentID uuid.UUID, p ListParams, q ResourceQuery) ([]models.Resource, int64, error)
	CountByDeployment(ctx context.Context, deploymentID uuid.UUID) (int64, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.ResourceStatus) error
	UpdateStatusByDeployment(ctx context.Context, deploymentID uuid.UUID, status models.ResourceStatus) error
	Delete(ctx context.Context, deploymentID, id uuid.UUID) (int64, error)
	DeleteByDeployment(ctx context.Context, deploymentID uuid.UUID) (int64, error)
}

type resourceRepository struct {
	db *gorm.DB
}

func NewResourceRepository(db *gorm.DB) ResourceRepository {
	return &resourceRepository{db: db}
}

func (r *resourceRepository) CreateBatch(ctx context.Context, resources []models.Resource) error {
	if len(resources) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(&resources).Error; err != nil {
		return appErr.Wrap(err, appErr.CodeInternal, "create resources failed")
	}
	return nil
}

func (r *resourceRepository) GetByID(ctx context.Context, deploymentID, id uuid.UUID) (*models.Resource, error) {
	return storage.GetBy[models.Resource](ctx, r.db, map[string]any{"id": id, "deployment_id": deploymentID})
}

// ListByDeployment scopes every query to the parent deployment so a resource
// id from another deployment can never leak through the nested route.
func (r *resourceRepository) ListByDeployment(ctx context.Context, deploymentID uuid.UUID, p ListParams, q ResourceQuery) ([]models.Resource, int64, error) {
	p = p.Normalize()
	preds := storage.BuildPredicates(q.Filters())
	preds = append(preds, storage.Predicate{Expr: "deployment_id = ?", Args: []any{deploymentID}})
	return storage.List[models.Resource](ctx, r.db, p.Window(), p.SortSpec(), preds)
}

func (r *resourceRepository) CountByDeployment(ctx context.Context, deploymentID uuid.UUID) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&models.Resource{}).
		Where("deployment_id = ?", deploymentID).Count(&n).Error; err != nil {
		return 0, appErr.Wrap(err, appErr.CodeInternal, "count resources failed")
	}
	return n, nil
}

func (r *resourceRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.ResourceStatus) error {
	res := r.db.WithContext(ctx).Model(&models.Resource{}).
		Where("id = ?", id).
		Update("status", status)
	if res.Error != nil {
		return appErr.Wrap(res.Error, appErr.CodeInternal, "update resource status failed")
	}
	if res.RowsAffected == 0 {
		return appErr.New(appErr.CodeNotFound, "resource not found")
	}
	return nil
}

func (r *resourceRepository) UpdateStatusByDeployment(ctx context.Context, deploymentID uuid.UUID, status models.ResourceStatus) error {
	err := r.db.WithContext(ctx).Model(&models.Resource{}).
		Where("deployment_id = ?", deploymentID).
		Update("status", status).Error
	if err != nil {
		return appErr.Wrap(err, appErr.CodeInternal, "update resource statuses failed")
	}
	return nil
}

func (r *resourceRepository) Delete(ctx context.Context, deploymentID, id uuid.UUID) (int64, error) {
	return storage.DeleteBy[models.Resource](ctx, r.db, map[string]any{"id": id, "deployment_id": deploymentID})
}

func (r *resourceRepository) DeleteByDeployment(ctx context.Context, deploymentID uuid.UUID) (int64, error) {
	return storage.DeleteBy[models.Resource](ctx, r.db, map[string]any{"deployment_id": deploymentID})
}
