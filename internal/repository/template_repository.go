package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/datacloud-project/orchestrator/internal/models"
	"github.com/datacloud-project/orchestrator/internal/storage"
)

type TemplateQuery struct {
	Name                    *string
	Version                 *string
	TargetProviderType      *string
	ToscaDefinitionsVersion *string
	Content                 *string
	HashContent             *string
	CreatedBefore           *time.Time
	CreatedAfter            *time.Time
	UpdatedBefore           *time.Time
	UpdatedAfter            *time.Time
}

func (q TemplateQuery) Filters() map[string]any {
	f := map[string]any{}
	putString(f, "name", q.Name)
	putString(f, "version", q.Version)
	putString(f, "target_provider_type", q.TargetProviderType)
	putString(f, "tosca_definitions_version", q.ToscaDefinitionsVersion)
	putString(f, "content", q.Content)
	putString(f, "hash_content", q.HashContent)
	putTime(f, "created_before", q.CreatedBefore)
	putTime(f, "created_after", q.CreatedAfter)
	putTime(f, "updated_before", q.UpdatedBefore)
	putTime(f, "updated_after", q.UpdatedAfter)
	return f
}

type TemplateRepository interface {
	Create(ctx context.Context, tpl *models.Template) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Template, error)
	GetByHash(ctx context.Context, hash string) (*models.Template, error)
	List(ctx context.Context, p ListParams, q TemplateQuery) ([]models.Template, int64, error)
	Update(ctx context.Context, tpl *models.Template, changes map[string]any) error
	Delete(ctx context.Context, id uuid.UUID) (int64, error)
}

type templateRepository struct {
	db *gorm.DB
}

func NewTemplateRepository(db *gorm.DB) TemplateRepository {
	return &templateRepository{db: db}
}

func (r *templateRepository) Create(ctx context.Context, tpl *models.Template) error {
	return storage.Create(ctx, r.db, tpl)
}

func (r *templateRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Template, error) {
	return storage.GetBy[models.Template](ctx, r.db, map[string]any{"id": id})
}

func (r *templateRepository) GetByHash(ctx context.Context, hash string) (*models.Template, error) {
	return storage.GetBy[models.Template](ctx, r.db, map[string]any{"hash_content": hash})
}

func (r *templateRepository) List(ctx context.Context, p ListParams, q TemplateQuery) ([]models.Template, int64, error) {
	p = p.Normalize()
	preds := storage.BuildPredicates(q.Filters())
	return storage.List[models.Template](ctx, r.db, p.Window(), p.SortSpec(), preds)
}

func (r *templateRepository) Update(ctx context.Context, tpl *models.Template, changes map[string]any) error {
	return storage.Updates(ctx, r.db, tpl, changes)
}

func (r *templateRepository) Delete(ctx context.Context, id uuid.UUID) (int64, error) {
	return storage.DeleteBy[models.Template](ctx, r.db, map[string]any{"id": id})
}
