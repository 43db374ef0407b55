package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/datacloud-project/orchestrator/internal/models"
	"github.com/datacloud-project/orchestrator/internal/storage"
)

// UserQuery holds the filter parameters of a user list request. Nil fields
// are absent from the request and never reach the filter builder.
type UserQuery struct {
	Sub           *string
	Issuer        *string
	Name          *string
	Username      *string
	Email         *string
	CreatedBefore *time.Time
	CreatedAfter  *time.Time
	UpdatedBefore *time.Time
	UpdatedAfter  *time.Time
}

func (q UserQuery) Filters() map[string]any {
	f := map[string]any{}
	putString(f, "sub", q.Sub)
	putString(f, "issuer", q.Issuer)
	putString(f, "name", q.Name)
	putString(f, "username", q.Username)
	putString(f, "email", q.Email)
	putTime(f, "created_before", q.CreatedBefore)
	putTime(f, "created_after", q.CreatedAfter)
	putTime(f, "updated_before", q.UpdatedBefore)
	putTime(f, "updated_after", q.UpdatedAfter)
	return f
}

type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetBySubIssuer(ctx context.Context, sub, issuer string) (*models.User, error)
	List(ctx context.Context, p ListParams, q UserQuery) ([]models.User, int64, error)
	Update(ctx context.Context, user *models.User, changes map[string]any) error
	Delete(ctx context.Context, id uuid.UUID) (int64, error)
}

type userRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	return storage.Create(ctx, r.db, user)
}

func (r *userRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return storage.GetBy[models.User](ctx, r.db, map[string]any{"id": id})
}

func (r *userRepository) GetBySubIssuer(ctx context.Context, sub, issuer string) (*models.User, error) {
	return storage.GetBy[models.User](ctx, r.db, map[string]any{"sub": sub, "issuer": issuer})
}

func (r *userRepository) List(ctx context.Context, p ListParams, q UserQuery) ([]models.User, int64, error) {
	p = p.Normalize()
	preds := storage.BuildPredicates(q.Filters())
	return storage.List[models.User](ctx, r.db, p.Window(), p.SortSpec(), preds)
}

func (r *userRepository) Update(ctx context.Context, user *models.User, changes map[string]any) error {
	return storage.Updates(ctx, r.db, user, changes)
}

func (r *userRepository) Delete(ctx context.Context, id uuid.UUID) (int64, error) {
	return storage.DeleteBy[models.User](ctx, r.db, map[string]any{"id": id})
}

// putString inserts a non-nil string pointer into the filter map.
func putString(f map[string]any, key string, v *string) {
	if v != nil {
		f[key] = *v
	}
}

func putInt(f map[string]any, key string, v *int) {
	if v != nil {
		f[key] = *v
	}
}

func putBool(f map[string]any, key string, v *bool) {
	if v != nil {
		f[key] = *v
	}
}

func putUUID(f map[string]any, key string, v *uuid.UUID) {
	if v != nil {
		f[key] = *v
	}
}

func putTime(f map[string]any, key string, v *time.Time) {
	if v != nil {
		f[key] = *v
	}
}
