package storage

import (
	"context"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	appErr "github.com/datacloud-project/orchestrator/pkg/errors"
)

// DefaultSort orders listings by insertion time, newest first.
const DefaultSort = "-created_at"

// Sort is a single-key sort specification.
type Sort struct {
	Column string
	Desc   bool
}

// ParseSort interprets a sort query value: a column name, optionally
// prefixed with '-' for descending order. Empty input falls back to
// DefaultSort. Column names come from the per-entity query vocabulary, like
// filter keys.
func ParseSort(s string) Sort {
	if s == "" {
		s = DefaultSort
	}
	if strings.HasPrefix(s, "-") {
		return Sort{Column: s[1:], Desc: true}
	}
	return Sort{Column: s}
}

// Window is the pagination window of a list query.
type Window struct {
	Skip  int
	Limit int
}

// List returns the page of rows matching the predicate set, ordered by the
// sort key, together with the total count of matching rows. The count query
// applies the identical predicate set as the page query; a divergence
// between the two is a correctness bug.
func List[T any](ctx context.Context, db *gorm.DB, w Window, sort Sort, preds []Predicate) ([]T, int64, error) {
	var model T

	var total int64
	if err := applyPredicates(db.WithContext(ctx).Model(&model), preds).Count(&total).Error; err != nil {
		return nil, 0, appErr.Wrap(err, appErr.CodeInternal, "count query failed")
	}

	var items []T
	err := applyPredicates(db.WithContext(ctx).Model(&model), preds).
		Order(clause.OrderByColumn{Column: clause.Column{Name: sort.Column}, Desc: sort.Desc}).
		Offset(w.Skip).
		Limit(w.Limit).
		Find(&items).Error
	if err != nil {
		return nil, 0, appErr.Wrap(err, appErr.CodeInternal, "list query failed")
	}
	return items, total, nil
}
