package storage

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	appErr "github.com/datacloud-project/orchestrator/pkg/errors"
)

// PostgreSQL SQLSTATE codes for constraint violations.
const (
	pgUniqueViolation     = "23505"
	pgNotNullViolation    = "23502"
	pgForeignKeyViolation = "23503"
)

// Create inserts a new row. Constraint violations are classified into the
// domain error taxonomy instead of being pre-validated: under normal
// operation this saves an existence-check round trip.
func Create[T any](ctx context.Context, db *gorm.DB, obj *T) error {
	if err := db.WithContext(ctx).Create(obj).Error; err != nil {
		return classifyWriteError(err, entityName[T]())
	}
	return nil
}

// GetBy returns the first row matching the equality filters, or (nil, nil)
// when nothing matches. Absence is not an error; the caller decides whether
// it is fatal.
func GetBy[T any](ctx context.Context, db *gorm.DB, filters map[string]any) (*T, error) {
	var out T
	tx := db.WithContext(ctx)
	for k, v := range filters {
		tx = tx.Where(k+" = ?", v)
	}
	err := tx.First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, entityName[T]()+" lookup failed")
	}
	return &out, nil
}

// Updates applies a partial field-value map to an already loaded row and
// persists it. Only the provided fields (plus updated_at) change. Constraint
// violations classify the same way as Create.
func Updates[T any](ctx context.Context, db *gorm.DB, obj *T, changes map[string]any) error {
	if len(changes) == 0 {
		return nil
	}
	if err := db.WithContext(ctx).Model(obj).Updates(changes).Error; err != nil {
		return classifyWriteError(err, entityName[T]())
	}
	return nil
}

// DeleteBy physically removes the rows matching the equality filters and
// returns how many were removed. A foreign-key violation means dependent
// rows still reference the target and classifies as DeleteBlocked, distinct
// from both NotFound and Conflict.
func DeleteBy[T any](ctx context.Context, db *gorm.DB, filters map[string]any) (int64, error) {
	var model T
	tx := db.WithContext(ctx)
	for k, v := range filters {
		tx = tx.Where(k+" = ?", v)
	}
	res := tx.Delete(&model)
	if res.Error != nil {
		var pgErr *pgconn.PgError
		if errors.As(res.Error, &pgErr) && pgErr.Code == pgForeignKeyViolation {
			return 0, appErr.Wrap(res.Error, appErr.CodeDeleteBlocked,
				fmt.Sprintf("%s still has dependent rows and cannot be deleted", entityName[T]())).
				WithMeta("constraint", pgErr.ConstraintName)
		}
		return 0, appErr.Wrap(res.Error, appErr.CodeInternal, entityName[T]()+" delete failed")
	}
	return res.RowsAffected, nil
}

// keyDetailRe matches the structured detail emitted by PostgreSQL on
// unique violations: `Key (col_a, col_b)=(val_a, val_b) already exists.`
var keyDetailRe = regexp.MustCompile(`Key \((.+?)\)=\((.*?)\)`)

// classifyWriteError turns a storage write failure into a domain error using
// the structured constraint-violation metadata reported by the driver.
// Anything that is not a recognized constraint violation propagates as an
// unclassified internal error.
func classifyWriteError(err error, entity string) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return appErr.Wrap(err, appErr.CodeInternal, entity+" write failed")
	}
	switch pgErr.Code {
	case pgUniqueViolation:
		msg := fmt.Sprintf("%s already exists", entity)
		if fields, values, ok := parseKeyDetail(pgErr.Detail); ok {
			pairs := make([]string, len(fields))
			for i := range fields {
				v := ""
				if i < len(values) {
					v = values[i]
				}
				pairs[i] = fields[i] + "=" + v
			}
			msg = fmt.Sprintf("%s with %s already exists", entity, strings.Join(pairs, ", "))
		}
		return appErr.Wrap(err, appErr.CodeConflict, msg).
			WithMeta("constraint", pgErr.ConstraintName)
	case pgNotNullViolation:
		return appErr.Wrap(err, appErr.CodeValidation,
			fmt.Sprintf("%s field %q must not be null", entity, pgErr.ColumnName))
	case pgForeignKeyViolation:
		return appErr.Wrap(err, appErr.CodeValidation,
			fmt.Sprintf("%s references a row that does not exist", entity)).
			WithMeta("constraint", pgErr.ConstraintName)
	default:
		return appErr.Wrap(err, appErr.CodeInternal, entity+" write failed")
	}
}

// parseKeyDetail extracts the violated columns and the submitted values from
// the unique-violation detail text.
func parseKeyDetail(detail string) (fields, values []string, ok bool) {
	m := keyDetailRe.FindStringSubmatch(detail)
	if m == nil {
		return nil, nil, false
	}
	fields = splitTrim(m[1])
	values = splitTrim(m[2])
	return fields, values, true
}

func splitTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.TrimSpace(p))
	}
	return out
}

// entityName renders the entity type name for error messages, lowercased
// with camel-case words separated ("DeploymentOwner" -> "deployment owner").
func entityName[T any]() string {
	var model T
	name := reflect.TypeOf(model).Name()
	var b strings.Builder
	for i, r := range name {
		if i > 0 && r >= 'A' && r <= 'Z' {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	return strings.ToLower(b.String())
}
