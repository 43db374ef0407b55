// Package storage implements the generic query building blocks shared by
// every repository: filter predicates, the paginated list executor, and the
// CRUD gateway with structured constraint-violation classification.
package storage

import (
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Predicate is a single comparison condition. Predicates built from the same
// filter set are always conjoined (AND) when executing a query.
type Predicate struct {
	Expr string
	Args []any
}

// rangeKeys are reserved filter keys mapping to <=/>= comparisons against a
// timestamp column. They never participate in substring or equality matching.
var rangeKeys = map[string]struct {
	column string
	op     string
}{
	"created_before": {"created_at", "<="},
	"created_after":  {"created_at", ">="},
	"updated_before": {"updated_at", "<="},
	"updated_after":  {"updated_at", ">="},
	"start_before":   {"start_date", "<="},
	"start_after":    {"start_date", ">="},
	"end_before":     {"end_date", "<="},
	"end_after":      {"end_date", ">="},
}

// BuildPredicates translates a flat filter map into comparison predicates.
// Filter keys come from a fixed per-entity vocabulary kept in sync with the
// entity schema by the caller; they are never raw user input.
//
// Per key: reserved range keys compare timestamps; uuid values compare for
// equality; strings match case-insensitive substrings; numeric values ending
// in _lte/_gte compare against the base column; plain numeric and bool
// values compare for equality. Nil values and unsupported types emit no
// predicate: open filters are the default and the boundary schema already
// rejected unknown parameters.
func BuildPredicates(filters map[string]any) []Predicate {
	preds := make([]Predicate, 0, len(filters))
	for key, value := range filters {
		if value == nil {
			continue
		}
		if rk, ok := rangeKeys[key]; ok {
			preds = append(preds, Predicate{Expr: rk.column + " " + rk.op + " ?", Args: []any{value}})
			continue
		}
		switch v := value.(type) {
		case uuid.UUID:
			preds = append(preds, Predicate{Expr: key + " = ?", Args: []any{v}})
		case string:
			preds = append(preds, Predicate{
				Expr: "lower(" + key + ") LIKE ?",
				Args: []any{"%" + strings.ToLower(v) + "%"},
			})
		case bool:
			preds = append(preds, Predicate{Expr: key + " = ?", Args: []any{v}})
		case int, int32, int64, float32, float64:
			switch {
			case strings.HasSuffix(key, "_lte"):
				col := strings.TrimSuffix(key, "_lte")
				preds = append(preds, Predicate{Expr: col + " <= ?", Args: []any{v}})
			case strings.HasSuffix(key, "_gte"):
				col := strings.TrimSuffix(key, "_gte")
				preds = append(preds, Predicate{Expr: col + " >= ?", Args: []any{v}})
			default:
				preds = append(preds, Predicate{Expr: key + " = ?", Args: []any{v}})
			}
		}
	}
	return preds
}

// applyPredicates conjoins every predicate onto the query.
func applyPredicates(tx *gorm.DB, preds []Predicate) *gorm.DB {
	for _, p := range preds {
		tx = tx.Where(p.Expr, p.Args...)
	}
	return tx
}
