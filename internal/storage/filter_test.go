package storage

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func exprs(preds []Predicate) map[string][]any {
	out := make(map[string][]any, len(preds))
	for _, p := range preds {
		out[p.Expr] = p.Args
	}
	return out
}

func TestBuildPredicatesNilValuesEmitNothing(t *testing.T) {
	preds := BuildPredicates(map[string]any{
		"user_group":     nil,
		"created_before": nil,
	})
	require.Empty(t, preds)
}

func TestBuildPredicatesNeverExceedsInputSize(t *testing.T) {
	filters := map[string]any{
		"user_group": "staff",
		"ignored":    struct{}{},
		"absent":     nil,
	}
	preds := BuildPredicates(filters)
	require.LessOrEqual(t, len(preds), len(filters))
	require.Len(t, preds, 1)
}

func TestBuildPredicatesRangeKeys(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	got := exprs(BuildPredicates(map[string]any{
		"created_before": ts,
		"created_after":  ts,
		"updated_before": ts,
		"updated_after":  ts,
		"start_after":    ts,
		"end_before":     ts,
	}))
	require.Contains(t, got, "created_at <= ?")
	require.Contains(t, got, "created_at >= ?")
	require.Contains(t, got, "updated_at <= ?")
	require.Contains(t, got, "updated_at >= ?")
	require.Contains(t, got, "start_date >= ?")
	require.Contains(t, got, "end_date <= ?")
	require.Equal(t, []any{ts}, got["created_at <= ?"])
}

func TestBuildPredicatesUUIDEquality(t *testing.T) {
	id := uuid.New()
	got := exprs(BuildPredicates(map[string]any{"created_by": id}))
	require.Equal(t, []any{id}, got["created_by = ?"])
}

func TestBuildPredicatesStringContains(t *testing.T) {
	got := exprs(BuildPredicates(map[string]any{"name": "SLURM"}))
	require.Equal(t, []any{"%slurm%"}, got["lower(name) LIKE ?"])
}

func TestBuildPredicatesNumericSuffixes(t *testing.T) {
	got := exprs(BuildPredicates(map[string]any{
		"total_timeout_lte":          1440,
		"per_provider_max_retries_gte": 2,
		"max_providers":              3,
	}))
	require.Equal(t, []any{1440}, got["total_timeout <= ?"])
	require.Equal(t, []any{2}, got["per_provider_max_retries >= ?"])
	require.Equal(t, []any{3}, got["max_providers = ?"])
}

func TestBuildPredicatesBoolEquality(t *testing.T) {
	got := exprs(BuildPredicates(map[string]any{"keep_last_attempt": true}))
	require.Equal(t, []any{true}, got["keep_last_attempt = ?"])
}

func TestBuildPredicatesUnsupportedTypesIgnored(t *testing.T) {
	require.Empty(t, BuildPredicates(map[string]any{
		"inputs": map[string]any{"cpu": 4},
		"owners": []string{"a", "b"},
	}))
}

func TestParseSort(t *testing.T) {
	require.Equal(t, Sort{Column: "created_at", Desc: true}, ParseSort(""))
	require.Equal(t, Sort{Column: "created_at", Desc: true}, ParseSort("-created_at"))
	require.Equal(t, Sort{Column: "user_group"}, ParseSort("user_group"))
}
