package handlers

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/datacloud-project/orchestrator/internal/api/types"
	"github.com/datacloud-project/orchestrator/internal/repository"
	appErr "github.com/datacloud-project/orchestrator/pkg/errors"
	"github.com/datacloud-project/orchestrator/pkg/pagination"
)

func parseListParams(r *http.Request) (repository.ListParams, error) {
	q := r.URL.Query()
	p := repository.ListParams{Page: 1, Sort: q.Get("sort")}
	if raw := q.Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return p, appErr.New(appErr.CodeValidation, "page must be a positive integer")
		}
		p.Page = n
	}
	if raw := q.Get("size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return p, appErr.New(appErr.CodeValidation, "size must be a positive integer")
		}
		p.Size = n
	}
	return p.Normalize(), nil
}

func writePaginated[T any](w http.ResponseWriter, r *http.Request, items []T, total int64, p repository.ListParams) {
	if items == nil {
		items = []T{}
	}
	page := pagination.NewPage(p.Page, p.Size, total)
	types.WriteJSON(w, http.StatusOK, types.PaginatedResponse[T]{
		Data:  items,
		Page:  page,
		Links: pagination.NewNavigation(requestURL(r), page),
	})
}

// requestURL rebuilds the absolute URL the client used, honoring the headers
// a reverse proxy sets, so navigation links resolve outside the cluster.
func requestURL(r *http.Request) *url.URL {
	u := *r.URL
	u.Scheme = "http"
	if r.TLS != nil {
		u.Scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		u.Scheme = proto
	}
	u.Host = r.Host
	if host := r.Header.Get("X-Forwarded-Host"); host != "" {
		u.Host = host
	}
	return &u
}

func pathID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, appErr.Newf(appErr.CodeValidation, "%s is not a valid uuid", name)
	}
	return id, nil
}

func decodeJSON(r *http.Request, dst any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return appErr.Wrap(err, appErr.CodeValidation, "invalid request body")
	}
	return nil
}

// queryString returns a pointer only when the parameter is present, so
// absent filters never reach the filter builder.
func queryString(r *http.Request, key string) *string {
	if !r.URL.Query().Has(key) {
		return nil
	}
	v := r.URL.Query().Get(key)
	return &v
}

func queryInt(r *http.Request, key string) (*int, error) {
	raw := queryString(r, key)
	if raw == nil {
		return nil, nil
	}
	n, err := strconv.Atoi(*raw)
	if err != nil {
		return nil, appErr.Newf(appErr.CodeValidation, "%s must be an integer", key)
	}
	return &n, nil
}

func queryTime(r *http.Request, key string) (*time.Time, error) {
	raw := queryString(r, key)
	if raw == nil {
		return nil, nil
	}
	ts, err := time.Parse(time.RFC3339, *raw)
	if err != nil {
		return nil, appErr.Newf(appErr.CodeValidation, "%s must be an RFC 3339 timestamp", key)
	}
	return &ts, nil
}

// timeFilters are the timestamp range parameters every list endpoint
// accepts. A malformed value is rejected here, before it reaches a query.
type timeFilters struct {
	CreatedBefore *time.Time
	CreatedAfter  *time.Time
	UpdatedBefore *time.Time
	UpdatedAfter  *time.Time
}

func parseTimeFilters(r *http.Request) (timeFilters, error) {
	var tf timeFilters
	var err error
	if tf.CreatedBefore, err = queryTime(r, "created_before"); err != nil {
		return tf, err
	}
	if tf.CreatedAfter, err = queryTime(r, "created_after"); err != nil {
		return tf, err
	}
	if tf.UpdatedBefore, err = queryTime(r, "updated_before"); err != nil {
		return tf, err
	}
	if tf.UpdatedAfter, err = queryTime(r, "updated_after"); err != nil {
		return tf, err
	}
	return tf, nil
}

func queryBool(r *http.Request, key string) (*bool, error) {
	raw := queryString(r, key)
	if raw == nil {
		return nil, nil
	}
	b, err := strconv.ParseBool(*raw)
	if err != nil {
		return nil, appErr.Newf(appErr.CodeValidation, "%s must be a boolean", key)
	}
	return &b, nil
}

func queryUUID(r *http.Request, key string) (*uuid.UUID, error) {
	raw := queryString(r, key)
	if raw == nil {
		return nil, nil
	}
	id, err := uuid.Parse(*raw)
	if err != nil {
		return nil, appErr.Newf(appErr.CodeValidation, "%s is not a valid uuid", key)
	}
	return &id, nil
}
