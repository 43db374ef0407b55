package repository

import "github.com/datacloud-project/orchestrator/internal/storage"

const (
	defaultPageSize = 5
	maxPageSize     = 100
)

// ListParams carries the pagination and ordering part of a list request.
// Filters travel separately in per-entity query structs.
type ListParams struct {
	Page int
	Size int
	Sort string
}

// Normalize clamps page and size into their valid ranges and fills the
// default sort order.
func (p ListParams) Normalize() ListParams {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Size < 1 {
		p.Size = defaultPageSize
	}
	if p.Size > maxPageSize {
		p.Size = maxPageSize
	}
	if p.Sort == "" {
		p.Sort = storage.DefaultSort
	}
	return p
}

func (p ListParams) Window() storage.Window {
	return storage.Window{Skip: (p.Page - 1) * p.Size, Limit: p.Size}
}

func (p ListParams) SortSpec() storage.Sort {
	return storage.ParseSort(p.Sort)
}
