// Package pagination assembles the page metadata and navigation links
// returned by every list endpoint.
package pagination

import (
	"net/url"
	"strconv"
)

// Page describes the current window over a filtered collection.
type Page struct {
	Size          int   `json:"size"`
	Number        int   `json:"number"`
	TotalElements int64 `json:"total_elements"`
	TotalPages    int   `json:"total_pages"`
}

// NewPage computes the page metadata for the given window and total count.
// An empty result set still reports one (empty) page: "page 1 of 0" is not
// navigable.
func NewPage(number, size int, totalElements int64) Page {
	totalPages := int((totalElements + int64(size) - 1) / int64(size))
	if totalPages == 0 {
		totalPages = 1
	}
	return Page{
		Size:          size,
		Number:        number,
		TotalElements: totalElements,
		TotalPages:    totalPages,
	}
}

// Navigation carries the links used to move through a paginated list.
// Prev and Next are omitted on the first and last page respectively.
type Navigation struct {
	First string  `json:"first"`
	Prev  *string `json:"prev,omitempty"`
	Next  *string `json:"next,omitempty"`
	Last  string  `json:"last"`
}

// NewNavigation builds navigation links from the resource URL of the current
// request. Every query parameter already present (size, sort, filters) is
// preserved; only page is replaced.
func NewNavigation(resource *url.URL, page Page) Navigation {
	nav := Navigation{
		First: withPage(resource, page.Size, 1),
		Last:  withPage(resource, page.Size, page.TotalPages),
	}
	if page.Number > 1 {
		prev := withPage(resource, page.Size, page.Number-1)
		nav.Prev = &prev
	}
	if page.Number < page.TotalPages {
		next := withPage(resource, page.Size, page.Number+1)
		nav.Next = &next
	}
	return nav
}

func withPage(resource *url.URL, size, page int) string {
	u := *resource
	q := u.Query()
	q.Set("size", strconv.Itoa(size))
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String()
}
