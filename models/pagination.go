package models

import "strconv"

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// Pagination is a page request.
type Pagination struct {
	Page  int
	Limit int
}

// NewPagination parses page/limit query values, falling back to defaults
// for missing or out-of-range input.
func NewPagination(pageStr, limitStr string) Pagination {
	p := Pagination{Page: 1, Limit: DefaultPageLimit}
	if n, err := strconv.Atoi(pageStr); err == nil && n > 0 {
		p.Page = n
	}
	if n, err := strconv.Atoi(limitStr); err == nil && n > 0 && n <= MaxPageLimit {
		p.Limit = n
	}
	return p
}

// Normalize fills zero values with defaults.
func (p Pagination) Normalize() Pagination {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 || p.Limit > MaxPageLimit {
		p.Limit = DefaultPageLimit
	}
	return p
}

// Skip is the number of documents before the page.
func (p Pagination) Skip() int64 {
	p = p.Normalize()
	return int64((p.Page - 1) * p.Limit)
}

// PageMeta describes the page that was returned.
type PageMeta struct {
	CurrentPage int   `json:"currentPage"`
	TotalPages  int   `json:"totalPages"`
	TotalCount  int64 `json:"totalCount"`
	Limit       int   `json:"limit"`
	HasNext     bool  `json:"hasNext"`
	HasPrev     bool  `json:"hasPrev"`
}

// Meta builds the page description for a total count.
func (p Pagination) Meta(total int64) PageMeta {
	p = p.Normalize()
	totalPages := int((total + int64(p.Limit) - 1) / int64(p.Limit))
	return PageMeta{
		CurrentPage: p.Page,
		TotalPages:  totalPages,
		TotalCount:  total,
		Limit:       p.Limit,
		HasNext:     p.Page < totalPages,
		HasPrev:     p.Page > 1,
	}
}

// Page is a page of results with its description.
type Page struct {
	Items      interface{} `json:"items"`
	Pagination PageMeta    `json:"pagination"`
}
