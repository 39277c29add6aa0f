package domain

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// PaginationParams selects one page of an owner's inbound review queue.
// Page counts from 1.
type PaginationParams struct {
	Page  int
	Limit int
}

// NewPaginationParams reads the optional page and limit query values of the
// review listing. Missing or non-positive values fall back to page 1 of 20;
// limit never exceeds 100.
func NewPaginationParams(page, limit *int) PaginationParams {
	p := PaginationParams{Page: 1, Limit: defaultPageSize}
	if page != nil && *page > 0 {
		p.Page = *page
	}
	if limit != nil && *limit > 0 {
		p.Limit = min(*limit, maxPageSize)
	}
	return p
}

// Offset is the number of messages before this page.
func (p PaginationParams) Offset() int {
	return (p.Page - 1) * p.Limit
}

// HasMore reports whether messages remain after this page out of total.
func (p PaginationParams) HasMore(total int64) bool {
	return int64(p.Offset()+p.Limit) < total
}
