package query

// Pagination is the "paginate" block of a collection response.
type Pagination struct {
	Total   int `json:"total"`
	Page    int `json:"page"`
	PerPage int `json:"perpage"`
	Pages   int `json:"pages"`
}

// Page is the collection envelope: {"data": [...], "paginate": {...}}.
type Page[T any] struct {
	Data     []T        `json:"data"`
	Paginate Pagination `json:"paginate"`
}

// NewPagination fills Pages from total and perpage. Pages is ceil(total/perpage)
// for a positive perpage; with NoLimit everything fits on one page.
func NewPagination(total, page, perPage int) Pagination {
	return Pagination{
		Total:   total,
		Page:    page,
		PerPage: perPage,
		Pages:   PageCount(total, perPage),
	}
}

// PageCount returns the number of pages needed for total records.
func PageCount(total, perPage int) int {
	if total <= 0 {
		return 0
	}
	if perPage <= 0 {
		return 1
	}
	return (total + perPage - 1) / perPage
}

// Consistent reports whether p satisfies the envelope invariants for a page
// holding n records.
func (p Pagination) Consistent(n int) bool {
	if p.PerPage > 0 {
		if p.Pages != PageCount(p.Total, p.PerPage) || n > p.PerPage {
			return false
		}
	}
	return p.Total == 0 || p.Page >= 1
}

// HasNext reports whether a page follows p.
func (p Pagination) HasNext() bool {
	return p.Page < p.Pages
}
