package shared

import (
	"net/http"
	"strconv"
)

type Pagination struct {
	Limit  int
	Offset int
}

// Page is one window over an in-memory result set.
type Page[T any] struct {
	Items  []T `json:"items"`
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// ParsePagination reads limit and offset from the query string. Invalid
// values fall back to the defaults; limit is clamped to maxLimit.
func ParsePagination(r *http.Request, defaultLimit, maxLimit int) Pagination {
	p := Pagination{Limit: defaultLimit}
	q := r.URL.Query()
	if v, err := strconv.Atoi(q.Get("limit")); err == nil && v > 0 {
		p.Limit = v
	}
	if v, err := strconv.Atoi(q.Get("offset")); err == nil && v >= 0 {
		p.Offset = v
	}
	if maxLimit > 0 && p.Limit > maxLimit {
		p.Limit = maxLimit
	}
	return p
}

// Paginate slices items by p. Items is never nil so it encodes as [].
func Paginate[T any](items []T, p Pagination) Page[T] {
	total := len(items)
	start := min(p.Offset, total)
	end := min(start+p.Limit, total)
	window := make([]T, 0, end-start)
	window = append(window, items[start:end]...)
	return Page[T]{Items: window, Total: total, Limit: p.Limit, Offset: p.Offset}
}
