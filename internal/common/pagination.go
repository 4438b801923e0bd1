package common

import (
	"net/http"
	"strconv"
	"strings"
)

// Page describes a page of a list response.
type Page struct {
	Page  int   `json:"page"`
	Pages int   `json:"pages"`
	Total int64 `json:"total"`
}

// NewPage computes the page count for total items split into pages of size.
func NewPage(page, size int, total int64) Page {
	pages := 0
	if size > 0 {
		pages = int((total + int64(size) - 1) / int64(size))
	}
	return Page{Page: page, Pages: pages, Total: total}
}

// ParsePagination extracts pageNumber and pageSize query parameters.
func ParsePagination(r *http.Request, defaultPerPage int) (page, perPage int) {
	q := r.URL.Query()
	page = positive(q.Get("pageNumber"), 1)
	perPage = min(positive(q.Get("pageSize"), defaultPerPage), 100)
	return page, perPage
}

func positive(raw string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 1 {
		return def
	}
	return n
}
