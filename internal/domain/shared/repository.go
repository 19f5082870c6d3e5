package shared

import "strings"

// Predicate selects records inside a collection
type Predicate func(Record) bool

// ByID matches the record with the given id
func ByID(id string) Predicate {
	return func(r Record) bool { return r.ID == id }
}

// ByField matches records whose field equals value
func ByField(key, value string) Predicate {
	return func(r Record) bool { return r.Key(key) == value }
}

// Filter represents list query options used by list views
type Filter struct {
	Page     int
	PageSize int
	Search   string
}

// DefaultFilter returns a filter with default values
func DefaultFilter() Filter {
	return Filter{
		Page:     1,
		PageSize: 20,
	}
}

// Normalize fills missing paging values
func (f Filter) Normalize() Filter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = 20
	}
	f.Search = strings.TrimSpace(f.Search)
	return f
}

// Matches performs a case-insensitive search over the record's string fields.
func (f Filter) Matches(r Record) bool {
	if f.Search == "" {
		return true
	}
	needle := strings.ToLower(f.Search)
	for _, v := range r.Fields {
		if s, ok := v.(string); ok && strings.Contains(strings.ToLower(s), needle) {
			return true
		}
	}
	return strings.Contains(strings.ToLower(r.ID), needle)
}

// Paginated represents a paginated result
type Paginated[T any] struct {
	Items      []T   `json:"items"`
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalPages int   `json:"total_pages"`
}

// NewPaginated creates a new paginated result
func NewPaginated[T any](items []T, total int64, page, pageSize int) Paginated[T] {
	totalPages := int(total) / pageSize
	if int(total)%pageSize > 0 {
		totalPages++
	}
	return Paginated[T]{
		Items:      items,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}
}

// Paginate slices items according to the filter's page settings
func Paginate[T any](items []T, f Filter) Paginated[T] {
	f = f.Normalize()
	total := len(items)
	start := (f.Page - 1) * f.PageSize
	if start > total {
		start = total
	}
	end := start + f.PageSize
	if end > total {
		end = total
	}
	page := make([]T, end-start)
	copy(page, items[start:end])
	return NewPaginated(page, int64(total), f.Page, f.PageSize)
}
