package item

import (
	"math"
	"slices"
	"strings"
)

const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
)

// Sort orders.
const (
	OrderAsc  = "asc"
	OrderDesc = "desc"
)

// Sortable fields, keyed by their JSON name.
const (
	SortCreatedAt = "createdAt"
	SortUpdatedAt = "updatedAt"
	SortName      = "name"
	SortPriority  = "priority"
	SortStatus    = "status"
)

// Query selects one page of items.
type Query struct {
	Status Status
	Page   int
	Limit  int
	SortBy string
	Order  string
}

// Normalize fills defaults and replaces values outside their domain.
func (q Query) Normalize() Query {
	if q.Page < 1 {
		q.Page = DefaultPage
	}
	if q.Limit < 1 {
		q.Limit = DefaultLimit
	}
	if q.Limit > MaxLimit {
		q.Limit = MaxLimit
	}
	if !SortableField(q.SortBy) {
		q.SortBy = SortCreatedAt
	}
	q.Order = strings.ToLower(q.Order)
	if q.Order != OrderAsc {
		q.Order = OrderDesc
	}
	return q
}

// Offset is the number of records skipped before the page starts. It
// saturates at math.MaxInt instead of overflowing for very large pages.
func (q Query) Offset() int {
	if q.Page <= 1 || q.Limit < 1 {
		return 0
	}
	if q.Page-1 > math.MaxInt/q.Limit {
		return math.MaxInt
	}
	return (q.Page - 1) * q.Limit
}

// Pages is the number of non-empty pages for total records.
func (q Query) Pages(total int) int {
	if q.Limit < 1 || total <= 0 {
		return 0
	}
	return (total + q.Limit - 1) / q.Limit
}

// Matches reports whether it passes the status filter.
func (q Query) Matches(it Item) bool {
	return q.Status == "" || it.Status == q.Status
}

// SortableField reports whether field may be used as a sort key.
func SortableField(field string) bool {
	switch field {
	case SortCreatedAt, SortUpdatedAt, SortName, SortPriority, SortStatus:
		return true
	}
	return false
}

// Apply filters, sorts and pages items in memory, returning the page and the
// number of records that matched the filter. The input slice is reordered.
func (q Query) Apply(items []Item) ([]Item, int) {
	q = q.Normalize()

	matched := items[:0]
	for _, it := range items {
		if q.Matches(it) {
			matched = append(matched, it)
		}
	}

	slices.SortStableFunc(matched, q.compare)

	total := len(matched)
	start := q.Offset()
	if start < 0 || start >= total {
		return []Item{}, total
	}
	end := start + min(q.Limit, total-start)
	return matched[start:end], total
}

func (q Query) compare(a, b Item) int {
	c := compareField(q.SortBy, a, b)
	if c == 0 {
		c = a.CreatedAt.Compare(b.CreatedAt)
	}
	if c == 0 {
		c = strings.Compare(a.ID, b.ID)
	}
	if q.Order == OrderDesc {
		return -c
	}
	return c
}

func compareField(field string, a, b Item) int {
	switch field {
	case SortUpdatedAt:
		return a.UpdatedAt.Compare(b.UpdatedAt)
	case SortName:
		return strings.Compare(a.Name, b.Name)
	case SortPriority:
		return a.Priority - b.Priority
	case SortStatus:
		return strings.Compare(string(a.Status), string(b.Status))
	default:
		return a.CreatedAt.Compare(b.CreatedAt)
	}
}
