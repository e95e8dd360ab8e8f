package model

// Default page sizes per listing.
const (
	QuestionPageSize = 25
	QListPageSize    = 12
	HistoryPageSize  = 25
)

const pageWindow = 7

// Page is one page of a listing plus the page numbers to offer for navigation.
type Page[T any] struct {
	Items       []T   `json:"items"`
	CurrentPage int   `json:"current_page"`
	TotalSize   int   `json:"total_size"`
	Pages       []int `json:"pages"`
}

// Paginate slices items into the requested zero-based page.
// A page past the end falls back to the first page.
func Paginate[T any](items []T, page, size int) Page[T] {
	if size <= 0 {
		size = HistoryPageSize
	}
	totalPages := (len(items) + size - 1) / size
	if page < 0 || page >= totalPages {
		page = 0
	}
	start := page * size
	end := min(start+size, len(items))

	out := Page[T]{
		Items:       []T{},
		CurrentPage: page,
		TotalSize:   len(items),
		Pages:       PageNumbers(page, totalPages, pageWindow),
	}
	if start < end {
		out.Items = items[start:end]
	}
	return out
}

// PageNumbers returns at most count page numbers centered on current.
// The first and last pages are always included once the total exceeds count.
func PageNumbers(current, total, count int) []int {
	if total <= 0 || count <= 0 {
		return []int{}
	}
	last := total - 1
	current = max(0, min(current, last))

	if total <= count {
		pages := make([]int, total)
		for i := range pages {
			pages[i] = i
		}
		return pages
	}
	if count == 1 {
		return []int{current}
	}
	middle := count - 2
	if middle <= 0 {
		return []int{0, last}
	}

	start := current - middle/2
	end := start + middle - 1
	if start < 1 {
		start = 1
		end = start + middle - 1
	}
	if end > last-1 {
		end = last - 1
		start = end - middle + 1
	}

	pages := []int{0}
	for p := start; p <= end; p++ {
		pages = append(pages, p)
	}
	return append(pages, last)
}
