// Package pagination slices an ordered sequence into fixed-size pages and
// tracks the current page.
package pagination

// Paginator pages over items. The current page is 1-indexed and always lies
// in [1, max(TotalPages(), 1)]. It is not safe for concurrent use.
type Paginator[T any] struct {
	items    []T
	pageSize int
	current  int
	onChange func(from, to int)
}

// Option configures a Paginator
type Option[T any] func(*Paginator[T])

// WithOnPageChange registers a hook run whenever navigation actually moves
// to a different page. It is not run on resets.
func WithOnPageChange[T any](fn func(from, to int)) Option[T] {
	return func(p *Paginator[T]) { p.onChange = fn }
}

// New creates a Paginator positioned on page 1. A pageSize below 1 is
// treated as 1.
func New[T any](items []T, pageSize int, opts ...Option[T]) *Paginator[T] {
	p := &Paginator[T]{
		items:    items,
		pageSize: normalizeSize(pageSize),
		current:  1,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func normalizeSize(size int) int {
	if size < 1 {
		return 1
	}
	return size
}

// TotalPages returns 0 for an empty sequence, ceil(len/pageSize) otherwise
func (p *Paginator[T]) TotalPages() int {
	return TotalPages(len(p.items), p.pageSize)
}

// TotalPages returns the number of pages count items span at pageSize
func TotalPages(count, pageSize int) int {
	if count <= 0 {
		return 0
	}
	pageSize = normalizeSize(pageSize)
	return (count + pageSize - 1) / pageSize
}

// CurrentPage returns the 1-indexed current page
func (p *Paginator[T]) CurrentPage() int {
	return p.current
}

// PageSize returns the configured page size
func (p *Paginator[T]) PageSize() int {
	return p.pageSize
}

// Len returns the number of items being paged
func (p *Paginator[T]) Len() int {
	return len(p.items)
}

// Slice returns the items on the current page
func (p *Paginator[T]) Slice() []T {
	return p.Page(p.current)
}

// Page returns the items on page n, or an empty slice when n is out of range
func (p *Paginator[T]) Page(n int) []T {
	start := (n - 1) * p.pageSize
	if n < 1 || start >= len(p.items) {
		return []T{}
	}
	end := start + p.pageSize
	if end > len(p.items) {
		end = len(p.items)
	}
	return p.items[start:end]
}

// HasPrevious reports whether Previous would move
func (p *Paginator[T]) HasPrevious() bool {
	return p.current > 1
}

// HasNext reports whether Next would move
func (p *Paginator[T]) HasNext() bool {
	return p.current < p.TotalPages()
}

// Previous moves one page back. It reports whether the page changed.
func (p *Paginator[T]) Previous() bool {
	return p.move(p.current - 1)
}

// Next moves one page forward. It reports whether the page changed.
func (p *Paginator[T]) Next() bool {
	return p.move(p.current + 1)
}

// GoTo jumps to page n, clamped into the valid range. It reports whether
// the page changed.
func (p *Paginator[T]) GoTo(n int) bool {
	return p.move(n)
}

func (p *Paginator[T]) move(to int) bool {
	last := p.TotalPages()
	if to > last {
		to = last
	}
	if to < 1 {
		to = 1
	}
	if to == p.current {
		return false
	}

	from := p.current
	p.current = to
	if p.onChange != nil {
		p.onChange(from, to)
	}
	return true
}

// SetItems replaces the sequence and resets to page 1
func (p *Paginator[T]) SetItems(items []T) {
	p.items = items
	p.current = 1
}

// SetPageSize changes the page size and resets to page 1
func (p *Paginator[T]) SetPageSize(size int) {
	p.pageSize = normalizeSize(size)
	p.current = 1
}
