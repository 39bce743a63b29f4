package pagination

// Link is one entry of the page-number strip
type Link struct {
	Page    int  `json:"page"`
	Current bool `json:"current"`
	// EllipsisBefore marks a gap between this page and the previous link
	EllipsisBefore bool `json:"ellipsis_before"`
}

// VisiblePages returns page 1, the last page and every page within one of
// current, ascending and without duplicates.
func VisiblePages(current, total int) []int {
	pages := make([]int, 0, 5)
	for page := 1; page <= total; page++ {
		if page == 1 || page == total || abs(page-current) <= 1 {
			pages = append(pages, page)
		}
	}
	return pages
}

// ShowEllipsis reports whether a gap separates two consecutive visible
// pages. prev is 0 for the first link.
func ShowEllipsis(prev, page int) bool {
	if prev == 0 {
		return false
	}
	return page-prev > 1
}

// Links builds the page-number strip for the current page
func Links(current, total int) []Link {
	pages := VisiblePages(current, total)
	links := make([]Link, len(pages))
	prev := 0
	for i, page := range pages {
		links[i] = Link{
			Page:           page,
			Current:        page == current,
			EllipsisBefore: ShowEllipsis(prev, page),
		}
		prev = page
	}
	return links
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
