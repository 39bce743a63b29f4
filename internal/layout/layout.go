// Package layout computes how many directory cards fit on screen without
// scrolling for a given viewport.
package layout

import "github.com/grandmasters-wiki/internal/config"

// Breakpoint is a viewport width class
type Breakpoint string

const (
	Mobile  Breakpoint = "mobile"
	Tablet  Breakpoint = "tablet"
	Desktop Breakpoint = "desktop"
)

const (
	tabletMinWidth  = 768
	desktopMinWidth = 1024
)

// BreakpointForWidth classifies a viewport width in CSS pixels
func BreakpointForWidth(width int) Breakpoint {
	switch {
	case width >= desktopMinWidth:
		return Desktop
	case width >= tabletMinWidth:
		return Tablet
	default:
		return Mobile
	}
}

// Config holds the pixel metrics and item bounds for one breakpoint
type Config struct {
	Columns          int
	CardHeight       int
	GridGap          int
	HeaderHeight     int
	PaginationHeight int
	ContainerPadding int
	MinItems         int
	MaxItems         int
	// FallbackItems is used when the viewport height is unknown
	FallbackItems int
}

// Table maps each breakpoint to its Config
type Table map[Breakpoint]Config

// DefaultTable returns the stock layout metrics
func DefaultTable() Table {
	return Table{
		Desktop: {
			Columns:          3,
			CardHeight:       72,
			GridGap:          16,
			HeaderHeight:     100,
			PaginationHeight: 70,
			ContainerPadding: 32,
			MinItems:         3,
			MaxItems:         42,
			FallbackItems:    21,
		},
		Tablet: {
			Columns:          2,
			CardHeight:       68,
			GridGap:          14,
			HeaderHeight:     95,
			PaginationHeight: 68,
			ContainerPadding: 32,
			MinItems:         2,
			MaxItems:         28,
			FallbackItems:    14,
		},
		Mobile: {
			Columns:          1,
			CardHeight:       60,
			GridGap:          12,
			HeaderHeight:     85,
			PaginationHeight: 60,
			ContainerPadding: 24,
			MinItems:         1,
			MaxItems:         20,
			FallbackItems:    10,
		},
	}
}

// NewTable returns the stock metrics with item bounds taken from cfg
func NewTable(cfg config.LayoutConfig) Table {
	t := DefaultTable()
	t.setBounds(Desktop, cfg.Desktop)
	t.setBounds(Tablet, cfg.Tablet)
	t.setBounds(Mobile, cfg.Mobile)
	return t
}

func (t Table) setBounds(bp Breakpoint, b config.ItemBounds) {
	c := t[bp]
	if b.MinItems > 0 {
		c.MinItems = b.MinItems
	}
	if b.MaxItems > 0 {
		c.MaxItems = b.MaxItems
	}
	if c.MaxItems < c.MinItems {
		c.MaxItems = c.MinItems
	}
	t[bp] = c
}

// For returns the Config for bp; unknown breakpoints get the mobile metrics
func (t Table) For(bp Breakpoint) Config {
	if c, ok := t[bp]; ok {
		return c
	}
	return t[Mobile]
}

// Compute returns the number of cards that fit in viewportHeight pixels,
// always within [MinItems, MaxItems] of the breakpoint.
func (t Table) Compute(viewportHeight int, bp Breakpoint) int {
	c := t.For(bp)

	available := viewportHeight - c.HeaderHeight - c.PaginationHeight - c.ContainerPadding
	rows := floorDiv(available+c.GridGap, c.CardHeight+c.GridGap)
	if rows < 1 {
		rows = 1
	}

	return clamp(rows*c.Columns, c.MinItems, c.MaxItems)
}

// Fallback returns the page size used before the viewport is known
func (t Table) Fallback(bp Breakpoint) int {
	c := t.For(bp)
	return clamp(c.FallbackItems, c.MinItems, c.MaxItems)
}

// Viewport is what the browser reports about its window. A zero Width or
// Height means the value was not reported.
type Viewport struct {
	Width  int
	Height int
}

// Breakpoint classifies the viewport; an unknown width is treated as mobile
func (v Viewport) Breakpoint() Breakpoint {
	return BreakpointForWidth(v.Width)
}

// PageSize picks the number of cards per page for v
func (t Table) PageSize(v Viewport) int {
	bp := v.Breakpoint()
	if v.Height <= 0 {
		return t.Fallback(bp)
	}
	return t.Compute(v.Height, bp)
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func clamp(v, lo, hi int) int {
	if v > hi {
		v = hi
	}
	if v < lo {
		v = lo
	}
	return v
}
