package preview

import "fmt"

// Pager does the page arithmetic for a file of Size bytes split into pages
// of PageSize bytes. Offsets are page starts.
type Pager struct {
	Size     int64
	PageSize int64
}

// last is the offset of the final page.
func (p Pager) last() int64 {
	if p.Size <= 0 || p.PageSize <= 0 {
		return 0
	}
	return ((p.Size - 1) / p.PageSize) * p.PageSize
}

func (p Pager) Next(offset int64) int64 {
	return min(offset+p.PageSize, p.last())
}

func (p Pager) Prev(offset int64) int64 {
	return max(0, offset-p.PageSize)
}

func (p Pager) HasNext(offset int64) bool { return offset+p.PageSize < p.Size }
func (p Pager) HasPrev(offset int64) bool { return offset > 0 }

// Page is the 1-based page number of offset.
func (p Pager) Page(offset int64) int64 {
	if p.PageSize <= 0 {
		return 1
	}
	return 1 + offset/p.PageSize
}

// Pages is the page count. An empty file still has one page.
func (p Pager) Pages() int64 {
	if p.Size <= 0 || p.PageSize <= 0 {
		return 1
	}
	return (p.Size + p.PageSize - 1) / p.PageSize
}

func (p Pager) Label(offset int64) string {
	return fmt.Sprintf("Page %d/%d", p.Page(offset), p.Pages())
}
