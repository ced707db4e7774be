package assemble

import (
	"sort"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/ygunayer/vs2pdf/internal/book"
	"github.com/ztrue/tracerr"
)

// Node is one outline item. Page is 1-based.
type Node struct {
	Title    string
	Level    int
	Page     int
	Children []*Node
}

// BuildOutline nests the flat table of contents. Entries are ordered by
// position, ties keep the order they were listed in. The parent of an entry is
// the latest entry with a smaller level, so an entry that skips a level hangs
// off the nearest shallower one. An entry whose position can't be parsed fails
// the whole outline.
func BuildOutline(entries []book.TocEntry) ([]*Node, error) {
	type positioned struct {
		entry book.TocEntry
		pos   int
	}

	sorted := make([]positioned, 0, len(entries))
	for _, e := range entries {
		pos, err := e.Position()
		if err != nil {
			return nil, tracerr.Wrap(err)
		}
		sorted = append(sorted, positioned{entry: e, pos: pos})
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].pos != sorted[j].pos {
			return sorted[i].pos < sorted[j].pos
		}
		return sorted[i].entry.Index < sorted[j].entry.Index
	})

	var roots []*Node
	parents := map[int]*Node{}

	for _, p := range sorted {
		level := p.entry.Level
		if level < 1 {
			level = 1
		}
		node := &Node{Title: p.entry.Title, Level: level, Page: p.pos + 1}

		var parent *Node
		for l := level - 1; l >= 1; l-- {
			if n, ok := parents[l]; ok {
				parent = n
				break
			}
		}

		if parent == nil {
			roots = append(roots, node)
		} else {
			parent.Children = append(parent.Children, node)
		}

		parents[level] = node
		for l := range parents {
			if l > level {
				delete(parents, l)
			}
		}
	}

	return roots, nil
}

// Bookmarks converts the outline to pdfcpu bookmarks. Pages past the end of
// the document point at the last page.
func Bookmarks(nodes []*Node, pageCount int) []pdfcpu.Bookmark {
	if len(nodes) == 0 {
		return nil
	}

	bms := make([]pdfcpu.Bookmark, len(nodes))
	for i, n := range nodes {
		page := n.Page
		if page > pageCount {
			page = pageCount
		}
		if page < 1 {
			page = 1
		}
		bms[i] = pdfcpu.Bookmark{
			Title:    n.Title,
			PageFrom: page,
			Kids:     Bookmarks(n.Children, pageCount),
		}
	}
	return bms
}

// Count returns the number of items in the outline.
func Count(nodes []*Node) int {
	n := 0
	for _, node := range nodes {
		n += 1 + Count(node.Children)
	}
	return n
}
