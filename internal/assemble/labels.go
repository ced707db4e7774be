package assemble

import (
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

type LabelStyle int

const (
	// NoNumber shows only the prefix
	NoNumber LabelStyle = iota
	RomanLower
	Arabic
)

// LabelRange gives the pages from Start (0-based) on a shared numbering.
type LabelRange struct {
	Start  int
	Length int
	Style  LabelStyle
	Prefix string
	First  int
}

// LabelRanges numbers a book whose first nonNumeric pages are front matter:
// the first page is "Cover", the rest of the front matter is numbered i, ii,
// ... and the body 1, 2, ... Empty ranges are left out, and a book without
// front matter keeps the default numbering.
func LabelRanges(nonNumeric, pageCount int) []LabelRange {
	if nonNumeric <= 0 || pageCount <= 0 {
		return nil
	}
	if nonNumeric > pageCount {
		nonNumeric = pageCount
	}

	candidates := []LabelRange{
		{Start: 0, Length: 1, Style: NoNumber, Prefix: "Cover"},
		{Start: 1, Length: nonNumeric - 1, Style: RomanLower, First: 1},
		{Start: nonNumeric, Length: pageCount - nonNumeric, Style: Arabic, First: 1},
	}

	var ranges []LabelRange
	for _, r := range candidates {
		if r.Length > 0 {
			ranges = append(ranges, r)
		}
	}
	return ranges
}

// pageLabelsDict renders the ranges as a /PageLabels number tree.
func pageLabelsDict(ranges []LabelRange) types.Dict {
	nums := types.Array{}
	for _, r := range ranges {
		d := types.Dict{}
		switch r.Style {
		case RomanLower:
			d["S"] = types.Name("r")
		case Arabic:
			d["S"] = types.Name("D")
		}
		if r.Prefix != "" {
			d["P"] = types.StringLiteral(r.Prefix)
		}
		if r.Style != NoNumber && r.First > 1 {
			d["St"] = types.Integer(r.First)
		}
		nums = append(nums, types.Integer(r.Start), d)
	}
	return types.Dict{"Nums": nums}
}
