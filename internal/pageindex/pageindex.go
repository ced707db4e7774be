// Package pageindex classifies page labels and defines the order pages take in
// the assembled book: front matter (roman or unnumbered) first, then the
// numbered body ascending.
package pageindex

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

type Kind int

const (
	Integer Kind = iota
	Roman
	Opaque
)

func (k Kind) String() string {
	switch k {
	case Integer:
		return "integer"
	case Roman:
		return "roman"
	default:
		return "opaque"
	}
}

// Label is a normalized page label. Value is only meaningful for Integer and
// Roman labels.
type Label struct {
	Kind  Kind
	Raw   string
	Value int
}

var digitsPattern = regexp.MustCompile(`^[0-9]+$`)

// canonical roman numerals up to 4999
var romanPattern = regexp.MustCompile(`^m{0,4}(cm|cd|d?c{0,3})(xc|xl|l?x{0,3})(ix|iv|v?i{0,3})$`)

var romanValues = map[byte]int{'i': 1, 'v': 5, 'x': 10, 'l': 50, 'c': 100, 'd': 500, 'm': 1000}

// Normalize classifies a file stem as an integer, a roman numeral or an opaque
// front matter label such as "cover".
func Normalize(stem string) Label {
	stem = strings.TrimSpace(stem)

	if digitsPattern.MatchString(stem) {
		if n, err := strconv.Atoi(stem); err == nil {
			return Label{Kind: Integer, Raw: stem, Value: n}
		}
	}

	if n, ok := ParseRoman(stem); ok {
		return Label{Kind: Roman, Raw: stem, Value: n}
	}

	return Label{Kind: Opaque, Raw: stem}
}

// ParseRoman returns the value of a canonical roman numeral, case-insensitive.
func ParseRoman(s string) (int, bool) {
	lower := strings.ToLower(s)
	if lower == "" || !romanPattern.MatchString(lower) {
		return 0, false
	}

	total := 0
	for i := 0; i < len(lower); i++ {
		v := romanValues[lower[i]]
		if i+1 < len(lower) && v < romanValues[lower[i+1]] {
			total -= v
		} else {
			total += v
		}
	}
	return total, true
}

// Key is the canonical form of the label. Two labels are the same page iff
// their keys are equal.
func (l Label) Key() string {
	switch l.Kind {
	case Integer:
		return strconv.Itoa(l.Value)
	case Roman:
		return strings.ToLower(l.Raw)
	default:
		return l.Raw
	}
}

func (l Label) String() string {
	return l.Raw
}

func (l Label) IsNumeric() bool {
	return l.Kind == Integer
}

// Order places every non-integer label before every integer label. Non-integer
// labels keep their relative order, except that roman labels are re-sequenced
// by value among the positions roman labels occupy. Integers sort ascending.
func Order(labels []Label) []Label {
	front := make([]Label, 0, len(labels))
	body := make([]Label, 0, len(labels))

	for _, l := range labels {
		if l.Kind == Integer {
			body = append(body, l)
		} else {
			front = append(front, l)
		}
	}

	var slots []int
	var romans []Label
	for i, l := range front {
		if l.Kind == Roman {
			slots = append(slots, i)
			romans = append(romans, l)
		}
	}
	sort.SliceStable(romans, func(i, j int) bool {
		return romans[i].Value < romans[j].Value
	})
	for i, slot := range slots {
		front[slot] = romans[i]
	}

	sort.SliceStable(body, func(i, j int) bool {
		return body[i].Value < body[j].Value
	})

	return append(front, body...)
}

// OrderStems normalizes and orders raw stems, returning the raw stems.
func OrderStems(stems []string) []string {
	labels := make([]Label, len(stems))
	for i, s := range stems {
		labels[i] = Normalize(s)
	}

	ordered := Order(labels)
	out := make([]string, len(ordered))
	for i, l := range ordered {
		out[i] = l.Raw
	}
	return out
}

// CountNonNumeric returns how many labels belong to the front matter.
func CountNonNumeric(labels []Label) int {
	n := 0
	for _, l := range labels {
		if l.Kind != Integer {
			n++
		}
	}
	return n
}
