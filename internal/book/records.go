package book

import (
	"sort"

	"github.com/ygunayer/vs2pdf/internal/pageindex"
)

// PageRecord pairs a page label with the base URL its images are served from.
type PageRecord struct {
	Label   string
	BaseUrl string
}

// RecordSet keeps at most one record per page label. The first URL found for
// a label wins.
type RecordSet struct {
	byKey map[string]PageRecord
}

func NewRecordSet() *RecordSet {
	return &RecordSet{byKey: make(map[string]PageRecord)}
}

// Add returns false when the label is already known.
func (s *RecordSet) Add(label, baseUrl string) bool {
	key := pageindex.Normalize(label).Key()
	if _, exists := s.byKey[key]; exists {
		return false
	}
	s.byKey[key] = PageRecord{Label: label, BaseUrl: baseUrl}
	return true
}

func (s *RecordSet) Has(label string) bool {
	_, ok := s.byKey[pageindex.Normalize(label).Key()]
	return ok
}

func (s *RecordSet) Len() int {
	return len(s.byKey)
}

// Records returns every record in book order.
func (s *RecordSet) Records() []PageRecord {
	labels := make([]pageindex.Label, 0, len(s.byKey))
	for _, r := range s.byKey {
		labels = append(labels, pageindex.Normalize(r.Label))
	}
	// map iteration is random, give Order a deterministic scan order
	sort.Slice(labels, func(i, j int) bool { return labels[i].Raw < labels[j].Raw })

	ordered := pageindex.Order(labels)
	records := make([]PageRecord, 0, len(ordered))
	for _, l := range ordered {
		records = append(records, s.byKey[l.Key()])
	}
	return records
}
