package diff

import "github.com/franz/stagehop/internal/store"

// CategoryTotals is the count and byte size of one category
type CategoryTotals struct {
	Count int
	Bytes uint64
}

// Summary aggregates comparison items per category
type Summary struct {
	Total      int
	Categories map[store.Category]CategoryTotals
}

// Summarize counts items and bytes per category. Sizes are the source size
// when present, else the target size.
func Summarize(items []store.ComparisonItem) Summary {
	s := Summary{
		Categories: map[store.Category]CategoryTotals{
			store.CategoryMissing:  {},
			store.CategorySame:     {},
			store.CategoryConflict: {},
			store.CategoryExtra:    {},
		},
	}

	for _, it := range items {
		t := s.Categories[it.Category]
		t.Count++
		t.Bytes += it.Size()
		s.Categories[it.Category] = t
		s.Total++
	}

	return s
}
