package plan

import (
	"reflect"
	"testing"

	"github.com/franz/stagehop/internal/pathnorm"
	"github.com/franz/stagehop/internal/store"
)

func item(path string, size uint64, cat store.Category) store.ComparisonItem {
	s := size
	if cat == store.CategoryExtra {
		return store.ComparisonItem{Path: path, TargetSize: &s, Category: cat}
	}
	return store.ComparisonItem{Path: path, SourceSize: &s, Category: cat}
}

func paths(items []store.TransferPlanItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Path
	}
	return out
}

func TestPlanCategorySelection(t *testing.T) {
	items := []store.ComparisonItem{
		item("missing", 1, store.CategoryMissing),
		item("conflict", 2, store.CategoryConflict),
		item("extra", 3, store.CategoryExtra),
		item("same", 4, store.CategorySame),
	}

	testCases := []struct {
		name     string
		policy   Policy
		expected []string
	}{
		{"missing only", Policy{}, []string{"missing"}},
		{"with conflicts", Policy{IncludeConflicts: true}, []string{"missing", "conflict"}},
		{"with extra", Policy{IncludeExtra: true}, []string{"missing", "extra"}},
		{"everything but same", Policy{IncludeConflicts: true, IncludeExtra: true}, []string{"missing", "conflict", "extra"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := paths(Plan(items, tc.policy, nil))
			if !reflect.DeepEqual(got, tc.expected) {
				t.Errorf("Plan = %v, expected %v", got, tc.expected)
			}
		})
	}
}

func TestPlanExcludesThumbsDb(t *testing.T) {
	items := []store.ComparisonItem{
		item("Movies/Thumbs.db", 1, store.CategoryMissing),
		item("Movies/film.mkv", 2, store.CategoryMissing),
	}

	got := paths(Plan(items, Policy{ExcludePatterns: pathnorm.DefaultExcludePatterns}, nil))
	if !reflect.DeepEqual(got, []string{"Movies/film.mkv"}) {
		t.Errorf("Plan = %v, expected Thumbs.db to be excluded", got)
	}
}

func TestPlanExcludesDirectoryPatterns(t *testing.T) {
	items := []store.ComparisonItem{
		item("Extras/making-of/part1.mkv", 5, store.CategoryMissing),
		item("Extras/trailer.mkv", 4, store.CategoryMissing),
		item(".Trash-1000/files/old.mkv", 3, store.CategoryMissing),
		item("Filmy/keep.mkv", 2, store.CategoryMissing),
	}
	got := paths(Plan(items, Policy{ExcludePatterns: append([]string{"Extras/*"}, pathnorm.DefaultExcludePatterns...)}, nil))
	if !reflect.DeepEqual(got, []string{"Filmy/keep.mkv"}) {
		t.Errorf("Plan = %v, expected only Filmy/keep.mkv", got)
	}
}

func TestPlanOrderedBySizeStable(t *testing.T) {
	items := []store.ComparisonItem{
		item("big", 300, store.CategoryMissing),
		item("tie-first", 100, store.CategoryMissing),
		item("small", 10, store.CategoryMissing),
		item("tie-second", 100, store.CategoryMissing),
		item("extra", 50, store.CategoryExtra),
	}

	planned := Plan(items, Policy{IncludeExtra: true}, nil)
	expected := []string{"small", "extra", "tie-first", "tie-second", "big"}
	if got := paths(planned); !reflect.DeepEqual(got, expected) {
		t.Errorf("Plan = %v, expected %v", got, expected)
	}

	for i := 1; i < len(planned); i++ {
		if planned[i-1].Size > planned[i].Size {
			t.Errorf("sizes not ascending at %d: %d > %d", i, planned[i-1].Size, planned[i].Size)
		}
	}
	for _, p := range planned {
		if !p.Enabled {
			t.Errorf("%s: expected enabled", p.Path)
		}
	}
	if planned[1].Size != 50 || planned[1].Category != store.CategoryExtra {
		t.Errorf("extra item should take its target size: %+v", planned[1])
	}
}

func TestPlanDoesNotMutateInput(t *testing.T) {
	items := []store.ComparisonItem{
		item("b", 2, store.CategoryMissing),
		item("a", 1, store.CategoryMissing),
		item("x.tmp", 1, store.CategoryMissing),
	}
	Plan(items, Policy{ExcludePatterns: []string{"*.tmp"}}, nil)
	if items[0].Path != "b" || items[1].Path != "a" || items[2].Path != "x.tmp" {
		t.Errorf("input reordered: %v %v %v", items[0].Path, items[1].Path, items[2].Path)
	}
}

func TestPlanProgressSteps(t *testing.T) {
	items := []store.ComparisonItem{
		item("a", 1, store.CategoryMissing),
		item("b.tmp", 1, store.CategoryMissing),
		item("c", 1, store.CategorySame),
	}

	type call struct {
		step Step
		n    int
	}
	var calls []call
	Plan(items, Policy{ExcludePatterns: []string{"*.tmp"}}, func(s Step, n int) {
		calls = append(calls, call{s, n})
	})

	expected := []call{{StepCategory, 2}, {StepExclude, 1}, {StepSort, 1}}
	if !reflect.DeepEqual(calls, expected) {
		t.Errorf("progress = %v, expected %v", calls, expected)
	}
}

func TestPlanNeverTruncates(t *testing.T) {
	var items []store.ComparisonItem
	for i := 0; i < 50; i++ {
		items = append(items, item(string(rune('a'+i%26))+string(rune('a'+i/26)), 1<<40, store.CategoryMissing))
	}

	planned := Plan(items, Policy{}, nil)
	if len(planned) != 50 {
		t.Errorf("expected all 50 items, got %d", len(planned))
	}

	s := Summarize(planned, 1<<30)
	if s.Fits {
		t.Error("plan larger than staging should not fit")
	}
	if s.Enabled != 50 || s.EnabledBytes != 50<<40 {
		t.Errorf("unexpected summary: %+v", s)
	}
}

func TestSummarizeSkipsDisabled(t *testing.T) {
	planned := []store.TransferPlanItem{
		{Path: "a", Size: 10, Enabled: true},
		{Path: "b", Size: 20, Enabled: false},
	}
	s := Summarize(planned, 15)
	if s.Items != 2 || s.Enabled != 1 || s.EnabledBytes != 10 || !s.Fits {
		t.Errorf("unexpected summary: %+v", s)
	}
}
