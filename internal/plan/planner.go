// Package plan turns the result of a diff into an ordered transfer plan.
package plan

import (
	"sort"

	"github.com/franz/stagehop/internal/pathnorm"
	"github.com/franz/stagehop/internal/store"
)

// Step names a planning sub-step reported through the progress callback
type Step string

const (
	StepCategory Step = "category"
	StepExclude  Step = "exclude"
	StepSort     Step = "sort"
)

// Policy selects which comparison items enter a plan
type Policy struct {
	IncludeConflicts bool
	IncludeExtra     bool
	ExcludePatterns  []string
}

// Plan selects items by category, drops excluded paths and orders the rest by
// ascending size. Every returned item is enabled. The input is not modified.
//
// progress, if set, is called after each step with the number of items left.
func Plan(items []store.ComparisonItem, policy Policy, progress func(Step, int)) []store.TransferPlanItem {
	report := func(step Step, n int) {
		if progress != nil {
			progress(step, n)
		}
	}

	selected := make([]store.ComparisonItem, 0, len(items))
	for _, it := range items {
		if policy.includes(it.Category) {
			selected = append(selected, it)
		}
	}
	report(StepCategory, len(selected))

	if len(policy.ExcludePatterns) > 0 {
		excludes := pathnorm.NewMatcher(policy.ExcludePatterns)
		kept := selected[:0]
		for _, it := range selected {
			if !excludes.Match(it.Path) {
				kept = append(kept, it)
			}
		}
		selected = kept
	}
	report(StepExclude, len(selected))

	sort.SliceStable(selected, func(i, j int) bool {
		return selected[i].Size() < selected[j].Size()
	})
	report(StepSort, len(selected))

	planned := make([]store.TransferPlanItem, len(selected))
	for i, it := range selected {
		planned[i] = store.TransferPlanItem{
			Path:     it.Path,
			Size:     it.Size(),
			Category: it.Category,
			Enabled:  true,
		}
	}
	return planned
}

func (p Policy) includes(c store.Category) bool {
	switch c {
	case store.CategoryMissing:
		return true
	case store.CategoryConflict:
		return p.IncludeConflicts
	case store.CategoryExtra:
		return p.IncludeExtra
	default:
		return false
	}
}

// Summary describes a plan against the free space of the staging store
type Summary struct {
	Items        int
	Enabled      int
	EnabledBytes uint64
	StagingFree  uint64
	Fits         bool
}

// Summarize totals the enabled items. Fits is informational; plans are never
// cut down to the staging capacity.
func Summarize(items []store.TransferPlanItem, stagingFree uint64) Summary {
	s := Summary{Items: len(items), StagingFree: stagingFree}
	for _, it := range items {
		if it.Enabled {
			s.Enabled++
			s.EnabledBytes += it.Size
		}
	}
	s.Fits = s.EnabledBytes <= stagingFree
	return s
}
