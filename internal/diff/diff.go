// Package diff reconciles two inventories by normalized path and classifies
// every path as missing, same, conflict or extra.
package diff

import (
	"math"
	"sort"

	"github.com/franz/stagehop/internal/pathnorm"
	"github.com/franz/stagehop/internal/store"
)

// MtimeTolerance is the largest modification-time difference, in seconds,
// still treated as equal. Filesystems round mtimes differently.
const MtimeTolerance = 2.0

// DefaultProgressEvery is how many keys are classified between progress callbacks
const DefaultProgressEvery = 100

// Options controls a comparison
type Options struct {
	// Progress is called with the number of classified keys and the total
	Progress      func(done, total int)
	ProgressEvery int
}

// Stats describes what a comparison saw besides its items
type Stats struct {
	SourceRecords  int
	TargetRecords  int
	SourceIgnored  int
	TargetIgnored  int
	SourceShadowed int // duplicates of an already-seen normalized path
	TargetShadowed int
}

// Compare classifies the union of normalized paths of both inventories.
// Items are returned sorted by path. Neither inventory is modified.
func Compare(source, target store.Inventory, opts Options) ([]store.ComparisonItem, *Stats) {
	stats := &Stats{
		SourceRecords: len(source.Records),
		TargetRecords: len(target.Records),
	}

	sourceFiles := index(source, &stats.SourceIgnored, &stats.SourceShadowed)
	targetFiles := index(target, &stats.TargetIgnored, &stats.TargetShadowed)

	keys := make([]string, 0, len(sourceFiles)+len(targetFiles))
	for k := range sourceFiles {
		keys = append(keys, k)
	}
	for k := range targetFiles {
		if _, ok := sourceFiles[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	every := opts.ProgressEvery
	if every <= 0 {
		every = DefaultProgressEvery
	}
	total := len(keys)

	items := make([]store.ComparisonItem, 0, total)
	for i, key := range keys {
		src, inSource := sourceFiles[key]
		dst, inTarget := targetFiles[key]

		item := store.ComparisonItem{Path: key}
		if inSource {
			item.SourceSize, item.SourceMtime = ptr(src.Size), ptr(src.Mtime)
		}
		if inTarget {
			item.TargetSize, item.TargetMtime = ptr(dst.Size), ptr(dst.Mtime)
		}
		item.Category = classify(src, dst, inSource, inTarget)
		items = append(items, item)

		if opts.Progress != nil && (i+1)%every == 0 {
			opts.Progress(i+1, total)
		}
	}

	if opts.Progress != nil && total%every != 0 {
		opts.Progress(total, total)
	}

	return items, stats
}

func classify(src, dst *store.FileRecord, inSource, inTarget bool) store.Category {
	switch {
	case inSource && !inTarget:
		return store.CategoryMissing
	case !inSource && inTarget:
		return store.CategoryExtra
	case src.Size != dst.Size:
		return store.CategoryConflict
	case math.Abs(src.Mtime-dst.Mtime) > MtimeTolerance:
		return store.CategoryConflict
	default:
		return store.CategorySame
	}
}

// Key is the normalized path a record is compared under. The record's own
// root label takes precedence over the inventory root.
func Key(rec store.FileRecord, inventoryRoot string) string {
	root := rec.RootLabel
	if root == "" {
		root = inventoryRoot
	}
	return pathnorm.Normalize(rec.RelPath, root)
}

func ptr[T any](v T) *T {
	return &v
}

// index maps normalized path to record. The first record per key wins.
func index(inv store.Inventory, ignored, shadowed *int) map[string]*store.FileRecord {
	files := make(map[string]*store.FileRecord, len(inv.Records))
	for i := range inv.Records {
		rec := &inv.Records[i]
		if pathnorm.IsIgnored(rec.RelPath) {
			*ignored++
			continue
		}

		key := Key(*rec, inv.Root)
		if key == "" {
			*ignored++
			continue
		}

		if _, exists := files[key]; exists {
			*shadowed++
			continue
		}
		files[key] = rec
	}
	return files
}
