package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/franz/stagehop/internal/store"
)

var scanCSVHeader = []string{"path", "size_bytes", "size_gb", "mtime"}

// WriteScanCSV writes the records of a scan as CSV sorted by path. Times are
// rendered in loc, UTC when nil.
func WriteScanCSV(w io.Writer, records []store.FileRecord, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}

	sorted := make([]store.FileRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].RelPath < sorted[j].RelPath
	})

	cw := csv.NewWriter(w)
	if err := cw.Write(scanCSVHeader); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}

	for _, r := range sorted {
		mtime := ""
		if r.Mtime > 0 {
			sec, frac := math.Modf(r.Mtime)
			mtime = time.Unix(int64(sec), int64(frac*1e9)).In(loc).Format("2006-01-02 15:04:05")
		}
		row := []string{
			r.RelPath,
			strconv.FormatUint(r.Size, 10),
			strconv.FormatFloat(float64(r.Size)/(1<<30), 'f', 6, 64),
			mtime,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}
