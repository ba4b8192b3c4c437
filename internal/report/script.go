package report

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/template"
	"time"
)

// CopyScript describes a standalone bash script that copies one batch
// with rsync, outside of hop
type CopyScript struct {
	BatchID       int64
	Label         string
	DefaultSource string
	DefaultTarget string
	Files         []ScriptFile
	Generated     time.Time
}

// ScriptFile is one path relative to the script's source root
type ScriptFile struct {
	Path string
	Size uint64
}

// ScriptName is the file name a batch script is saved under
func ScriptName(batchID int64) string {
	return fmt.Sprintf("copy_batch_%d.sh", batchID)
}

// ShellQuote single-quotes s for bash
func ShellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

var scriptTmpl = template.Must(template.New("script").Funcs(template.FuncMap{
	"quote": ShellQuote,
}).Parse(`#!/usr/bin/env bash
# ============================================================
# Copy script - Batch #{{.BatchID}} ({{.Label}})
# Generated: {{.Generated}}
# Files: {{.Count}}, Total size: {{.Size}}
# ============================================================
#
# Usage:
#   bash {{.Name}} <source_root> <dest_root>
#
# Example:
#   bash {{.Name}} {{quote .DefaultSource}} {{quote .DefaultTarget}}
#
# Each file is copied with rsync into the same relative path under
# dest_root. Missing and failed files are listed at the end.
# ============================================================

set -euo pipefail

SRC="${1:?"Usage: $0 <source_root> <dest_root>"}"
DST="${2:?"Usage: $0 <source_root> <dest_root>"}"

SRC="${SRC%/}"
DST="${DST%/}"

if [ ! -d "$SRC" ]; then
  echo "ERROR: Source directory does not exist: $SRC"
  exit 1
fi

if [ ! -d "$DST" ]; then
  echo "ERROR: Destination directory does not exist: $DST"
  exit 1
fi

FILES=(
{{- range .Files}}
  {{quote .Path}}
{{- end}}
)

TOTAL=${#FILES[@]}
COPIED=0
FAILED=0
FAILED_LIST=()

echo "========================================"
echo {{quote (printf "Batch #%d - %s" .BatchID .Label)}}
echo "Source: $SRC"
echo "Dest:   $DST"
echo "Files:  $TOTAL ({{.Size}})"
echo "========================================"
echo ""

for FILE in "${FILES[@]}"; do
  COPIED=$((COPIED + 1))
  SRC_PATH="${SRC}/${FILE}"
  DST_PATH="${DST}/${FILE}"

  printf "[%d/%d] %s ... " "$COPIED" "$TOTAL" "$FILE"

  if [ ! -f "$SRC_PATH" ]; then
    echo "SKIP (source not found)"
    FAILED=$((FAILED + 1))
    FAILED_LIST+=("$FILE (source not found)")
    continue
  fi

  mkdir -p "$(dirname "$DST_PATH")"

  if rsync -a --inplace "$SRC_PATH" "$DST_PATH" 2>/dev/null; then
    echo "OK"
  else
    echo "FAILED"
    FAILED=$((FAILED + 1))
    FAILED_LIST+=("$FILE")
  fi
done

echo ""
echo "========================================"
echo "Done: $((COPIED - FAILED))/$TOTAL copied, $FAILED failed"
echo "========================================"

if [ $FAILED -gt 0 ]; then
  echo ""
  echo "Failed files:"
  for F in "${FAILED_LIST[@]}"; do
    echo "  - $F"
  done
  exit 1
fi
`))

// WriteCopyScript renders the script with files sorted by path
func WriteCopyScript(w io.Writer, s CopyScript) error {
	if len(s.Files) == 0 {
		return fmt.Errorf("no files to copy in batch %d", s.BatchID)
	}

	files := make([]ScriptFile, len(s.Files))
	copy(files, s.Files)
	sort.SliceStable(files, func(i, j int) bool {
		return files[i].Path < files[j].Path
	})

	var total uint64
	for _, f := range files {
		total += f.Size
	}
	generated := s.Generated
	if generated.IsZero() {
		generated = time.Now()
	}

	data := struct {
		CopyScript
		Name      string
		Count     int
		Size      string
		Generated string
	}{
		CopyScript: s,
		Name:       ScriptName(s.BatchID),
		Count:      len(files),
		Size:       fmt.Sprintf("%.2f GB", float64(total)/(1<<30)),
		Generated:  generated.Format("2006-01-02 15:04:05"),
	}
	data.Files = files

	if err := scriptTmpl.Execute(w, data); err != nil {
		return fmt.Errorf("failed to render copy script: %w", err)
	}
	return nil
}
