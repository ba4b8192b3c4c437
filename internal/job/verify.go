package job

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/franz/stagehop/internal/store"
)

// VerifySampleLimit bounds the findings kept in a VerifyReport
const VerifySampleLimit = 20

// VerifyFinding is one file whose target copy does not match
type VerifyFinding struct {
	Path     string
	Expected uint64
	Actual   uint64
	Problem  string
}

// VerifyReport compares the copied outcomes of a copy job with its target
type VerifyReport struct {
	JobID      int64
	Leg        string
	DryRun     bool
	TargetBase string
	Checked    int
	OK         int
	Missing    int
	Mismatched int
	Samples    []VerifyFinding
}

// Clean reports whether every checked file was found with the right size
func (r *VerifyReport) Clean() bool {
	return r.Missing == 0 && r.Mismatched == 0
}

// Verify stats every copied file of a copy job at its target and compares
// sizes. Nothing is written.
func (o *Orchestrator) Verify(ctx context.Context, copyJobID int64, fs afero.Fs) (*VerifyReport, error) {
	cc, err := o.loadCopyContext(ctx, copyJobID)
	if err != nil {
		return nil, err
	}

	var base string
	switch cc.copy.Leg {
	case store.LegPrimaryToStaging:
		base = cc.copy.StagingDir
		if base == "" {
			base = filepath.Join(o.stagingDir, StagingDirName(copyJobID))
		}
	case store.LegStagingToSecondary:
		base = cc.secondary.BasePath
	default:
		return nil, fmt.Errorf("unknown copy leg %q", cc.copy.Leg)
	}

	outcomes, err := o.store.ListOutcomes(ctx, copyJobID)
	if err != nil {
		return nil, fmt.Errorf("failed to load outcomes: %w", err)
	}

	report := &VerifyReport{
		JobID:      copyJobID,
		Leg:        cc.copy.Leg,
		DryRun:     cc.copy.DryRun,
		TargetBase: base,
	}
	sample := func(f VerifyFinding) {
		if len(report.Samples) < VerifySampleLimit {
			report.Samples = append(report.Samples, f)
		}
	}

	for _, oc := range outcomes {
		if oc.Status != store.OutcomeCopied {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		report.Checked++

		info, err := fs.Stat(filepath.Join(base, filepath.FromSlash(oc.Path)))
		switch {
		case errors.Is(err, os.ErrNotExist):
			report.Missing++
			sample(VerifyFinding{Path: oc.Path, Expected: oc.Size, Problem: "missing"})
		case err != nil:
			report.Missing++
			sample(VerifyFinding{Path: oc.Path, Expected: oc.Size, Problem: err.Error()})
		case uint64(info.Size()) != oc.Size:
			report.Mismatched++
			sample(VerifyFinding{Path: oc.Path, Expected: oc.Size, Actual: uint64(info.Size()), Problem: "size mismatch"})
		default:
			report.OK++
		}
	}

	return report, nil
}
