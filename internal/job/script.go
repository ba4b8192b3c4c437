package job

import (
	"context"
	"fmt"

	"github.com/franz/stagehop/internal/report"
	"github.com/franz/stagehop/internal/store"
	"github.com/franz/stagehop/internal/util"
)

// CopyScript resolves the enabled items of a batch into a standalone copy
// script for one leg. Items missing from the source inventory are left out.
func (o *Orchestrator) CopyScript(ctx context.Context, batchID int64, leg string) (*report.CopyScript, error) {
	cc, err := o.loadBatchContext(ctx, batchID)
	if err != nil {
		return nil, err
	}

	s := &report.CopyScript{BatchID: batchID}
	switch leg {
	case store.LegPrimaryToStaging:
		s.Label = fmt.Sprintf("%s -> staging", cc.primary.Name)
		s.DefaultSource, s.DefaultTarget = cc.primary.BasePath, o.stagingDir
	case store.LegStagingToSecondary:
		s.Label = fmt.Sprintf("staging -> %s", cc.secondary.Name)
		s.DefaultSource, s.DefaultTarget = o.stagingDir, cc.secondary.BasePath
	default:
		return nil, fmt.Errorf("unknown copy leg %q: %w", leg, util.ErrInvalidConfig)
	}

	items, err := o.store.ListEnabledPlanItems(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to load plan items: %w", err)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: batch %d", ErrNoEnabledItems, batchID)
	}

	files, _ := resolveItems(0, util.WarnLog, cc.inventory, items)
	for _, f := range files {
		s.Files = append(s.Files, report.ScriptFile{Path: f.RelPath, Size: f.Size})
	}
	if len(s.Files) == 0 {
		return nil, fmt.Errorf("%w: batch %d has no items in the source inventory", ErrNoEnabledItems, batchID)
	}
	return s, nil
}
