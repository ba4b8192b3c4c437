package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// ErrInUse is returned when a stage still has later stages built on it
var ErrInUse = errors.New("in use")

// dependents returns the jobs built directly on a stage job
func dependents(ctx context.Context, tx *sqlx.Tx, id int64, kind JobKind) ([]int64, JobKind, error) {
	var (
		ids   []int64
		err   error
		child JobKind
	)
	switch kind {
	case KindScan:
		child = KindDiff
		err = tx.SelectContext(ctx, &ids, `
			SELECT job_id FROM diffs WHERE source_scan_id = ? OR target_scan_id = ? ORDER BY job_id
		`, id, id)
	case KindDiff:
		child = KindBatchPlan
		err = tx.SelectContext(ctx, &ids, `SELECT job_id FROM batches WHERE diff_id = ? ORDER BY job_id`, id)
	case KindBatchPlan:
		child = KindCopy
		err = tx.SelectContext(ctx, &ids, `SELECT job_id FROM copies WHERE batch_id = ? ORDER BY job_id`, id)
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to find jobs depending on %s %d: %w", kind, id, err)
	}
	return ids, child, nil
}

// DeleteStage removes a stage job together with its rows (records, items,
// plan items, outcomes). Without cascade, a stage that later stages depend
// on is refused with ErrInUse; with cascade those stages go too. Running
// jobs are never removed. Returns the removed job ids, dependents first.
func (s *Store) DeleteStage(ctx context.Context, id int64, kind JobKind, cascade bool) ([]int64, error) {
	var removed []int64
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		removed = removed[:0]

		var j JobRecord
		if err := tx.GetContext(ctx, &j, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id); err != nil {
			return notFound(err, string(kind), id)
		}
		if j.Kind != kind {
			return fmt.Errorf("job %d is a %s job, not %s: %w", id, j.Kind, kind, ErrNotFound)
		}

		// levels[0] is the job itself, each next level depends on the previous
		type level struct {
			kind JobKind
			ids  []int64
		}
		levels := []level{{kind: kind, ids: []int64{id}}}
		for {
			last := levels[len(levels)-1]
			var next []int64
			var nextKind JobKind
			for _, pid := range last.ids {
				ids, child, err := dependents(ctx, tx, pid, last.kind)
				if err != nil {
					return err
				}
				next = append(next, ids...)
				nextKind = child
			}
			if len(next) == 0 {
				break
			}
			if !cascade {
				return fmt.Errorf("%s %d has %d dependent %s jobs %v: %w", kind, id, len(next), nextKind, next, ErrInUse)
			}
			levels = append(levels, level{kind: nextKind, ids: dedupe(next)})
		}

		for _, lv := range levels {
			for _, jid := range lv.ids {
				var status JobStatus
				if err := tx.GetContext(ctx, &status, `SELECT status FROM jobs WHERE id = ?`, jid); err != nil {
					return notFound(err, "job", jid)
				}
				if status == StatusRunning {
					return fmt.Errorf("%s job %d is running: %w", lv.kind, jid, ErrInUse)
				}
			}
		}

		for i := len(levels) - 1; i >= 0; i-- {
			lv := levels[i]
			for _, jid := range lv.ids {
				if lv.kind == KindBatchPlan {
					if _, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE batch_id = ?`, jid); err != nil {
						return fmt.Errorf("failed to delete runs of batch %d: %w", jid, err)
					}
				}
				if _, err := tx.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, jid); err != nil {
					return fmt.Errorf("failed to delete %s job %d: %w", lv.kind, jid, err)
				}
				removed = append(removed, jid)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
