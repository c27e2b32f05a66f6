/*
resolve.go - Applies a reviewer's duplicate decision

PURPOSE:
  Given the id to keep and the ids to delete, remove the redundant student
  records, optionally first merging their data into the kept record, then
  drop cached rosters for every batch that was touched.

RESOLUTION STEPS (Resolve):
  1. deleteIds must be non-empty and must not contain keepId
  2. keepId and every deleteId must exist
  3. Inside one store transaction:
     - MergeData: fill the kept record's nil fields from the deleted ones
     - delete the deleteIds
  4. Invalidate roster caches for batches of kept and deleted records.
     Cache failures are logged; the deletion already committed.

BATCH RESOLUTION (BatchResolve):
  Groups are processed one after another. A failing group is recorded in
  FailedGroups and skipped; the rest still run. Partial success is the
  normal outcome, so it is a return value, not an error.

SEE ALSO:
  - detect.go: produces the groups reviewers resolve
  - cache/redis.go: BatchInvalidator implementation
*/
package duplicates

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/warp/enrollment-engine/domain"
)

// BatchInvalidator drops cached data derived from the given batches.
type BatchInvalidator interface {
	InvalidateBatches(ctx context.Context, batchIDs []string) error
}

// Resolution is one reviewer decision.
type Resolution struct {
	KeepID    string
	DeleteIDs []string
	MergeData bool
}

// Result describes what one Resolve call did.
type Result struct {
	KeepID         string
	DeletedIDs     []string
	MergedFields   []string
	TouchedBatches []string
}

// GroupFailure records why one group in a batch could not be resolved.
type GroupFailure struct {
	KeepID string `json:"keep_id"`
	Error  string `json:"error"`
}

// BatchResult tallies a BatchResolve run.
type BatchResult struct {
	ResolvedCount int            `json:"resolved_count"`
	FailedGroups  []GroupFailure `json:"failed_groups"`
}

// Resolver deletes duplicate students.
type Resolver struct {
	Store  domain.TxStudentStore
	Cache  BatchInvalidator
	Logger *zap.Logger
}

func NewResolver(store domain.TxStudentStore, cache BatchInvalidator, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{Store: store, Cache: cache, Logger: logger}
}

// Resolve applies one decision.
func (r *Resolver) Resolve(ctx context.Context, res Resolution) (*Result, error) {
	if len(res.DeleteIDs) == 0 {
		return nil, domain.RequiredParameter("at least one record to delete is required", "deleteIds")
	}
	for _, id := range res.DeleteIDs {
		if id == res.KeepID {
			return nil, domain.InvalidParameter("keepId", res.KeepID, "cannot delete the record being kept")
		}
	}

	result := &Result{KeepID: res.KeepID}
	err := r.Store.WithTx(ctx, func(tx domain.StudentStore) error {
		keep, err := tx.GetStudent(ctx, res.KeepID)
		if err != nil {
			return fmt.Errorf("failed to load student %s: %w", res.KeepID, err)
		}
		if keep == nil {
			return domain.NotFound(domain.EntityStudent, "record to keep not found", res.KeepID)
		}

		var (
			donors  []domain.Student
			missing []string
		)
		for _, id := range res.DeleteIDs {
			s, err := tx.GetStudent(ctx, id)
			if err != nil {
				return fmt.Errorf("failed to load student %s: %w", id, err)
			}
			if s == nil {
				missing = append(missing, id)
				continue
			}
			donors = append(donors, *s)
		}
		if len(missing) > 0 {
			return domain.NotFound(domain.EntityStudent, "records to delete not found", missing...)
		}

		if res.MergeData {
			merged, filled := MergeInto(*keep, donors...)
			if len(filled) > 0 {
				if err := tx.UpdateStudent(ctx, merged); err != nil {
					return fmt.Errorf("failed to merge into %s: %w", keep.ID, err)
				}
				result.MergedFields = filled
			}
		}

		if err := tx.DeleteStudents(ctx, res.DeleteIDs); err != nil {
			return fmt.Errorf("failed to delete duplicates: %w", err)
		}

		result.TouchedBatches = touchedBatches(append(donors, *keep))
		return nil
	})
	if err != nil {
		return nil, err
	}

	result.DeletedIDs = append([]string(nil), res.DeleteIDs...)
	r.revalidate(ctx, result.TouchedBatches)

	r.Logger.Info("resolved duplicate students",
		zap.String("keep_id", res.KeepID),
		zap.Strings("deleted_ids", res.DeleteIDs),
		zap.Strings("merged_fields", result.MergedFields),
	)
	return result, nil
}

// BatchResolve applies each decision independently and in order.
func (r *Resolver) BatchResolve(ctx context.Context, groups []Resolution) BatchResult {
	out := BatchResult{FailedGroups: []GroupFailure{}}
	for _, g := range groups {
		if _, err := r.Resolve(ctx, g); err != nil {
			r.Logger.Warn("duplicate group not resolved",
				zap.String("keep_id", g.KeepID),
				zap.Error(err),
			)
			out.FailedGroups = append(out.FailedGroups, GroupFailure{KeepID: g.KeepID, Error: err.Error()})
			continue
		}
		out.ResolvedCount++
	}
	return out
}

func (r *Resolver) revalidate(ctx context.Context, batchIDs []string) {
	if r.Cache == nil || len(batchIDs) == 0 {
		return
	}
	if err := r.Cache.InvalidateBatches(ctx, batchIDs); err != nil {
		r.Logger.Error("failed to invalidate batch caches",
			zap.Strings("batch_ids", batchIDs),
			zap.Error(err),
		)
	}
}

func touchedBatches(students []domain.Student) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, s := range students {
		if s.BatchID != nil && !seen[*s.BatchID] {
			seen[*s.BatchID] = true
			ids = append(ids, *s.BatchID)
		}
	}
	sort.Strings(ids)
	return ids
}
