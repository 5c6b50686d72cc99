package guests

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/uptrace/bun"

	"github.com/lysyi3m/podcast-influence-tracker/app/database"
	"github.com/lysyi3m/podcast-influence-tracker/app/metrics"
)

// DependentTables hold a guest_id that must follow a guest into its merge master.
var DependentTables = []string{"opportunities", "appearances", "claim_requests", "guest_notes"}

const (
	ReasonNotFound      = "guest not found"
	ReasonAlreadyMerged = "duplicate already merged"
	ReasonMasterMerged  = "master is merged"
	ReasonSameGuest     = "cannot merge a guest into itself"
)

// MergeResult reports one merge. Lookup problems are results, not errors, so a
// batch can record them and move on.
type MergeResult struct {
	Success           bool             `json:"success"`
	Error             string           `json:"error,omitempty"`
	DryRun            bool             `json:"dry_run"`
	MasterID          int64            `json:"master_id"`
	DuplicateID       int64            `json:"duplicate_id"`
	Updates           Updates          `json:"updates,omitempty"`
	FieldsTransferred []string         `json:"fields_transferred"`
	RepointedRows     map[string]int64 `json:"repointed_rows,omitempty"`
	QualityScore      int              `json:"quality_score,omitempty"`
}

type mergeRefused struct{ reason string }

func (e mergeRefused) Error() string { return e.reason }

// Engine finds and merges duplicate guests.
type Engine struct {
	db     *database.DB
	guests *database.GuestRepository
	now    func() time.Time
}

func NewEngine(db *database.DB, guests *database.GuestRepository) *Engine {
	return &Engine{db: db, guests: guests, now: time.Now}
}

// ExecuteMerge folds duplicate into master. In dry-run mode nothing is written and
// the result carries the updates and row counts a live merge would produce.
// A duplicate can be consumed only once; a second call reports ReasonAlreadyMerged.
func (e *Engine) ExecuteMerge(ctx context.Context, masterID, duplicateID int64, dryRun bool) (MergeResult, error) {
	result := MergeResult{MasterID: masterID, DuplicateID: duplicateID, DryRun: dryRun, FieldsTransferred: []string{}}

	err := e.db.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		master, duplicate, err := e.loadPair(ctx, tx, masterID, duplicateID)
		if err != nil {
			return err
		}

		updates := SmartMerge(master, duplicate)
		result.Updates = updates
		result.FieldsTransferred = updates.Fields()

		if dryRun {
			result.RepointedRows, err = countDependents(ctx, tx, duplicateID)
			if err != nil {
				return err
			}
			merged := *master
			Apply(&merged, updates)
			result.QualityScore = CalculateQualityScore(&merged)
			return nil
		}

		now := database.UTC(e.now())

		result.RepointedRows, err = repointDependents(ctx, tx, masterID, duplicateID)
		if err != nil {
			return err
		}

		dupHistory := append(duplicate.MergeHistory, database.MergeEvent{
			MergedAt:          now,
			Action:            database.MergeActionMergedInto,
			OtherGuestID:      masterID,
			FieldsTransferred: result.FieldsTransferred,
			RepointedRows:     result.RepointedRows,
		})
		res, err := tx.NewUpdate().Model((*database.Guest)(nil)).
			Set("is_merged = ?", true).
			Set("merged_into_guest_id = ?", masterID).
			Set("merge_history = ?", dupHistory).
			Set("updated_at = ?", now).
			Where("id = ?", duplicateID).
			Where("is_merged = ?", false).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to mark guest merged: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return mergeRefused{ReasonAlreadyMerged}
		}

		Apply(master, updates)
		master.MergeHistory = append(master.MergeHistory, database.MergeEvent{
			MergedAt:          now,
			Action:            database.MergeActionAbsorbed,
			OtherGuestID:      duplicateID,
			FieldsTransferred: result.FieldsTransferred,
			RepointedRows:     result.RepointedRows,
		})
		master.DataQualityScore = CalculateQualityScore(master)
		master.UpdatedAt = now
		result.QualityScore = master.DataQualityScore

		columns := append(updates.Fields(), "merge_history", "data_quality_score", "updated_at")
		if _, err := tx.NewUpdate().Model(master).Column(columns...).WherePK().Exec(ctx); err != nil {
			return fmt.Errorf("failed to update merge master: %w", err)
		}
		return nil
	})

	var refused mergeRefused
	switch {
	case errors.As(err, &refused):
		result.Error = refused.reason
		result.Updates = nil
		result.FieldsTransferred = []string{}
		result.RepointedRows = nil
		result.QualityScore = 0
		metrics.RecordMerge("failed")
		return result, nil
	case err != nil:
		return result, err
	}

	result.Success = true
	if dryRun {
		metrics.RecordMerge("dry_run")
	} else {
		metrics.RecordMerge("merged")
		slog.Info("Guests merged", "master", masterID, "duplicate", duplicateID,
			"fields", len(result.FieldsTransferred), "repointed", result.RepointedRows, "score", result.QualityScore)
	}
	return result, nil
}

func (e *Engine) loadPair(ctx context.Context, tx bun.Tx, masterID, duplicateID int64) (*database.Guest, *database.Guest, error) {
	if masterID == duplicateID {
		return nil, nil, mergeRefused{ReasonSameGuest}
	}
	master, err := e.guests.GetIncludingMerged(ctx, tx, masterID)
	if err != nil {
		return nil, nil, err
	}
	duplicate, err := e.guests.GetIncludingMerged(ctx, tx, duplicateID)
	if err != nil {
		return nil, nil, err
	}
	switch {
	case master == nil || duplicate == nil:
		return nil, nil, mergeRefused{ReasonNotFound}
	case duplicate.IsMerged:
		return nil, nil, mergeRefused{ReasonAlreadyMerged}
	case master.IsMerged:
		return nil, nil, mergeRefused{ReasonMasterMerged}
	}
	return master, duplicate, nil
}

// tableExists runs inside the merge transaction; the pool holds a single connection.
func tableExists(ctx context.Context, tx bun.Tx, name string) (bool, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check table %s: %w", name, err)
	}
	return n > 0, nil
}

// repointDependents moves every dependent row to the master. Tables missing from
// the schema are skipped.
func repointDependents(ctx context.Context, tx bun.Tx, masterID, duplicateID int64) (map[string]int64, error) {
	counts := make(map[string]int64)
	for _, table := range DependentTables {
		ok, err := tableExists(ctx, tx, table)
		if err != nil {
			return nil, err
		}
		if !ok {
			slog.Debug("Dependent table missing, skipped", "table", table)
			continue
		}
		res, err := tx.ExecContext(ctx, "UPDATE "+table+" SET guest_id = ? WHERE guest_id = ?", masterID, duplicateID)
		if err != nil {
			return nil, fmt.Errorf("failed to repoint %s: %w", table, err)
		}
		n, _ := res.RowsAffected()
		counts[table] = n
	}
	return counts, nil
}

func countDependents(ctx context.Context, tx bun.Tx, duplicateID int64) (map[string]int64, error) {
	counts := make(map[string]int64)
	for _, table := range DependentTables {
		ok, err := tableExists(ctx, tx, table)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		var n int64
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table+" WHERE guest_id = ?", duplicateID).Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", table, err)
		}
		counts[table] = n
	}
	return counts, nil
}
