package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/mrcoles/iron-blogger2/pkg/domain"
	"github.com/mrcoles/iron-blogger2/pkg/ledger"
)

// ApplyAssignments makes the outcome of an assignment run durable as one
// transaction: counts_for on the assigned posts, plus the refreshed round
// records. Readers never observe a partially-assigned batch. Round upserts
// preserve paid/forgiven and never unlink a post once one is recorded; the
// debt invariant is re-checked on every touched round and a violation rolls
// the whole batch back. Retried on lock errors, feed syncs run concurrently.
func (r *Repositories) ApplyAssignments(ctx context.Context, assignments []domain.Assignment, states []domain.RoundState) error {
	if len(assignments) == 0 && len(states) == 0 {
		return nil
	}

	return inTxRetry(ctx, r.DB, func(tx *sqlx.Tx) error {
		for _, a := range assignments {
			res, err := tx.ExecContext(ctx,
				"UPDATE posts SET counts_for = ? WHERE id = ? AND counts_for IS NULL",
				a.Due.UTC(), a.PostID)
			if err != nil {
				return fmt.Errorf("assign post %d: %w", a.PostID, err)
			}
			affected, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
			// the counts_for IS NULL guard keeps overlapping runs idempotent;
			// an already-assigned post means another run got here first
			if affected == 0 {
				return fmt.Errorf("post %d is already assigned", a.PostID)
			}
		}

		for _, s := range states {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO rounds (blogger_id, due, post_id)
				VALUES (?, ?, ?)
				ON CONFLICT(blogger_id, due) DO UPDATE
				SET post_id = COALESCE(rounds.post_id, excluded.post_id)
			`, s.BloggerID, s.Due.UTC(), s.PostID)
			if err != nil {
				return fmt.Errorf("upsert round (%d, %s): %w", s.BloggerID, s.Due.Format("2006-01-02"), err)
			}
		}

		// a backfill into a round an administrator already credited would drive
		// owed below zero; fault here and roll back rather than store bad books
		for _, s := range states {
			var row roundEntrySQL
			err := tx.GetContext(ctx, &row,
				roundEntrySelect+"WHERE r.blogger_id = ? AND r.due = ?", s.BloggerID, s.Due.UTC())
			if err != nil {
				return fmt.Errorf("reload round (%d, %s): %w", s.BloggerID, s.Due.Format("2006-01-02"), err)
			}
			if _, err := ledger.Owed(toLedgerEntry(&row)); err != nil {
				return err
			}
		}
		return nil
	})
}
