package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/mrcoles/iron-blogger2/pkg/domain"
	"github.com/mrcoles/iron-blogger2/pkg/ledger"
)

// RoundRepository handles per-(blogger, round) ledger records
type RoundRepository struct {
	db *sqlx.DB
}

// roundSQL represents a round row for SQL operations
type roundSQL struct {
	ID        int64     `db:"id"`
	BloggerID int64     `db:"blogger_id"`
	Due       time.Time `db:"due"`
	PostID    *int64    `db:"post_id"`
	Paid      int       `db:"paid"`
	Forgiven  int       `db:"forgiven"`
}

// roundEntrySQL is a round row joined with its satisfying post, if any
type roundEntrySQL struct {
	roundSQL
	PostTimestamp *time.Time `db:"post_timestamp"`
	PostTitle     *string    `db:"post_title"`
	PostSummary   *string    `db:"post_summary"`
	PostPageURL   *string    `db:"post_page_url"`
}

// roundEntrySelect is the shared round-with-post projection behind every
// ledger read, callers append their WHERE clause
const roundEntrySelect = `
	SELECT r.*,
	       p.timestamp AS post_timestamp, p.title AS post_title,
	       p.summary AS post_summary, p.page_url AS post_page_url
	FROM rounds r
	LEFT JOIN posts p ON r.post_id = p.id
`

// NewRoundRepository creates a new round repository
func NewRoundRepository(database *sqlx.DB) *RoundRepository {
	return &RoundRepository{db: database}
}

// GetRound retrieves a round by ID
func (r *RoundRepository) GetRound(ctx context.Context, id int64) (*domain.Round, error) {
	var row roundSQL
	if err := r.db.GetContext(ctx, &row, "SELECT * FROM rounds WHERE id = ?", id); err != nil {
		return nil, fmt.Errorf("get round: %w", err)
	}
	return toDomainRound(&row), nil
}

// ListRounds retrieves all rounds of a blogger ordered by due-date
func (r *RoundRepository) ListRounds(ctx context.Context, bloggerID int64) ([]*domain.Round, error) {
	var rows []roundSQL
	err := r.db.SelectContext(ctx, &rows,
		"SELECT * FROM rounds WHERE blogger_id = ? ORDER BY due ASC", bloggerID)
	if err != nil {
		return nil, fmt.Errorf("list rounds: %w", err)
	}

	result := make([]*domain.Round, len(rows))
	for i, row := range rows {
		result[i] = toDomainRound(&row)
	}
	return result, nil
}

// LedgerEntries builds the debt-ledger view of a blogger: every recorded round
// joined with the post that satisfied it, ready for ledger.Owed.
func (r *RoundRepository) LedgerEntries(ctx context.Context, bloggerID int64) ([]ledger.Entry, []int64, error) {
	query := roundEntrySelect + "WHERE r.blogger_id = ? ORDER BY r.due ASC"
	var rows []roundEntrySQL
	if err := r.db.SelectContext(ctx, &rows, query, bloggerID); err != nil {
		return nil, nil, fmt.Errorf("ledger entries: %w", err)
	}

	entries := make([]ledger.Entry, len(rows))
	ids := make([]int64, len(rows))
	for i, row := range rows {
		entries[i] = toLedgerEntry(&row)
		ids[i] = row.ID
	}
	return entries, ids, nil
}

// RecordPayment credits amount against a round's debt. The ledger invariant is
// checked inside the transaction and a violation rolls the payment back: an
// amount that would drive owed outside its bounds is a data-entry defect and
// must never be stored.
func (r *RoundRepository) RecordPayment(ctx context.Context, roundID int64, amount int) error {
	return r.credit(ctx, roundID, "paid", amount)
}

// RecordForgiveness waives amount of a round's debt, with the same invariant
// enforcement as RecordPayment.
func (r *RoundRepository) RecordForgiveness(ctx context.Context, roundID int64, amount int) error {
	return r.credit(ctx, roundID, "forgiven", amount)
}

func (r *RoundRepository) credit(ctx context.Context, roundID int64, column string, amount int) error {
	return inTxRetry(ctx, r.db, func(tx *sqlx.Tx) error {
		// column name is one of the two fixed callers above, never user input
		query := fmt.Sprintf("UPDATE rounds SET %s = %s + ? WHERE id = ?", column, column)
		res, err := tx.ExecContext(ctx, query, amount, roundID)
		if err != nil {
			return fmt.Errorf("credit round %d: %w", roundID, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("round %d: %w", roundID, ErrRoundNotFound)
		}

		var row roundEntrySQL
		if err := tx.GetContext(ctx, &row, roundEntrySelect+"WHERE r.id = ?", roundID); err != nil {
			return fmt.Errorf("reload round %d: %w", roundID, err)
		}

		if _, err := ledger.Owed(toLedgerEntry(&row)); err != nil {
			return err // surfaces the ConsistencyError, transaction rolls back
		}
		return nil
	})
}

func toDomainRound(row *roundSQL) *domain.Round {
	return &domain.Round{
		ID:        row.ID,
		BloggerID: row.BloggerID,
		Due:       row.Due.UTC(),
		PostID:    row.PostID,
		Paid:      row.Paid,
		Forgiven:  row.Forgiven,
	}
}

func toLedgerEntry(row *roundEntrySQL) ledger.Entry {
	entry := ledger.Entry{
		Due:      row.Due.UTC(),
		Paid:     row.Paid,
		Forgiven: row.Forgiven,
	}
	if row.PostID != nil && row.PostTimestamp != nil {
		entry.Post = &domain.Post{
			ID:        *row.PostID,
			Timestamp: row.PostTimestamp.UTC(),
			Title:     deref(row.PostTitle),
			Summary:   deref(row.PostSummary),
			PageURL:   deref(row.PostPageURL),
		}
	}
	return entry
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
