package entries

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fastprodman/topupledger/internal/repos/entries"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SetAmount rewrites the amount of a pending entry.
func (r *entriesRepo) SetAmount(ctx context.Context, tx *sql.Tx, id uuid.UUID, amount decimal.Decimal) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE ledger_entries
		SET amount = $2
		WHERE id = $1
		  AND status = 'pending'
	`, id, amount)
	if err != nil {
		return fmt.Errorf("set amount: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}

	if affected == 0 {
		return entries.ErrEntryNotFound
	}

	return nil
}

// SetOutcome moves a pending entry to a terminal status. It never touches an
// entry that is already terminal.
func (r *entriesRepo) SetOutcome(
	ctx context.Context,
	tx *sql.Tx,
	id uuid.UUID,
	status entries.Status,
	providerReference string,
) (entries.Entry, error) {
	if !status.Terminal() {
		return entries.Entry{}, fmt.Errorf("set outcome: %q is not terminal", status)
	}

	row := tx.QueryRowContext(ctx, `
		UPDATE ledger_entries
		SET status = $2,
		    provider_reference = COALESCE(NULLIF($3, ''), provider_reference),
		    resolved_at = now()
		WHERE id = $1
		  AND status = 'pending'
		RETURNING `+entryColumns,
		id, string(status), providerReference,
	)

	e, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entries.Entry{}, entries.ErrEntryNotFound
		}

		return entries.Entry{}, fmt.Errorf("set outcome: %w", err)
	}

	return e, nil
}

// SumPendingPurchases returns the total still reserved by pending purchases.
func (r *entriesRepo) SumPendingPurchases(ctx context.Context, tx *sql.Tx, userID uuid.UUID) (decimal.Decimal, error) {
	var total decimal.Decimal

	err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0)
		FROM ledger_entries
		WHERE user_id = $1
		  AND kind = 'purchase'
		  AND status = 'pending'
	`, userID).Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum pending purchases: %w", err)
	}

	return total, nil
}

// MarkFulfilling stamps fulfillment_started_at on a pending purchase that has
// not been handed to a provider yet. It reports whether this call won.
func (r *entriesRepo) MarkFulfilling(ctx context.Context, reference string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE ledger_entries
		SET fulfillment_started_at = now()
		WHERE external_reference = $1
		  AND kind = 'purchase'
		  AND status = 'pending'
		  AND fulfillment_started_at IS NULL
	`, reference)
	if err != nil {
		return false, fmt.Errorf("mark fulfilling: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}

	return affected == 1, nil
}
