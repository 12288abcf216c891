package entries

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fastprodman/topupledger/internal/infra/pgutils"
	"github.com/fastprodman/topupledger/internal/repos/entries"
	"github.com/google/uuid"
)

// Insert stores a new pending entry. A reused external reference yields
// entries.ErrDuplicateReference; the transaction is unusable afterwards.
func (r *entriesRepo) Insert(ctx context.Context, tx *sql.Tx, e entries.Entry) (entries.Entry, error) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}

	row := tx.QueryRowContext(ctx, `
		INSERT INTO ledger_entries (id, user_id, amount, kind, status, external_reference, product_code, recipient)
		VALUES ($1, $2, $3, $4, 'pending', $5, NULLIF($6, ''), NULLIF($7, ''))
		RETURNING `+entryColumns,
		e.ID, e.UserID, e.Amount, string(e.Kind), e.ExternalReference, e.ProductCode, e.Recipient,
	)

	inserted, err := scanEntry(row)
	if err != nil {
		if pgutils.IsUniqueViolation(err) {
			return entries.Entry{}, entries.ErrDuplicateReference
		}

		return entries.Entry{}, fmt.Errorf("insert entry: %w", err)
	}

	return inserted, nil
}
