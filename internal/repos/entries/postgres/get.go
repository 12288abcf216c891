package entries

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fastprodman/topupledger/internal/repos/entries"
)

// LockByReference reads the entry and holds its row lock until tx ends.
func (r *entriesRepo) LockByReference(ctx context.Context, tx *sql.Tx, reference string) (entries.Entry, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT `+entryColumns+`
		FROM ledger_entries
		WHERE external_reference = $1
		FOR UPDATE
	`, reference)

	e, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entries.Entry{}, entries.ErrEntryNotFound
		}

		return entries.Entry{}, fmt.Errorf("lock entry: %w", err)
	}

	return e, nil
}

func (r *entriesRepo) GetByReference(ctx context.Context, reference string) (entries.Entry, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+entryColumns+`
		FROM ledger_entries
		WHERE external_reference = $1
	`, reference)

	e, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entries.Entry{}, entries.ErrEntryNotFound
		}

		return entries.Entry{}, fmt.Errorf("get entry: %w", err)
	}

	return e, nil
}
