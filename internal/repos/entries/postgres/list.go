package entries

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/fastprodman/topupledger/internal/repos/entries"
	"github.com/google/uuid"
)

func (r *entriesRepo) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]entries.Entry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+entryColumns+`
		FROM ledger_entries
		WHERE user_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}

	return collect(rows)
}

// ListStaleReserved returns purchases reserved before createdBefore that were
// never handed to a provider.
func (r *entriesRepo) ListStaleReserved(ctx context.Context, createdBefore time.Time, limit int) ([]entries.Entry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+entryColumns+`
		FROM ledger_entries
		WHERE status = 'pending'
		  AND kind = 'purchase'
		  AND fulfillment_started_at IS NULL
		  AND created_at < $1
		ORDER BY created_at
		LIMIT $2
	`, createdBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale reserved: %w", err)
	}

	return collect(rows)
}

// ListStaleFulfilling returns purchases handed to a provider before
// startedBefore whose outcome is still unknown.
func (r *entriesRepo) ListStaleFulfilling(ctx context.Context, startedBefore time.Time, limit int) ([]entries.Entry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+entryColumns+`
		FROM ledger_entries
		WHERE status = 'pending'
		  AND kind = 'purchase'
		  AND fulfillment_started_at < $1
		ORDER BY fulfillment_started_at
		LIMIT $2
	`, startedBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale fulfilling: %w", err)
	}

	return collect(rows)
}

func collect(rows *sql.Rows) ([]entries.Entry, error) {
	defer rows.Close()

	var out []entries.Entry

	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		out = append(out, e)
	}

	err := rows.Err()
	if err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}

	return out, nil
}
