package entries

import (
	"database/sql"
	"time"

	"github.com/fastprodman/topupledger/internal/repos/entries"
)

var _ entries.Entries = (*entriesRepo)(nil)

type entriesRepo struct{ db *sql.DB }

func New(db *sql.DB) *entriesRepo {
	return &entriesRepo{db: db}
}

const entryColumns = `
	id, user_id, amount, kind, status, external_reference,
	COALESCE(provider_reference, ''), COALESCE(product_code, ''), COALESCE(recipient, ''),
	fulfillment_started_at, created_at, resolved_at
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (entries.Entry, error) {
	var (
		e        entries.Entry
		started  sql.NullTime
		resolved sql.NullTime
		kind     string
		status   string
	)

	err := row.Scan(
		&e.ID, &e.UserID, &e.Amount, &kind, &status, &e.ExternalReference,
		&e.ProviderReference, &e.ProductCode, &e.Recipient,
		&started, &e.CreatedAt, &resolved,
	)
	if err != nil {
		return entries.Entry{}, err
	}

	e.Kind = entries.Kind(kind)
	e.Status = entries.Status(status)
	e.FulfillmentStartedAt = timePtr(started)
	e.ResolvedAt = timePtr(resolved)

	return e, nil
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}
