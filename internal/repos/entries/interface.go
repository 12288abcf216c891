package entries

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrDuplicateReference = errors.New("duplicate external reference")
	ErrEntryNotFound      = errors.New("ledger entry not found")
)

type Kind string

const (
	KindDeposit  Kind = "deposit"
	KindPurchase Kind = "purchase"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

func (s Status) Terminal() bool { return s == StatusSuccess || s == StatusFailed }

// Entry is one row of the ledger. Amount is always positive; Kind gives the
// direction of its effect on the balance.
type Entry struct {
	ID                   uuid.UUID
	UserID               uuid.UUID
	Amount               decimal.Decimal
	Kind                 Kind
	Status               Status
	ExternalReference    string
	ProviderReference    string
	ProductCode          string
	Recipient            string
	FulfillmentStartedAt *time.Time
	CreatedAt            time.Time
	ResolvedAt           *time.Time
}

// Fulfilling reports whether a purchase already handed to a provider is
// still awaiting its outcome.
func (e Entry) Fulfilling() bool {
	return e.Status == StatusPending && e.FulfillmentStartedAt != nil
}

type Entries interface {
	Insert(ctx context.Context, tx *sql.Tx, e Entry) (Entry, error)
	LockByReference(ctx context.Context, tx *sql.Tx, reference string) (Entry, error)
	GetByReference(ctx context.Context, reference string) (Entry, error)
	SetAmount(ctx context.Context, tx *sql.Tx, id uuid.UUID, amount decimal.Decimal) error
	SetOutcome(ctx context.Context, tx *sql.Tx, id uuid.UUID, status Status, providerReference string) (Entry, error)
	SumPendingPurchases(ctx context.Context, tx *sql.Tx, userID uuid.UUID) (decimal.Decimal, error)
	MarkFulfilling(ctx context.Context, reference string) (bool, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Entry, error)
	ListStaleReserved(ctx context.Context, createdBefore time.Time, limit int) ([]Entry, error)
	ListStaleFulfilling(ctx context.Context, startedBefore time.Time, limit int) ([]Entry, error)
}
