package ledger

import (
	"errors"
	"fmt"

	"github.com/fastprodman/topupledger/internal/repos/entries"
	"github.com/fastprodman/topupledger/internal/repos/users"
	"github.com/fastprodman/topupledger/internal/repos/wallets"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BalanceChannel is the Postgres NOTIFY channel carrying committed balances.
const BalanceChannel = "wallet_balance"

var (
	ErrDuplicateReference = entries.ErrDuplicateReference
	ErrEntryNotFound      = entries.ErrEntryNotFound
	ErrInsufficientFunds  = wallets.ErrInsufficientFunds
	ErrUnknownUser        = users.ErrUserNotFound

	ErrReferenceConflict = errors.New("external reference already used by a different entry")
	ErrNotReserved       = errors.New("entry is not awaiting fulfillment")
	ErrInvalidAmount     = errors.New("amount must be positive with at most 2 decimal places")
	ErrInvalidReference  = errors.New("external reference is required")
	ErrInvalidKind       = errors.New("invalid entry kind")
)

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
)

func (o Outcome) status() (entries.Status, error) {
	switch o {
	case OutcomeSuccess:
		return entries.StatusSuccess, nil
	case OutcomeFailed:
		return entries.StatusFailed, nil
	default:
		return "", fmt.Errorf("invalid outcome %q", o)
	}
}

// NewEntry describes a pending entry to create.
type NewEntry struct {
	UserID            uuid.UUID
	Amount            decimal.Decimal
	Kind              entries.Kind
	ExternalReference string
	ProductCode       string
	Recipient         string
}

func (n NewEntry) validate() error {
	if n.ExternalReference == "" {
		return ErrInvalidReference
	}
	if n.Kind != entries.KindDeposit && n.Kind != entries.KindPurchase {
		return fmt.Errorf("%w: %q", ErrInvalidKind, n.Kind)
	}

	return ValidateAmount(n.Amount)
}

func (n NewEntry) entry() entries.Entry {
	return entries.Entry{
		UserID:            n.UserID,
		Amount:            n.Amount,
		Kind:              n.Kind,
		ExternalReference: n.ExternalReference,
		ProductCode:       n.ProductCode,
		Recipient:         n.Recipient,
	}
}

// matches reports whether an existing entry was created from the same intent.
func (n NewEntry) matches(e entries.Entry) bool {
	return e.UserID == n.UserID && e.Kind == n.Kind
}

// Resolution moves a pending entry to a terminal outcome.
type Resolution struct {
	Reference         string
	Outcome           Outcome
	ProviderReference string
	// ConfirmedAmount replaces the declared amount of a pending deposit with
	// the amount the payment provider authenticated. Ignored for purchases.
	ConfirmedAmount *decimal.Decimal
	// RequireUnstarted leaves the entry untouched when its fulfillment has
	// already begun.
	RequireUnstarted bool
}

// ValidateAmount accepts positive amounts with at most kobo precision.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() || !amount.Equal(amount.Round(2)) {
		return ErrInvalidAmount
	}

	return nil
}
