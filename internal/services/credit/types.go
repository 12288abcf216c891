package credit

import (
	"encoding/json"
	"errors"

	"github.com/fastprodman/topupledger/internal/repos/entries"
	"github.com/fastprodman/topupledger/internal/services/ledger"
	"github.com/shopspring/decimal"
)

const (
	SourcePaystack = "paystack"
	SourceMonnify  = "monnify"
)

var (
	ErrInvalidSignature    = errors.New("invalid webhook signature")
	ErrMalformedPayload    = errors.New("malformed webhook payload")
	ErrUnknownRecipient    = errors.New("payment recipient could not be resolved")
	ErrPaymentNotConfirmed = errors.New("payment not confirmed by provider")
	ErrReferenceConflict   = ledger.ErrReferenceConflict
)

// Recipient holds every identifier a payment provider may report for the
// paying customer. Resolution tries them in field order.
type Recipient struct {
	UserID               string
	VirtualAccountNumber string
	AccountReference     string
	Email                string
}

// Confirmation is a provider-authenticated statement that money arrived.
type Confirmation struct {
	Source            string
	Reference         string
	Amount            decimal.Decimal
	ProviderReference string
	Recipient         Recipient
	// Payload is kept with any payment exception raised for this confirmation.
	Payload json.RawMessage
}

type Result struct {
	Entry entries.Entry
	// Credited is true only for the call that applied the credit.
	Credited bool
	// Duplicate is true when the reference was already credited.
	Duplicate bool
	// Ignored is true for webhook events that are not completed payments.
	Ignored bool
}
