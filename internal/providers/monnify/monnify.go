// Package monnify verifies and parses Monnify transaction webhooks.
package monnify

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fastprodman/topupledger/internal/providers/webhooksig"
	"github.com/shopspring/decimal"
)

const (
	SignatureHeader            = "monnify-signature"
	EventSuccessfulTransaction = "SUCCESSFUL_TRANSACTION"
	PaymentStatusPaid          = "PAID"
)

var (
	ErrInvalidSignature = errors.New("invalid monnify signature")
	ErrMalformedEvent   = errors.New("malformed monnify event")
)

type Event struct {
	EventType string      `json:"eventType"`
	EventData Transaction `json:"eventData"`
}

type Transaction struct {
	TransactionReference string          `json:"transactionReference"`
	PaymentReference     string          `json:"paymentReference"`
	AmountPaid           decimal.Decimal `json:"amountPaid"`
	PaymentStatus        string          `json:"paymentStatus"`
	PaymentMethod        string          `json:"paymentMethod"`
	AccountReference     string          `json:"accountReference"`
	Customer             Customer        `json:"customer"`
	Product              Product         `json:"product"`
	Destination          Destination     `json:"destinationAccountInformation"`
}

type Customer struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Product.Reference is the reserved account reference for transfers into a
// reserved account.
type Product struct {
	Type      string `json:"type"`
	Reference string `json:"reference"`
}

type Destination struct {
	BankName      string `json:"bankName"`
	AccountNumber string `json:"accountNumber"`
}

func (t Transaction) Paid() bool { return t.PaymentStatus == PaymentStatusPaid }

// AccountRef returns the reserved account reference the payment was made to.
func (t Transaction) AccountRef() string {
	if t.AccountReference != "" {
		return t.AccountReference
	}

	return t.Product.Reference
}

// Verifier checks the monnify-signature header with the client secret.
type Verifier struct {
	secret string
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: secret}
}

func (v *Verifier) Verify(body []byte, signature string) error {
	if !webhooksig.Valid(v.secret, body, signature) {
		return ErrInvalidSignature
	}

	return nil
}

func ComputeSignature(secret string, body []byte) string {
	return webhooksig.Sign(secret, body)
}

func ParseEvent(body []byte) (Event, error) {
	var ev Event

	err := json.Unmarshal(body, &ev)
	if err != nil {
		return Event{}, fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}
	if ev.EventData.TransactionReference == "" {
		return Event{}, fmt.Errorf("%w: missing transaction reference", ErrMalformedEvent)
	}

	return ev, nil
}
