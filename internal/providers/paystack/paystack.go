// Package paystack verifies and parses Paystack webhooks and queries the
// Paystack transaction API.
package paystack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/fastprodman/topupledger/internal/config"
	"github.com/fastprodman/topupledger/internal/providers/webhooksig"
	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

const (
	SignatureHeader    = "x-paystack-signature"
	EventChargeSuccess = "charge.success"
	StatusSuccess      = "success"
)

var (
	ErrInvalidSignature    = errors.New("invalid paystack signature")
	ErrMalformedEvent      = errors.New("malformed paystack event")
	ErrTransactionNotFound = errors.New("paystack transaction not found")
)

// Event is the webhook envelope.
type Event struct {
	Event string `json:"event"`
	Data  Charge `json:"data"`
}

// Charge is a transaction as Paystack reports it. Amount is in kobo.
type Charge struct {
	ID            int64           `json:"id"`
	Status        string          `json:"status"`
	Reference     string          `json:"reference"`
	Amount        int64           `json:"amount"`
	Currency      string          `json:"currency"`
	Channel       string          `json:"channel"`
	PaidAt        string          `json:"paid_at"`
	Metadata      json.RawMessage `json:"metadata"`
	Customer      Customer        `json:"customer"`
	Authorization Authorization   `json:"authorization"`
}

type Customer struct {
	Email        string `json:"email"`
	CustomerCode string `json:"customer_code"`
}

// Authorization carries the dedicated virtual account a bank transfer was
// paid into.
type Authorization struct {
	Channel                   string `json:"channel"`
	ReceiverBankAccountNumber string `json:"receiver_bank_account_number"`
}

// Naira converts the kobo amount.
func (c Charge) Naira() decimal.Decimal { return KoboToNaira(c.Amount) }

func (c Charge) Succeeded() bool { return c.Status == StatusSuccess }

// MetadataUserID extracts metadata.user_id. Paystack delivers metadata either
// as an object or as a JSON-encoded string.
func (c Charge) MetadataUserID() string {
	raw := bytes.TrimSpace(c.Metadata)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}

	if raw[0] == '"' {
		var s string

		err := json.Unmarshal(raw, &s)
		if err != nil {
			return ""
		}

		raw = []byte(s)
	}

	var md struct {
		UserID any `json:"user_id"`
	}

	err := json.Unmarshal(raw, &md)
	if err != nil || md.UserID == nil {
		return ""
	}

	return strings.TrimSpace(fmt.Sprint(md.UserID))
}

func KoboToNaira(kobo int64) decimal.Decimal { return decimal.New(kobo, -2) }

// ComputeSignature returns the hex HMAC-SHA512 of body keyed by secret.
func ComputeSignature(secret string, body []byte) string {
	return webhooksig.Sign(secret, body)
}

// VerifySignature checks the x-paystack-signature header against body.
func VerifySignature(secret string, body []byte, signature string) error {
	if !webhooksig.Valid(secret, body, signature) {
		return ErrInvalidSignature
	}

	return nil
}

func ParseEvent(body []byte) (Event, error) {
	var ev Event

	err := json.Unmarshal(body, &ev)
	if err != nil {
		return Event{}, fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}
	if ev.Event == "" {
		return Event{}, fmt.Errorf("%w: missing event type", ErrMalformedEvent)
	}

	return ev, nil
}

// Client talks to the Paystack REST API with the secret key.
type Client struct {
	secret string
	rc     *resty.Client
}

func NewClient(cfg config.PaystackConfig) *Client {
	rc := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetAuthToken(cfg.SecretKey).
		SetHeader("Accept", "application/json")

	return &Client{secret: cfg.SecretKey, rc: rc}
}

// VerifySignature checks a webhook body with the client's secret key.
func (c *Client) VerifySignature(body []byte, signature string) error {
	return VerifySignature(c.secret, body, signature)
}

type verifyResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    Charge `json:"data"`
}

// VerifyTransaction fetches the authoritative state of a transaction.
func (c *Client) VerifyTransaction(ctx context.Context, reference string) (Charge, error) {
	var out verifyResponse

	resp, err := c.rc.R().
		SetContext(ctx).
		SetPathParam("reference", reference).
		SetResult(&out).
		Get("/transaction/verify/{reference}")
	if err != nil {
		return Charge{}, fmt.Errorf("verify transaction: %w", err)
	}

	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return Charge{}, ErrTransactionNotFound
	case resp.IsError():
		return Charge{}, fmt.Errorf("verify transaction: unexpected status %d", resp.StatusCode())
	case !out.Status:
		return Charge{}, fmt.Errorf("verify transaction: %s", out.Message)
	}

	return out.Data, nil
}
