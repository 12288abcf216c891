package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fastprodman/topupledger/internal/infra/auth"
	"github.com/fastprodman/topupledger/internal/repos/entries"
	"github.com/fastprodman/topupledger/internal/repos/plans"
	"github.com/fastprodman/topupledger/internal/services/balance"
	"github.com/fastprodman/topupledger/internal/services/credit"
	"github.com/fastprodman/topupledger/internal/services/ledger"
	"github.com/fastprodman/topupledger/internal/services/purchase"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const maxBodyBytes = 1 << 20

type BalanceReader interface {
	GetBalance(ctx context.Context, userID uuid.UUID) (balance.Snapshot, error)
	History(ctx context.Context, userID uuid.UUID, limit, offset int) ([]entries.Entry, error)
	Subscribe(userID uuid.UUID) (<-chan balance.Update, func())
}

type Crediter interface {
	RegisterIntent(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, reference string) (entries.Entry, error)
	VerifyDeposit(ctx context.Context, userID uuid.UUID, reference string) (credit.Result, error)
	HandlePaystackWebhook(ctx context.Context, body []byte, signature string) (credit.Result, error)
	HandleMonnifyWebhook(ctx context.Context, body []byte, signature string) (credit.Result, error)
}

type Purchaser interface {
	Plans(ctx context.Context, network string) ([]plans.Plan, error)
	BuyAirtime(ctx context.Context, req purchase.AirtimeRequest) (purchase.Result, error)
	BuyData(ctx context.Context, req purchase.DataRequest) (purchase.Result, error)
	Status(ctx context.Context, userID uuid.UUID, reference string) (entries.Entry, error)
	Reconcile(ctx context.Context, reference string, outcome ledger.Outcome, providerReference string) (entries.Entry, bool, error)
}

// HandlerProvider exposes the wallet, purchase and webhook services over HTTP.
type HandlerProvider struct {
	balance  BalanceReader
	credit   Crediter
	purchase Purchaser

	heartbeat time.Duration

	streamsDone chan struct{}
	closeOnce   sync.Once
}

// NewHandler returns a new Handler provider.
func NewHandler(b BalanceReader, c Crediter, p Purchaser) *HandlerProvider {
	return &HandlerProvider{
		balance:   b,
		credit:    c,
		purchase:  p,
		heartbeat: 15 * time.Second,

		streamsDone: make(chan struct{}),
	}
}

// CloseStreams ends every open balance stream. Register it with
// http.Server.RegisterOnShutdown: Shutdown does not cancel request contexts
// and would otherwise wait for stream clients to leave.
func (h *HandlerProvider) CloseStreams() {
	h.closeOnce.Do(func() { close(h.streamsDone) })
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

var badRequestErrors = []error{
	ledger.ErrInvalidAmount,
	ledger.ErrInvalidReference,
	purchase.ErrInvalidNetwork,
	purchase.ErrInvalidRecipient,
	purchase.ErrInvalidAirtime,
	purchase.ErrUnknownPlan,
	credit.ErrMalformedPayload,
}

// writeServiceError maps domain errors to HTTP statuses. Anything unknown is
// logged and reported as a 500 without details.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	for _, target := range badRequestErrors {
		if errors.Is(err, target) {
			writeError(w, http.StatusBadRequest, target.Error())
			return
		}
	}

	switch {
	case errors.Is(err, credit.ErrInvalidSignature):
		writeError(w, http.StatusUnauthorized, "invalid signature")
	case errors.Is(err, ledger.ErrUnknownUser):
		writeError(w, http.StatusNotFound, "user not found")
	case errors.Is(err, ledger.ErrEntryNotFound):
		writeError(w, http.StatusNotFound, "entry not found")
	case errors.Is(err, ledger.ErrInsufficientFunds):
		writeError(w, http.StatusConflict, "insufficient funds")
	case errors.Is(err, ledger.ErrReferenceConflict):
		writeError(w, http.StatusConflict, "reference already used")
	case errors.Is(err, purchase.ErrDepositNeedsVerification):
		writeError(w, http.StatusConflict, "deposits must be verified with the payment provider")
	case errors.Is(err, credit.ErrPaymentNotConfirmed):
		writeError(w, http.StatusConflict, "payment not confirmed by provider")
	case errors.Is(err, credit.ErrUnknownRecipient):
		writeError(w, http.StatusUnprocessableEntity, "unknown recipient")
	default:
		slog.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// decodeJSON limits the body size and rejects unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	err := dec.Decode(dst)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty body")
		}

		return errors.New("invalid JSON")
	}

	return nil
}

func parseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, errors.New("amount required")
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, errors.New("invalid amount")
	}

	err = ledger.ValidateAmount(d)
	if err != nil {
		return decimal.Zero, err
	}

	return d, nil
}

func parsePage(r *http.Request) (int, int, error) {
	q := r.URL.Query()

	limit, offset := 0, 0

	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return 0, 0, fmt.Errorf("invalid limit")
		}
		limit = n
	}
	if s := q.Get("offset"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return 0, 0, fmt.Errorf("invalid offset")
		}
		offset = n
	}

	return limit, offset, nil
}

// requestReference prefers the body reference and falls back to the
// Idempotency-Key header.
func requestReference(r *http.Request, fromBody string) string {
	if ref := strings.TrimSpace(fromBody); ref != "" {
		return ref
	}

	return strings.TrimSpace(r.Header.Get("Idempotency-Key"))
}

func actorFrom(w http.ResponseWriter, r *http.Request) (auth.Actor, bool) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return auth.Actor{}, false
	}

	return actor, true
}

type entryResponse struct {
	ID                string     `json:"id"`
	Reference         string     `json:"reference"`
	Kind              string     `json:"kind"`
	Status            string     `json:"status"`
	Amount            string     `json:"amount"`
	ProviderReference string     `json:"providerReference,omitempty"`
	ProductCode       string     `json:"productCode,omitempty"`
	Recipient         string     `json:"recipient,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	ResolvedAt        *time.Time `json:"resolvedAt,omitempty"`
}

func toEntryResponse(e entries.Entry) entryResponse {
	return entryResponse{
		ID:                e.ID.String(),
		Reference:         e.ExternalReference,
		Kind:              string(e.Kind),
		Status:            string(e.Status),
		Amount:            e.Amount.StringFixed(2),
		ProviderReference: e.ProviderReference,
		ProductCode:       e.ProductCode,
		Recipient:         e.Recipient,
		CreatedAt:         e.CreatedAt,
		ResolvedAt:        e.ResolvedAt,
	}
}
