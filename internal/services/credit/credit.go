// Package credit turns provider payment confirmations into wallet credits,
// at most once per external reference.
package credit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/fastprodman/topupledger/internal/infra/metrics"
	"github.com/fastprodman/topupledger/internal/providers/monnify"
	"github.com/fastprodman/topupledger/internal/providers/paystack"
	"github.com/fastprodman/topupledger/internal/repos/entries"
	"github.com/fastprodman/topupledger/internal/repos/exceptions"
	pgexceptions "github.com/fastprodman/topupledger/internal/repos/exceptions/postgres"
	"github.com/fastprodman/topupledger/internal/repos/users"
	pgusers "github.com/fastprodman/topupledger/internal/repos/users/postgres"
	"github.com/fastprodman/topupledger/internal/services/ledger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("github.com/fastprodman/topupledger/internal/services/credit")

// Paystack is the part of the Paystack client the reconciler needs.
type Paystack interface {
	VerifySignature(body []byte, signature string) error
	VerifyTransaction(ctx context.Context, reference string) (paystack.Charge, error)
}

type Service struct {
	ledger     *ledger.Service
	users      users.Users
	exceptions exceptions.Exceptions
	paystack   Paystack
	monnify    *monnify.Verifier
	metrics    *metrics.Metrics
}

func New(db *sql.DB, l *ledger.Service, ps Paystack, mv *monnify.Verifier, m *metrics.Metrics) *Service {
	return &Service{
		ledger:     l,
		users:      pgusers.New(db),
		exceptions: pgexceptions.New(db),
		paystack:   ps,
		monnify:    mv,
		metrics:    m,
	}
}

// GenerateReference returns a fresh deposit reference.
func GenerateReference() string {
	return fmt.Sprintf("DS_FUND_%d_%s", time.Now().UnixMilli(), uuid.NewString()[:8])
}

// RegisterIntent records a client-declared deposit before payment. It is
// only a placeholder: the credited amount always comes from the provider.
// Registering the same reference again returns the existing entry.
func (s *Service) RegisterIntent(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, reference string) (entries.Entry, error) {
	if reference == "" {
		reference = GenerateReference()
	}

	e, created, err := s.ledger.GetOrCreatePending(ctx, ledger.NewEntry{
		UserID:            userID,
		Amount:            amount,
		Kind:              entries.KindDeposit,
		ExternalReference: reference,
	})
	if err != nil {
		return entries.Entry{}, fmt.Errorf("register intent: %w", err)
	}

	if !created {
		slog.InfoContext(ctx, "deposit intent already registered", "reference", reference, "status", e.Status)
	}

	return e, nil
}

// Confirm credits a confirmed payment. Replays of an already credited
// reference report Duplicate and change nothing.
func (s *Service) Confirm(ctx context.Context, c Confirmation) (Result, error) {
	ctx, span := tracer.Start(ctx, "credit.Confirm")
	defer span.End()

	span.SetAttributes(
		attribute.String("credit.source", c.Source),
		attribute.String("credit.reference", c.Reference),
	)

	res, err := s.confirm(ctx, c)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		return res, fmt.Errorf("confirm %s payment %q: %w", c.Source, c.Reference, err)
	}

	return res, nil
}

func (s *Service) confirm(ctx context.Context, c Confirmation) (Result, error) {
	if c.Reference == "" {
		return Result{}, ledger.ErrInvalidReference
	}

	err := ledger.ValidateAmount(c.Amount)
	if err != nil {
		return Result{}, err
	}

	userID, err := s.resolveRecipient(ctx, c)
	if err != nil {
		if errors.Is(err, ErrUnknownRecipient) {
			s.flag(ctx, c, exceptions.ReasonUnknownRecipient)
		}

		return Result{}, err
	}

	e, _, err := s.ledger.GetOrCreatePending(ctx, ledger.NewEntry{
		UserID:            userID,
		Amount:            c.Amount,
		Kind:              entries.KindDeposit,
		ExternalReference: c.Reference,
	})
	if err != nil {
		if errors.Is(err, ledger.ErrReferenceConflict) {
			s.flag(ctx, c, exceptions.ReasonReferenceConflict)
		}

		return Result{}, err
	}

	switch e.Status {
	case entries.StatusSuccess:
		slog.WarnContext(ctx, "duplicate payment confirmation", "source", c.Source, "reference", c.Reference)
		return Result{Entry: e, Duplicate: true}, nil
	case entries.StatusFailed:
		s.flag(ctx, c, exceptions.ReasonResolvedAsFailed)
		return Result{Entry: e}, ErrReferenceConflict
	}

	amount := c.Amount

	resolved, applied, err := s.ledger.Resolve(ctx, ledger.Resolution{
		Reference:         c.Reference,
		Outcome:           ledger.OutcomeSuccess,
		ProviderReference: c.ProviderReference,
		ConfirmedAmount:   &amount,
	})
	if err != nil {
		return Result{}, err
	}

	if !applied {
		if resolved.Status == entries.StatusSuccess {
			slog.WarnContext(ctx, "duplicate payment confirmation", "source", c.Source, "reference", c.Reference)
			return Result{Entry: resolved, Duplicate: true}, nil
		}

		s.flag(ctx, c, exceptions.ReasonResolvedAsFailed)

		return Result{Entry: resolved}, ErrReferenceConflict
	}

	slog.InfoContext(ctx, "wallet credited",
		"source", c.Source,
		"reference", c.Reference,
		"user_id", resolved.UserID,
		"amount", resolved.Amount.StringFixed(2),
	)

	return Result{Entry: resolved, Credited: true}, nil
}

func (s *Service) resolveRecipient(ctx context.Context, c Confirmation) (uuid.UUID, error) {
	r := c.Recipient

	if id, err := uuid.Parse(r.UserID); err == nil {
		err = s.users.Exists(ctx, id)
		switch {
		case err == nil:
			return id, nil
		case !errors.Is(err, users.ErrUserNotFound):
			return uuid.Nil, fmt.Errorf("resolve recipient: %w", err)
		}
	}

	lookups := []struct {
		value string
		find  func(context.Context, string) (users.User, error)
	}{
		{value: r.VirtualAccountNumber, find: s.users.FindByVirtualAccount},
		{value: r.AccountReference, find: s.users.FindByAccountReference},
		{value: r.Email, find: s.users.FindByEmail},
	}

	for _, l := range lookups {
		if l.value == "" {
			continue
		}

		u, err := l.find(ctx, l.value)
		switch {
		case err == nil:
			return u.ID, nil
		case !errors.Is(err, users.ErrUserNotFound):
			return uuid.Nil, fmt.Errorf("resolve recipient: %w", err)
		}
	}

	// a registered intent names its owner
	e, err := s.ledger.Entry(ctx, c.Reference)
	switch {
	case err == nil && e.Kind == entries.KindDeposit:
		return e.UserID, nil
	case err != nil && !errors.Is(err, ledger.ErrEntryNotFound):
		return uuid.Nil, fmt.Errorf("resolve recipient: %w", err)
	}

	return uuid.Nil, ErrUnknownRecipient
}

// flag records a confirmed payment that needs manual review.
func (s *Service) flag(ctx context.Context, c Confirmation, reason string) {
	payload := c.Payload
	if len(payload) == 0 {
		payload, _ = json.Marshal(c.Recipient)
	}

	inserted, err := s.exceptions.Record(ctx, exceptions.Exception{
		Provider:  c.Source,
		Reference: c.Reference,
		Amount:    c.Amount,
		Reason:    reason,
		Payload:   payload,
	})
	if err != nil {
		slog.ErrorContext(ctx, "record payment exception", "reference", c.Reference, "reason", reason, "error", err)
		return
	}

	if inserted {
		s.metrics.ObservePaymentException(reason)
	}

	slog.ErrorContext(ctx, "payment held for review",
		"source", c.Source,
		"reference", c.Reference,
		"amount", c.Amount.StringFixed(2),
		"reason", reason,
	)
}

// HandlePaystackWebhook verifies and applies a Paystack event. Events other
// than successful charges are acknowledged and ignored.
func (s *Service) HandlePaystackWebhook(ctx context.Context, body []byte, signature string) (Result, error) {
	err := s.paystack.VerifySignature(body, signature)
	if err != nil {
		s.metrics.ObserveWebhook(SourcePaystack, "invalid_signature")
		return Result{}, ErrInvalidSignature
	}

	ev, err := paystack.ParseEvent(body)
	if err != nil {
		s.metrics.ObserveWebhook(SourcePaystack, "malformed")
		return Result{}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}

	if ev.Event != paystack.EventChargeSuccess || !ev.Data.Succeeded() {
		slog.InfoContext(ctx, "ignoring paystack event", "event", ev.Event, "reference", ev.Data.Reference)
		s.metrics.ObserveWebhook(SourcePaystack, "ignored")

		return Result{Ignored: true}, nil
	}

	res, err := s.Confirm(ctx, Confirmation{
		Source:            SourcePaystack,
		Reference:         ev.Data.Reference,
		Amount:            ev.Data.Naira(),
		ProviderReference: strconv.FormatInt(ev.Data.ID, 10),
		Recipient: Recipient{
			UserID:               ev.Data.MetadataUserID(),
			VirtualAccountNumber: ev.Data.Authorization.ReceiverBankAccountNumber,
			Email:                ev.Data.Customer.Email,
		},
		Payload: body,
	})
	s.metrics.ObserveWebhook(SourcePaystack, webhookResult(res, err))

	return res, err
}

// HandleMonnifyWebhook verifies and applies a Monnify event.
func (s *Service) HandleMonnifyWebhook(ctx context.Context, body []byte, signature string) (Result, error) {
	err := s.monnify.Verify(body, signature)
	if err != nil {
		s.metrics.ObserveWebhook(SourceMonnify, "invalid_signature")
		return Result{}, ErrInvalidSignature
	}

	ev, err := monnify.ParseEvent(body)
	if err != nil {
		s.metrics.ObserveWebhook(SourceMonnify, "malformed")
		return Result{}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}

	tx := ev.EventData

	if (ev.EventType != "" && ev.EventType != monnify.EventSuccessfulTransaction) || !tx.Paid() {
		slog.InfoContext(ctx, "ignoring monnify event",
			"event", ev.EventType,
			"status", tx.PaymentStatus,
			"reference", tx.TransactionReference,
		)
		s.metrics.ObserveWebhook(SourceMonnify, "ignored")

		return Result{Ignored: true}, nil
	}

	res, err := s.Confirm(ctx, Confirmation{
		Source:            SourceMonnify,
		Reference:         tx.TransactionReference,
		Amount:            tx.AmountPaid,
		ProviderReference: tx.PaymentReference,
		Recipient: Recipient{
			VirtualAccountNumber: tx.Destination.AccountNumber,
			AccountReference:     tx.AccountRef(),
			Email:                tx.Customer.Email,
		},
		Payload: body,
	})
	s.metrics.ObserveWebhook(SourceMonnify, webhookResult(res, err))

	return res, err
}

// VerifyDeposit asks Paystack for the state of one of the user's pending
// deposits and credits it when Paystack reports success.
func (s *Service) VerifyDeposit(ctx context.Context, userID uuid.UUID, reference string) (Result, error) {
	e, err := s.ledger.Entry(ctx, reference)
	if err != nil {
		return Result{}, fmt.Errorf("verify deposit: %w", err)
	}
	if e.UserID != userID || e.Kind != entries.KindDeposit {
		return Result{}, fmt.Errorf("verify deposit: %w", ledger.ErrEntryNotFound)
	}

	switch e.Status {
	case entries.StatusSuccess:
		return Result{Entry: e, Duplicate: true}, nil
	case entries.StatusFailed:
		return Result{Entry: e}, nil
	}

	charge, err := s.paystack.VerifyTransaction(ctx, reference)
	if err != nil {
		if errors.Is(err, paystack.ErrTransactionNotFound) {
			return Result{Entry: e}, ErrPaymentNotConfirmed
		}

		return Result{Entry: e}, fmt.Errorf("verify deposit: %w", err)
	}

	if !charge.Succeeded() {
		slog.InfoContext(ctx, "deposit not yet paid", "reference", reference, "provider_status", charge.Status)
		return Result{Entry: e}, ErrPaymentNotConfirmed
	}

	payload, _ := json.Marshal(charge)

	return s.Confirm(ctx, Confirmation{
		Source:            SourcePaystack,
		Reference:         reference,
		Amount:            charge.Naira(),
		ProviderReference: strconv.FormatInt(charge.ID, 10),
		Recipient:         Recipient{UserID: userID.String()},
		Payload:           payload,
	})
}

func webhookResult(res Result, err error) string {
	switch {
	case errors.Is(err, ErrUnknownRecipient):
		return "unknown_recipient"
	case errors.Is(err, ErrReferenceConflict):
		return "conflict"
	case err != nil:
		return "error"
	case res.Duplicate:
		return "duplicate"
	default:
		return "credited"
	}
}
