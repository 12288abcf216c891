// Package ledger is the only writer of wallet balances and entry statuses.
//
// Every balance change happens in the same database transaction that moves
// an entry from pending to a terminal status, so a balance never changes
// without exactly one resolved entry explaining it. Row locks are always
// taken entry first, then wallet (Resolve) or wallet only (Reserve).
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fastprodman/topupledger/internal/infra/metrics"
	"github.com/fastprodman/topupledger/internal/infra/pgutils"
	"github.com/fastprodman/topupledger/internal/repos/entries"
	pgentries "github.com/fastprodman/topupledger/internal/repos/entries/postgres"
	"github.com/fastprodman/topupledger/internal/repos/users"
	pgusers "github.com/fastprodman/topupledger/internal/repos/users/postgres"
	"github.com/fastprodman/topupledger/internal/repos/wallets"
	pgwallets "github.com/fastprodman/topupledger/internal/repos/wallets/postgres"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

var tracer = otel.Tracer("github.com/fastprodman/topupledger/internal/services/ledger")

type Service struct {
	db      *sql.DB
	users   users.Users
	wallets wallets.Wallets
	entries entries.Entries
	metrics *metrics.Metrics
}

func New(db *sql.DB, m *metrics.Metrics) *Service {
	return &Service{
		db:      db,
		users:   pgusers.New(db),
		wallets: pgwallets.New(db),
		entries: pgentries.New(db),
		metrics: m,
	}
}

// Balances is a point-in-time view of a wallet.
type Balances struct {
	Balance   decimal.Decimal
	Reserved  decimal.Decimal
	Available decimal.Decimal
}

// BalanceChange is the NOTIFY payload published on BalanceChannel.
type BalanceChange struct {
	UserID    uuid.UUID       `json:"user_id"`
	Balance   decimal.Decimal `json:"balance"`
	Reference string          `json:"reference"`
}

// CreatePendingEntry records a new pending entry. It has no balance effect.
func (s *Service) CreatePendingEntry(ctx context.Context, n NewEntry) (entries.Entry, error) {
	ctx, span := startSpan(ctx, "ledger.CreatePendingEntry", n.ExternalReference)
	defer span.End()

	created, err := s.createPending(ctx, n)
	if err != nil {
		recordError(span, err)
		return entries.Entry{}, fmt.Errorf("create pending entry: %w", err)
	}

	return created, nil
}

func (s *Service) createPending(ctx context.Context, n NewEntry) (entries.Entry, error) {
	err := n.validate()
	if err != nil {
		return entries.Entry{}, err
	}

	err = s.users.Exists(ctx, n.UserID)
	if err != nil {
		return entries.Entry{}, fmt.Errorf("check user: %w", err)
	}

	var created entries.Entry

	err = pgutils.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		err := s.wallets.Ensure(ctx, tx, n.UserID)
		if err != nil {
			return fmt.Errorf("ensure wallet: %w", err)
		}

		created, err = s.entries.Insert(ctx, tx, n.entry())
		if err != nil {
			return fmt.Errorf("insert entry: %w", err)
		}

		return nil
	})
	if err != nil {
		return entries.Entry{}, err
	}

	return created, nil
}

// GetOrCreatePending is the idempotent form of CreatePendingEntry. It
// reports whether the entry was created by this call. A reference already
// used by another user or kind yields ErrReferenceConflict.
func (s *Service) GetOrCreatePending(ctx context.Context, n NewEntry) (entries.Entry, bool, error) {
	ctx, span := startSpan(ctx, "ledger.GetOrCreatePending", n.ExternalReference)
	defer span.End()

	created, err := s.createPending(ctx, n)
	if err == nil {
		return created, true, nil
	}
	if !errors.Is(err, ErrDuplicateReference) {
		recordError(span, err)
		return entries.Entry{}, false, fmt.Errorf("get or create pending: %w", err)
	}

	existing, err := s.entries.GetByReference(ctx, n.ExternalReference)
	if err != nil {
		recordError(span, err)
		return entries.Entry{}, false, fmt.Errorf("load existing entry: %w", err)
	}

	if !n.matches(existing) {
		return entries.Entry{}, false, fmt.Errorf(
			"%w: reference %q belongs to a %s entry of another request",
			ErrReferenceConflict, n.ExternalReference, existing.Kind,
		)
	}

	return existing, false, nil
}

// Reserve records a pending purchase, refusing it when the wallet's
// available balance (balance minus pending purchases) cannot cover it.
// The wallet row lock serializes concurrent reservations of one user.
func (s *Service) Reserve(ctx context.Context, n NewEntry) (entries.Entry, error) {
	ctx, span := startSpan(ctx, "ledger.Reserve", n.ExternalReference)
	defer span.End()

	if n.Kind != entries.KindPurchase {
		return entries.Entry{}, fmt.Errorf("reserve: %w: %q", ErrInvalidKind, n.Kind)
	}

	err := n.validate()
	if err != nil {
		return entries.Entry{}, fmt.Errorf("reserve: %w", err)
	}

	err = s.users.Exists(ctx, n.UserID)
	if err != nil {
		return entries.Entry{}, fmt.Errorf("reserve: check user: %w", err)
	}

	var reserved entries.Entry

	err = pgutils.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		err := s.wallets.Ensure(ctx, tx, n.UserID)
		if err != nil {
			return fmt.Errorf("ensure wallet: %w", err)
		}

		balance, err := s.wallets.LockAndGetBalance(ctx, tx, n.UserID)
		if err != nil {
			return fmt.Errorf("lock wallet: %w", err)
		}

		pending, err := s.entries.SumPendingPurchases(ctx, tx, n.UserID)
		if err != nil {
			return fmt.Errorf("sum pending: %w", err)
		}

		if balance.Sub(pending).LessThan(n.Amount) {
			return ErrInsufficientFunds
		}

		reserved, err = s.entries.Insert(ctx, tx, n.entry())
		if err != nil {
			return fmt.Errorf("insert entry: %w", err)
		}

		return nil
	})
	if err != nil {
		s.metrics.ObserveReservation(reservationResult(err))
		recordError(span, err)
		return entries.Entry{}, fmt.Errorf("reserve: %w", err)
	}

	s.metrics.ObserveReservation("ok")

	return reserved, nil
}

// Resolve moves a pending entry to a terminal status and applies its balance
// effect atomically. Resolving an entry that is already terminal returns it
// unchanged with applied=false; nothing is ever applied twice.
func (s *Service) Resolve(ctx context.Context, r Resolution) (entries.Entry, bool, error) {
	ctx, span := startSpan(ctx, "ledger.Resolve", r.Reference)
	defer span.End()

	span.SetAttributes(attribute.String("ledger.outcome", string(r.Outcome)))

	status, err := r.Outcome.status()
	if err != nil {
		return entries.Entry{}, false, fmt.Errorf("resolve: %w", err)
	}
	if r.Reference == "" {
		return entries.Entry{}, false, fmt.Errorf("resolve: %w", ErrInvalidReference)
	}
	if r.ConfirmedAmount != nil {
		err = ValidateAmount(*r.ConfirmedAmount)
		if err != nil {
			return entries.Entry{}, false, fmt.Errorf("resolve: confirmed amount: %w", err)
		}
	}

	var (
		resolved entries.Entry
		applied  bool
	)

	err = pgutils.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		e, err := s.entries.LockByReference(ctx, tx, r.Reference)
		if err != nil {
			return fmt.Errorf("lock entry: %w", err)
		}

		resolved = e

		if e.Status.Terminal() {
			return nil
		}
		if r.RequireUnstarted && e.FulfillmentStartedAt != nil {
			return nil
		}

		if r.ConfirmedAmount != nil && e.Kind == entries.KindDeposit && !e.Amount.Equal(*r.ConfirmedAmount) {
			slog.WarnContext(ctx, "deposit amount differs from declared intent",
				"reference", e.ExternalReference,
				"declared", e.Amount.StringFixed(2),
				"confirmed", r.ConfirmedAmount.StringFixed(2),
			)

			err = s.entries.SetAmount(ctx, tx, e.ID, *r.ConfirmedAmount)
			if err != nil {
				return fmt.Errorf("amend amount: %w", err)
			}

			e.Amount = *r.ConfirmedAmount
		}

		if status == entries.StatusSuccess {
			balance, err := s.applyEffect(ctx, tx, e)
			if err != nil {
				return err
			}

			err = notifyBalance(ctx, tx, BalanceChange{UserID: e.UserID, Balance: balance, Reference: e.ExternalReference})
			if err != nil {
				return err
			}
		}

		resolved, err = s.entries.SetOutcome(ctx, tx, e.ID, status, r.ProviderReference)
		if err != nil {
			return fmt.Errorf("set outcome: %w", err)
		}

		applied = true

		return nil
	})
	if err != nil {
		recordError(span, err)
		return entries.Entry{}, false, fmt.Errorf("resolve: %w", err)
	}

	result := "noop"
	if applied {
		result = string(resolved.Status)
	}
	s.metrics.ObserveResolution(string(resolved.Kind), result)
	span.SetAttributes(attribute.Bool("ledger.applied", applied))

	return resolved, applied, nil
}

func (s *Service) applyEffect(ctx context.Context, tx *sql.Tx, e entries.Entry) (decimal.Decimal, error) {
	switch e.Kind {
	case entries.KindDeposit:
		err := s.wallets.Ensure(ctx, tx, e.UserID)
		if err != nil {
			return decimal.Zero, fmt.Errorf("ensure wallet: %w", err)
		}

		balance, err := s.wallets.IncreaseBalance(ctx, tx, e.UserID, e.Amount)
		if err != nil {
			return decimal.Zero, fmt.Errorf("credit wallet: %w", err)
		}

		return balance, nil
	case entries.KindPurchase:
		balance, err := s.wallets.DecreaseBalance(ctx, tx, e.UserID, e.Amount)
		if err != nil {
			return decimal.Zero, fmt.Errorf("debit wallet: %w", err)
		}

		return balance, nil
	default:
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidKind, e.Kind)
	}
}

// MarkFulfilling records that a reserved purchase is being handed to its
// provider. Only one caller can win; the rest get ErrNotReserved.
func (s *Service) MarkFulfilling(ctx context.Context, reference string) error {
	won, err := s.entries.MarkFulfilling(ctx, reference)
	if err != nil {
		return fmt.Errorf("mark fulfilling: %w", err)
	}
	if !won {
		return ErrNotReserved
	}

	return nil
}

// CurrentBalance is a pure read. A user without a wallet has a zero balance.
func (s *Service) CurrentBalance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	b, err := s.Balances(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}

	return b.Balance, nil
}

// Balances returns the balance together with the amount held by pending
// purchases. Both come from one snapshot.
func (s *Service) Balances(ctx context.Context, userID uuid.UUID) (Balances, error) {
	var (
		balance  decimal.Decimal
		reserved decimal.Decimal
		noWallet bool
	)

	err := pgutils.WithSnapshotTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error

		balance, err = s.wallets.GetBalance(ctx, tx, userID)
		if errors.Is(err, wallets.ErrWalletNotFound) {
			noWallet = true
			return nil
		}
		if err != nil {
			return err
		}

		reserved, err = s.entries.SumPendingPurchases(ctx, tx, userID)
		return err
	})
	if err != nil {
		return Balances{}, fmt.Errorf("balances: %w", err)
	}

	if noWallet {
		err = s.users.Exists(ctx, userID)
		if err != nil {
			return Balances{}, fmt.Errorf("balances: %w", err)
		}

		return Balances{Balance: decimal.Zero, Reserved: decimal.Zero, Available: decimal.Zero}, nil
	}

	available := balance.Sub(reserved)
	if available.IsNegative() {
		available = decimal.Zero
	}

	return Balances{Balance: balance, Reserved: reserved, Available: available}, nil
}

func (s *Service) Entry(ctx context.Context, reference string) (entries.Entry, error) {
	e, err := s.entries.GetByReference(ctx, reference)
	if err != nil {
		return entries.Entry{}, fmt.Errorf("get entry: %w", err)
	}

	return e, nil
}

// History lists a user's entries, newest first.
func (s *Service) History(ctx context.Context, userID uuid.UUID, limit, offset int) ([]entries.Entry, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}

	list, err := s.entries.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}

	return list, nil
}

// StaleReservations lists purchases reserved before cutoff that never reached a provider.
func (s *Service) StaleReservations(ctx context.Context, cutoff time.Time, limit int) ([]entries.Entry, error) {
	return s.entries.ListStaleReserved(ctx, cutoff, limit)
}

// StaleFulfilling lists purchases handed to a provider before cutoff that are still pending.
func (s *Service) StaleFulfilling(ctx context.Context, cutoff time.Time, limit int) ([]entries.Entry, error) {
	return s.entries.ListStaleFulfilling(ctx, cutoff, limit)
}

func notifyBalance(ctx context.Context, tx *sql.Tx, change BalanceChange) error {
	payload, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("encode balance change: %w", err)
	}

	// Delivered to listeners only if tx commits.
	_, err = tx.ExecContext(ctx, `SELECT pg_notify($1, $2)`, BalanceChannel, string(payload))
	if err != nil {
		return fmt.Errorf("notify balance: %w", err)
	}

	return nil
}

func reservationResult(err error) string {
	switch {
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrDuplicateReference):
		return "duplicate"
	default:
		return "error"
	}
}

func startSpan(ctx context.Context, name, reference string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attribute.String("ledger.reference", reference)))
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
