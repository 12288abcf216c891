// Package purchase sells airtime and data against wallet balances.
//
// A purchase is reserved in the ledger, marked as fulfilling, sent to its
// provider exactly once and then settled from the provider's answer. When
// the answer is ambiguous the entry stays pending until the sweeper or an
// operator reconciles it; nothing here ever retries a provider call.
package purchase

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fastprodman/topupledger/internal/config"
	"github.com/fastprodman/topupledger/internal/infra/metrics"
	"github.com/fastprodman/topupledger/internal/providers/fulfillment"
	"github.com/fastprodman/topupledger/internal/repos/entries"
	"github.com/fastprodman/topupledger/internal/repos/plans"
	pgplans "github.com/fastprodman/topupledger/internal/repos/plans/postgres"
	"github.com/fastprodman/topupledger/internal/services/ledger"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("github.com/fastprodman/topupledger/internal/services/purchase")

type Service struct {
	ledger    *ledger.Service
	plans     plans.Plans
	providers Providers
	timeout   time.Duration
	metrics   *metrics.Metrics

	// afterReserve runs between the reservation and the fulfilling mark.
	afterReserve func(ctx context.Context, reference string)
}

func New(db *sql.DB, l *ledger.Service, providers Providers, cfg config.PurchaseConfig, m *metrics.Metrics) *Service {
	return &Service{
		ledger:    l,
		plans:     pgplans.New(db),
		providers: providers,
		timeout:   cfg.FulfillmentTimeout,
		metrics:   m,
	}
}

// Plans lists the active data catalog, optionally for one network.
func (s *Service) Plans(ctx context.Context, network string) ([]plans.Plan, error) {
	list, err := s.plans.ListActive(ctx, network)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}

	return list, nil
}

// BuyAirtime charges the face value of the airtime.
func (s *Service) BuyAirtime(ctx context.Context, req AirtimeRequest) (Result, error) {
	network, err := normalizeNetwork(req.Network)
	if err != nil {
		return Result{}, err
	}

	phone, err := NormalizePhone(req.Phone)
	if err != nil {
		return Result{}, err
	}

	err = ledger.ValidateAmount(req.Amount)
	if err != nil {
		return Result{}, err
	}
	if !req.Amount.IsInteger() {
		return Result{}, ErrInvalidAirtime
	}

	return s.Purchase(ctx, Request{
		UserID:      req.UserID,
		Reference:   req.Reference,
		ProductCode: ProductAirtime + ":" + network,
		Price:       req.Amount,
		Order: fulfillment.Order{
			Network:   network,
			Recipient: phone,
			Amount:    req.Amount,
		},
		Provider: s.providers.Airtime,
	})
}

// BuyData charges the catalog selling price of the plan.
func (s *Service) BuyData(ctx context.Context, req DataRequest) (Result, error) {
	phone, err := NormalizePhone(req.Phone)
	if err != nil {
		return Result{}, err
	}

	plan, err := s.plans.Get(ctx, req.PlanCode)
	if err != nil {
		if errors.Is(err, plans.ErrPlanNotFound) {
			return Result{}, fmt.Errorf("%w: %q", ErrUnknownPlan, req.PlanCode)
		}

		return Result{}, fmt.Errorf("load plan: %w", err)
	}

	return s.Purchase(ctx, Request{
		UserID:      req.UserID,
		Reference:   req.Reference,
		ProductCode: ProductData + ":" + plan.Code,
		Price:       plan.SellingPrice,
		Order: fulfillment.Order{
			Network:   plan.Network,
			PlanCode:  plan.ProviderPlanCode,
			Recipient: phone,
			Amount:    plan.SellingPrice,
		},
		Provider: s.providers.Data,
	})
}

// Purchase runs reserve, fulfil and settle for one reference.
func (s *Service) Purchase(ctx context.Context, req Request) (Result, error) {
	if req.Provider == nil {
		return Result{}, fmt.Errorf("purchase %s: no provider configured", req.ProductCode)
	}

	ctx, span := tracer.Start(ctx, "purchase.Purchase")
	defer span.End()

	span.SetAttributes(
		attribute.String("purchase.reference", req.Reference),
		attribute.String("purchase.product", req.ProductCode),
		attribute.String("purchase.provider", req.Provider.Name()),
	)

	res, err := s.purchase(ctx, req)
	if err != nil && !errors.Is(err, ErrProviderUnavailable) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	return res, err
}

func (s *Service) purchase(ctx context.Context, req Request) (Result, error) {
	_, err := s.ledger.Reserve(ctx, ledger.NewEntry{
		UserID:            req.UserID,
		Amount:            req.Price,
		Kind:              entries.KindPurchase,
		ExternalReference: req.Reference,
		ProductCode:       req.ProductCode,
		Recipient:         req.Order.Recipient,
	})
	if err != nil {
		if errors.Is(err, ledger.ErrDuplicateReference) {
			return s.replay(ctx, req)
		}

		s.metrics.ObservePurchase(req.ProductCode, "not_reserved")

		return Result{}, fmt.Errorf("reserve: %w", err)
	}

	if s.afterReserve != nil {
		s.afterReserve(ctx, req.Reference)
	}

	err = s.ledger.MarkFulfilling(ctx, req.Reference)
	if err != nil {
		if errors.Is(err, ledger.ErrNotReserved) {
			return s.expired(ctx, req)
		}

		return Result{}, fmt.Errorf("mark fulfilling: %w", err)
	}

	// The provider call and the settlement outlive the client request.
	detached := context.WithoutCancel(ctx)

	outcome, providerRef, message := s.fulfil(detached, req)

	switch outcome {
	case fulfillment.Accepted:
		e, _, err := s.ledger.Resolve(detached, ledger.Resolution{
			Reference:         req.Reference,
			Outcome:           ledger.OutcomeSuccess,
			ProviderReference: providerRef,
		})
		if err != nil {
			slog.ErrorContext(ctx, "settle accepted purchase", "reference", req.Reference, "error", err)
			return Result{}, fmt.Errorf("settle: %w", err)
		}

		s.metrics.ObservePurchase(req.ProductCode, "success")

		return Result{Entry: e}, nil

	case fulfillment.Rejected:
		e, _, err := s.ledger.Resolve(detached, ledger.Resolution{
			Reference:         req.Reference,
			Outcome:           ledger.OutcomeFailed,
			ProviderReference: providerRef,
		})
		if err != nil {
			slog.ErrorContext(ctx, "release rejected purchase", "reference", req.Reference, "error", err)
			return Result{}, fmt.Errorf("release: %w", err)
		}

		s.metrics.ObservePurchase(req.ProductCode, "failed")

		return Result{Entry: e}, fmt.Errorf("%w: %s", ErrProviderRejected, message)

	default:
		slog.WarnContext(ctx, "purchase outcome unknown, left pending",
			"reference", req.Reference,
			"provider", req.Provider.Name(),
			"message", message,
		)
		s.metrics.ObservePurchase(req.ProductCode, "pending")

		e, err := s.ledger.Entry(detached, req.Reference)
		if err != nil {
			return Result{}, fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
		}

		return Result{Entry: e}, ErrProviderUnavailable
	}
}

// fulfil calls the provider once and folds transport errors into an outcome.
func (s *Service) fulfil(ctx context.Context, req Request) (fulfillment.Outcome, string, string) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	order := req.Order
	order.Reference = req.Reference

	start := time.Now()
	res, err := req.Provider.Fulfill(callCtx, order)
	s.metrics.ObserveFulfillment(req.Provider.Name(), time.Since(start))

	if err == nil {
		return res.Outcome, res.ProviderReference, res.Message
	}

	if fulfillment.NotSent(err) {
		slog.WarnContext(ctx, "provider unreachable, purchase not sent",
			"reference", req.Reference,
			"provider", req.Provider.Name(),
			"error", err,
		)

		return fulfillment.Rejected, "", "provider unreachable"
	}

	return fulfillment.Ambiguous, "", err.Error()
}

func (s *Service) replay(ctx context.Context, req Request) (Result, error) {
	e, err := s.ledger.Entry(ctx, req.Reference)
	if err != nil {
		return Result{}, fmt.Errorf("load existing purchase: %w", err)
	}

	if e.UserID != req.UserID || e.Kind != entries.KindPurchase {
		return Result{}, fmt.Errorf("%w: %q", ErrReferenceConflict, req.Reference)
	}

	slog.InfoContext(ctx, "purchase replayed", "reference", req.Reference, "status", e.Status)

	return Result{Entry: e, Replayed: true}, nil
}

// expired answers a request whose own reservation was settled before it
// reached the provider, normally by the sweeper.
func (s *Service) expired(ctx context.Context, req Request) (Result, error) {
	e, err := s.ledger.Entry(ctx, req.Reference)
	if err != nil {
		return Result{}, fmt.Errorf("load expired purchase: %w", err)
	}

	if e.Status != entries.StatusFailed {
		return s.replay(ctx, req)
	}

	slog.WarnContext(ctx, "reservation expired before fulfillment", "reference", req.Reference)
	s.metrics.ObservePurchase(req.ProductCode, "expired")

	return Result{Entry: e}, ErrReservationExpired
}

// Status returns one of the user's purchases.
func (s *Service) Status(ctx context.Context, userID uuid.UUID, reference string) (entries.Entry, error) {
	e, err := s.ledger.Entry(ctx, reference)
	if err != nil {
		return entries.Entry{}, fmt.Errorf("purchase status: %w", err)
	}
	if e.UserID != userID || e.Kind != entries.KindPurchase {
		return entries.Entry{}, fmt.Errorf("purchase status: %w", ledger.ErrEntryNotFound)
	}

	return e, nil
}

// Reconcile settles an entry from an out-of-band answer (operator or status
// query). It is safe to repeat; only the first call has an effect. Deposits
// can only be failed here: crediting one needs the provider's confirmed amount.
func (s *Service) Reconcile(ctx context.Context, reference string, outcome ledger.Outcome, providerReference string) (entries.Entry, bool, error) {
	current, err := s.ledger.Entry(ctx, reference)
	if err != nil {
		return entries.Entry{}, false, fmt.Errorf("reconcile: %w", err)
	}
	if current.Kind == entries.KindDeposit && outcome == ledger.OutcomeSuccess {
		return entries.Entry{}, false, ErrDepositNeedsVerification
	}

	e, applied, err := s.ledger.Resolve(ctx, ledger.Resolution{
		Reference:         reference,
		Outcome:           outcome,
		ProviderReference: providerReference,
	})
	if err != nil {
		return entries.Entry{}, false, fmt.Errorf("reconcile: %w", err)
	}

	if applied {
		slog.InfoContext(ctx, "entry reconciled", "reference", reference, "outcome", outcome)
		if e.Kind == entries.KindPurchase {
			s.metrics.ObservePurchase(e.ProductCode, string(e.Status))
		}
	}

	return e, applied, nil
}
