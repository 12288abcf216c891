package purchase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fastprodman/topupledger/internal/config"
	"github.com/fastprodman/topupledger/internal/infra/metrics"
	"github.com/fastprodman/topupledger/internal/providers/fulfillment"
	"github.com/fastprodman/topupledger/internal/services/ledger"
)

const statusCheckTimeout = 15 * time.Second

// Sweeper settles purchases left pending. Reservations that never reached
// a provider are released after ReserveTimeout; purchases handed to a
// provider are settled only from a definitive status query answer.
// Deposits are never touched: a late payment must still be creditable.
type Sweeper struct {
	ledger    *ledger.Service
	providers Providers
	cfg       config.PurchaseConfig
	metrics   *metrics.Metrics
	now       func() time.Time
}

func NewSweeper(l *ledger.Service, providers Providers, cfg config.PurchaseConfig, m *metrics.Metrics) *Sweeper {
	if cfg.SweepBatchSize <= 0 {
		cfg.SweepBatchSize = 100
	}

	return &Sweeper{
		ledger:    l,
		providers: providers,
		cfg:       cfg,
		metrics:   m,
		now:       time.Now,
	}
}

// Run sweeps every SweepInterval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	if s.cfg.SweepInterval <= 0 {
		return
	}

	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats, err := s.Sweep(ctx)
			if err != nil {
				slog.Error("purchase sweep failed", "error", err)
				continue
			}
			if stats["expired"]+stats["succeeded"]+stats["failed"] > 0 {
				slog.Info("purchase sweep settled entries", "stats", stats)
			}
		}
	}
}

// Sweep runs one pass and reports how many entries ended in each bucket:
// expired, succeeded, failed, pending, unchecked.
func (s *Sweeper) Sweep(ctx context.Context) (map[string]int, error) {
	stats := map[string]int{}
	now := s.now()

	errReserved := s.expireReservations(ctx, now.Add(-s.cfg.ReserveTimeout), stats)
	errFulfilling := s.checkFulfilling(ctx, now.Add(-s.cfg.StatusCheckAfter), stats)

	err := errors.Join(errReserved, errFulfilling)
	s.metrics.ObserveSweep(stats, err)

	return stats, err
}

func (s *Sweeper) expireReservations(ctx context.Context, cutoff time.Time, stats map[string]int) error {
	stale, err := s.ledger.StaleReservations(ctx, cutoff, s.cfg.SweepBatchSize)
	if err != nil {
		return fmt.Errorf("list stale reservations: %w", err)
	}

	for _, e := range stale {
		// RequireUnstarted loses to a concurrent MarkFulfilling.
		_, applied, err := s.ledger.Resolve(ctx, ledger.Resolution{
			Reference:        e.ExternalReference,
			Outcome:          ledger.OutcomeFailed,
			RequireUnstarted: true,
		})
		if err != nil {
			slog.Error("expire reservation", "reference", e.ExternalReference, "error", err)
			continue
		}

		if applied {
			stats["expired"]++
			slog.Info("reservation expired", "reference", e.ExternalReference, "created_at", e.CreatedAt)
		}
	}

	return nil
}

func (s *Sweeper) checkFulfilling(ctx context.Context, cutoff time.Time, stats map[string]int) error {
	stale, err := s.ledger.StaleFulfilling(ctx, cutoff, s.cfg.SweepBatchSize)
	if err != nil {
		return fmt.Errorf("list stale fulfilling: %w", err)
	}

	for _, e := range stale {
		checker, ok := s.providers.forProduct(e.ProductCode).(fulfillment.StatusChecker)
		if !ok {
			stats["unchecked"]++
			continue
		}

		res, err := s.check(ctx, checker, e.ExternalReference)
		if err != nil {
			slog.Warn("status check failed", "reference", e.ExternalReference, "error", err)
			stats["pending"]++

			continue
		}

		var (
			outcome ledger.Outcome
			bucket  string
		)

		switch res.Outcome {
		case fulfillment.Accepted:
			outcome, bucket = ledger.OutcomeSuccess, "succeeded"
		case fulfillment.Rejected:
			outcome, bucket = ledger.OutcomeFailed, "failed"
		default:
			stats["pending"]++
			continue
		}

		_, applied, err := s.ledger.Resolve(ctx, ledger.Resolution{
			Reference:         e.ExternalReference,
			Outcome:           outcome,
			ProviderReference: res.ProviderReference,
		})
		if err != nil {
			slog.Error("settle checked purchase", "reference", e.ExternalReference, "error", err)
			continue
		}

		if applied {
			stats[bucket]++
			slog.Info("purchase settled by status check", "reference", e.ExternalReference, "outcome", outcome)
		}
	}

	return nil
}

func (s *Sweeper) check(ctx context.Context, checker fulfillment.StatusChecker, reference string) (fulfillment.Result, error) {
	callCtx, cancel := context.WithTimeout(ctx, statusCheckTimeout)
	defer cancel()

	return checker.CheckStatus(callCtx, reference)
}
