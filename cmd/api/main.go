package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/fastprodman/topupledger/internal/api"
	"github.com/fastprodman/topupledger/internal/infra/auth"
	"github.com/fastprodman/topupledger/internal/infra/logging"
	"github.com/fastprodman/topupledger/internal/infra/metrics"
	"github.com/fastprodman/topupledger/internal/infra/pgutils"
	"github.com/fastprodman/topupledger/internal/infra/tracing"
	"github.com/fastprodman/topupledger/internal/providers/fulfillment"
	"github.com/fastprodman/topupledger/internal/providers/monnify"
	"github.com/fastprodman/topupledger/internal/providers/paystack"
	"github.com/fastprodman/topupledger/internal/services/balance"
	"github.com/fastprodman/topupledger/internal/services/credit"
	"github.com/fastprodman/topupledger/internal/services/ledger"
	"github.com/fastprodman/topupledger/internal/services/purchase"
	"github.com/fastprodman/topupledger/pkg/envconf"
	"github.com/fastprodman/topupledger/pkg/shutdownqueue"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error running api: %v", err)
		//nolint:gocritic
		os.Exit(1)
	}
}

//nolint:funlen
func run(ctx context.Context) (retErr error) {
	cfg := new(apiConfig)

	err := envconf.Load(cfg)
	if err != nil {
		return fmt.Errorf("init config: %w", err)
	}

	logging.SetupJSON(cfg.LogLevel, slog.String("service", cfg.Tracing.ServiceName), slog.String("version", version))

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		serr := shutdownqueue.Shutdown(shutdownCtx)
		if serr != nil {
			retErr = errors.Join(retErr, serr)
		}
	}()

	// --- Observability ---
	tp, err := tracing.Setup(ctx, cfg.Tracing, version)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}

	shutdownqueue.Add("tracer", tp.Shutdown)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// --- Infra ---
	db, err := pgutils.OpenDB(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}

	shutdownqueue.Add("postgres", func(context.Context) error {
		return db.Close()
	})

	// --- Services ---
	ledgerSrv := ledger.New(db, m)

	hub := balance.NewHub(cfg.Postgres.DSN, m)
	balanceSrv := balance.New(ledgerSrv, hub)

	creditSrv := credit.New(
		db,
		ledgerSrv,
		paystack.NewClient(cfg.Paystack),
		monnify.NewVerifier(cfg.Monnify.SecretKey),
		m,
	)

	providers := purchase.Providers{
		Airtime: fulfillment.NewPeyflex(cfg.Peyflex),
		Data:    fulfillment.NewClubkonnect(cfg.Clubkonnect),
	}
	purchaseSrv := purchase.New(db, ledgerSrv, providers, cfg.Purchase, m)
	sweeper := purchase.NewSweeper(ledgerSrv, providers, cfg.Purchase, m)

	// --- Background workers ---
	workersCtx, stopWorkers := context.WithCancel(context.WithoutCancel(ctx))
	workersDone := make(chan struct{}, 2)

	go func() {
		defer func() { workersDone <- struct{}{} }()

		herr := hub.Run(workersCtx)
		if herr != nil {
			slog.Error("balance hub stopped", "error", herr)
		}
	}()

	go func() {
		defer func() { workersDone <- struct{}{} }()

		sweeper.Run(workersCtx)
	}()

	// registered before the server so it runs after the server drains
	shutdownqueue.Add("workers", func(c context.Context) error {
		stopWorkers()

		for range 2 {
			select {
			case <-workersDone:
			case <-c.Done():
				return fmt.Errorf("wait workers: %w", c.Err())
			}
		}

		return nil
	})

	// --- HTTP server ---
	handlers := api.NewHandler(balanceSrv, creditSrv, purchaseSrv)
	handler := api.NewRouter(api.Deps{
		Handler:        handlers,
		Verifier:       auth.NewJWTVerifier(cfg.Auth.JWTSecret),
		Metrics:        m,
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
	})

	srv := api.NewServer(cfg.Port, handler, cfg.WriteTimeout)
	srv.RegisterOnShutdown(handlers.CloseStreams)

	shutdownqueue.Add("http server", func(c context.Context) error {
		err := srv.Shutdown(c)
		if err != nil {
			return fmt.Errorf("shutdown srv: %w", err)
		}

		return nil
	})

	// Run server
	errCh := make(chan error, 1)

	go func() {
		serr := srv.ListenAndServe()
		// http.ErrServerClosed is the normal path during Shutdown
		if serr != nil && !errors.Is(serr, http.ErrServerClosed) {
			errCh <- serr
			return
		}

		errCh <- nil
	}()

	slog.Info("API started", "port", cfg.Port)

	// --- Wait until either context cancels or server errors out ---
	select {
	case <-ctx.Done():
		// graceful path; deferred shutdownqueue.Shutdown will run
		return nil
	case serr := <-errCh:
		if serr != nil {
			return fmt.Errorf("server error: %w", serr)
		}

		return nil
	}
}
