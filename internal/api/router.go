package api

import (
	"net/http"

	"github.com/fastprodman/topupledger/internal/infra/auth"
	"github.com/fastprodman/topupledger/internal/infra/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Deps is everything the router needs. MetricsHandler may be nil.
type Deps struct {
	Handler        *HandlerProvider
	Verifier       *auth.JWTVerifier
	Metrics        *metrics.Metrics
	MetricsHandler http.Handler
}

// NewRouter constructs a chi router with all API endpoints registered.
func NewRouter(d Deps) http.Handler {
	h := d.Handler
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(instrument(d.Metrics))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if d.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", d.MetricsHandler)
	}

	// providers authenticate with a body signature, not a bearer token
	r.Post("/webhooks/paystack", h.PaystackWebhookHandler)
	r.Post("/webhooks/monnify", h.MonnifyWebhookHandler)

	r.Get("/plans", h.ListPlansHandler)

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(d.Verifier))

		r.Get("/wallet/balance", h.GetBalanceHandler)
		r.Get("/wallet/entries", h.ListEntriesHandler)
		r.Get("/wallet/stream", h.StreamBalanceHandler)
		r.Post("/wallet/deposits", h.RegisterDepositHandler)
		r.Post("/wallet/deposits/{reference}/verify", h.VerifyDepositHandler)

		r.Post("/purchases/airtime", h.BuyAirtimeHandler)
		r.Post("/purchases/data", h.BuyDataHandler)
		r.Get("/purchases/{reference}", h.GetPurchaseHandler)

		r.With(auth.RequireAdmin).Post("/admin/entries/{reference}/resolve", h.ResolveEntryHandler)
	})

	return r
}
