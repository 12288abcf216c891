package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/fastprodman/topupledger/internal/infra/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// instrument records request count and latency per route pattern, so path
// parameters such as references do not explode label cardinality.
func instrument(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			m.ObserveHTTP(r.Method, route, status, time.Since(start))

			slog.DebugContext(r.Context(), "http request",
				"method", r.Method,
				"route", route,
				"status", status,
				"request_id", middleware.GetReqID(r.Context()),
				"took", time.Since(start),
			)
		})
	}
}
