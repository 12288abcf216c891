package api

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/fastprodman/topupledger/internal/providers/monnify"
	"github.com/fastprodman/topupledger/internal/providers/paystack"
	"github.com/fastprodman/topupledger/internal/services/credit"
)

type webhookFunc func(ctx context.Context, body []byte, signature string) (credit.Result, error)

// PaystackWebhookHandler handles POST /webhooks/paystack
func (h *HandlerProvider) PaystackWebhookHandler(w http.ResponseWriter, r *http.Request) {
	h.serveWebhook(w, r, paystack.SignatureHeader, h.credit.HandlePaystackWebhook)
}

// MonnifyWebhookHandler handles POST /webhooks/monnify
func (h *HandlerProvider) MonnifyWebhookHandler(w http.ResponseWriter, r *http.Request) {
	h.serveWebhook(w, r, monnify.SignatureHeader, h.credit.HandleMonnifyWebhook)
}

// serveWebhook answers 200 for anything the provider should not redeliver
// (credited, duplicate, ignored, held for review) and an error status
// otherwise.
func (h *HandlerProvider) serveWebhook(w http.ResponseWriter, r *http.Request, header string, handle webhookFunc) {
	// signatures cover the exact bytes, so the body is read raw
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	res, err := handle(r.Context(), body, r.Header.Get(header))

	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"status": webhookStatus(res)})
	case errors.Is(err, credit.ErrReferenceConflict):
		writeJSON(w, http.StatusOK, map[string]string{"status": "held_for_review"})
	default:
		writeServiceError(w, r, err)
	}
}

func webhookStatus(res credit.Result) string {
	switch {
	case res.Ignored:
		return "ignored"
	case res.Duplicate:
		return "duplicate"
	default:
		return "credited"
	}
}
