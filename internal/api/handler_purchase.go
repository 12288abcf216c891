package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/fastprodman/topupledger/internal/services/ledger"
	"github.com/fastprodman/topupledger/internal/services/purchase"
	"github.com/go-chi/chi/v5"
)

type airtimeRequest struct {
	Network   string `json:"network"`
	Phone     string `json:"phone"`
	Amount    string `json:"amount"`
	Reference string `json:"reference"`
}

type dataRequest struct {
	PlanCode  string `json:"planCode"`
	Phone     string `json:"phone"`
	Reference string `json:"reference"`
}

// ListPlansHandler handles GET /plans?network=
func (h *HandlerProvider) ListPlansHandler(w http.ResponseWriter, r *http.Request) {
	list, err := h.purchase.Plans(r.Context(), strings.ToLower(r.URL.Query().Get("network")))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	type planResponse struct {
		Code    string `json:"code"`
		Network string `json:"network"`
		Name    string `json:"name"`
		Price   string `json:"price"`
	}

	out := make([]planResponse, 0, len(list))
	for _, p := range list {
		out = append(out, planResponse{
			Code:    p.Code,
			Network: p.Network,
			Name:    p.Name,
			Price:   p.SellingPrice.StringFixed(2),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"plans": out})
}

// BuyAirtimeHandler handles POST /purchases/airtime
func (h *HandlerProvider) BuyAirtimeHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var req airtimeRequest

	err := decodeJSON(w, r, &req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ref := requestReference(r, req.Reference)
	if ref == "" {
		writeError(w, http.StatusBadRequest, "reference or Idempotency-Key required")
		return
	}

	res, err := h.purchase.BuyAirtime(r.Context(), purchase.AirtimeRequest{
		UserID:    actor.UserID,
		Reference: ref,
		Network:   req.Network,
		Phone:     req.Phone,
		Amount:    amount,
	})
	writePurchaseResult(w, r, res, err)
}

// BuyDataHandler handles POST /purchases/data
func (h *HandlerProvider) BuyDataHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var req dataRequest

	err := decodeJSON(w, r, &req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ref := requestReference(r, req.Reference)
	if ref == "" {
		writeError(w, http.StatusBadRequest, "reference or Idempotency-Key required")
		return
	}
	if req.PlanCode == "" {
		writeError(w, http.StatusBadRequest, "planCode required")
		return
	}

	res, err := h.purchase.BuyData(r.Context(), purchase.DataRequest{
		UserID:    actor.UserID,
		Reference: ref,
		PlanCode:  req.PlanCode,
		Phone:     req.Phone,
	})
	writePurchaseResult(w, r, res, err)
}

// writePurchaseResult reports the entry with a status that tells the client
// whether the purchase settled (200), was refused by the provider (402) or
// is still awaiting the provider (202).
func writePurchaseResult(w http.ResponseWriter, r *http.Request, res purchase.Result, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{"entry": toEntryResponse(res.Entry), "replayed": res.Replayed})
	case errors.Is(err, purchase.ErrProviderRejected):
		writeJSON(w, http.StatusPaymentRequired, map[string]any{
			"entry": toEntryResponse(res.Entry),
			"error": "provider rejected the purchase",
		})
	case errors.Is(err, purchase.ErrReservationExpired):
		writeJSON(w, http.StatusConflict, map[string]any{
			"entry": toEntryResponse(res.Entry),
			"error": "reservation expired before fulfillment",
		})
	case errors.Is(err, purchase.ErrProviderUnavailable) && res.Entry.ExternalReference != "":
		writeJSON(w, http.StatusAccepted, map[string]any{"entry": toEntryResponse(res.Entry)})
	default:
		writeServiceError(w, r, err)
	}
}

// GetPurchaseHandler handles GET /purchases/{reference}
func (h *HandlerProvider) GetPurchaseHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	e, err := h.purchase.Status(r.Context(), actor.UserID, chi.URLParam(r, "reference"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toEntryResponse(e))
}

type resolveRequest struct {
	Outcome           string `json:"outcome"`
	ProviderReference string `json:"providerReference"`
}

// ResolveEntryHandler handles POST /admin/entries/{reference}/resolve
func (h *HandlerProvider) ResolveEntryHandler(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest

	err := decodeJSON(w, r, &req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	outcome := ledger.Outcome(strings.ToLower(strings.TrimSpace(req.Outcome)))
	if outcome != ledger.OutcomeSuccess && outcome != ledger.OutcomeFailed {
		writeError(w, http.StatusBadRequest, "outcome must be success or failed")
		return
	}

	e, applied, err := h.purchase.Reconcile(r.Context(), chi.URLParam(r, "reference"), outcome, req.ProviderReference)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"entry": toEntryResponse(e), "applied": applied})
}
