package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

type balanceResponse struct {
	UserID    string `json:"userId"`
	Balance   string `json:"balance"`
	Reserved  string `json:"reserved"`
	Available string `json:"available"`
}

// GetBalanceHandler handles GET /wallet/balance
func (h *HandlerProvider) GetBalanceHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	snap, err := h.balance.GetBalance(r.Context(), actor.UserID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, balanceResponse{
		UserID:    snap.UserID.String(),
		Balance:   snap.Balance.StringFixed(2),
		Reserved:  snap.Reserved.StringFixed(2),
		Available: snap.Available.StringFixed(2),
	})
}

// ListEntriesHandler handles GET /wallet/entries?limit=&offset=
func (h *HandlerProvider) ListEntriesHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	limit, offset, err := parsePage(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	list, err := h.balance.History(r.Context(), actor.UserID, limit, offset)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	out := make([]entryResponse, 0, len(list))
	for _, e := range list {
		out = append(out, toEntryResponse(e))
	}

	writeJSON(w, http.StatusOK, map[string]any{"entries": out})
}

type depositRequest struct {
	Amount    string `json:"amount"`
	Reference string `json:"reference"`
}

// RegisterDepositHandler handles POST /wallet/deposits. The entry it creates
// stays pending until the payment provider confirms the payment.
func (h *HandlerProvider) RegisterDepositHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var req depositRequest

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

	e, err := h.credit.RegisterIntent(r.Context(), actor.UserID, amount, requestReference(r, req.Reference))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toEntryResponse(e))
}

// VerifyDepositHandler handles POST /wallet/deposits/{reference}/verify
func (h *HandlerProvider) VerifyDepositHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	res, err := h.credit.VerifyDeposit(r.Context(), actor.UserID, chi.URLParam(r, "reference"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entry":    toEntryResponse(res.Entry),
		"credited": res.Credited,
	})
}

// StreamBalanceHandler handles GET /wallet/stream as server-sent events. It
// sends the current balance first, then every committed change.
func (h *HandlerProvider) StreamBalanceHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	rc := http.NewResponseController(w)

	// the server write timeout does not apply to a stream
	_ = rc.SetWriteDeadline(time.Time{})

	updates, cancel := h.balance.Subscribe(actor.UserID)
	defer cancel()

	snap, err := h.balance.GetBalance(r.Context(), actor.UserID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	send := func(payload string) bool {
		_, err := fmt.Fprint(w, payload)
		if err == nil {
			err = rc.Flush()
		}

		return err == nil
	}

	if !send(balanceEvent(snap.Balance.StringFixed(2), "")) {
		return
	}

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-h.streamsDone:
			return
		case u, open := <-updates:
			if !open || !send(balanceEvent(u.Balance.StringFixed(2), u.Reference)) {
				return
			}
		case <-ticker.C:
			if !send(": ping\n\n") {
				return
			}
		}
	}
}

func balanceEvent(balance, reference string) string {
	return fmt.Sprintf("event: balance\ndata: {\"balance\":%q,\"reference\":%q}\n\n", balance, reference)
}
