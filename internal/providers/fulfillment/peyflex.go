package fulfillment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/fastprodman/topupledger/internal/config"
	"github.com/go-resty/resty/v2"
)

const peyflexName = "peyflex"

// Peyflex vends airtime.
type Peyflex struct {
	rc *resty.Client
}

func NewPeyflex(cfg config.PeyflexConfig) *Peyflex {
	rc := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetAuthScheme("Token").
		SetAuthToken(cfg.APIKey).
		SetHeader("Accept", "application/json")

	return &Peyflex{rc: rc}
}

func (p *Peyflex) Name() string { return peyflexName }

type peyflexTopup struct {
	Network      string      `json:"network"`
	Amount       json.Number `json:"amount"`
	MobileNumber string      `json:"mobile_number"`
}

func (p *Peyflex) Fulfill(ctx context.Context, o Order) (Result, error) {
	resp, err := p.rc.R().
		SetContext(ctx).
		SetBody(peyflexTopup{
			Network:      strings.ToLower(o.Network),
			Amount:       json.Number(o.Amount.String()),
			MobileNumber: o.Recipient,
		}).
		Post("/api/airtime/topup/")
	if err != nil {
		return Result{}, fmt.Errorf("peyflex topup: %w", err)
	}

	return classifyPeyflex(resp.StatusCode(), resp.Body()), nil
}

func classifyPeyflex(code int, body []byte) Result {
	var payload map[string]any
	_ = json.Unmarshal(body, &payload)

	res := Result{
		Outcome:           Ambiguous,
		ProviderReference: firstString(payload, "reference", "transaction_id", "id", "ident"),
		Message:           firstString(payload, "message", "msg", "error"),
	}

	switch {
	case code == http.StatusRequestTimeout || code >= 500:
		return res
	case code >= 400:
		res.Outcome = Rejected
		return res
	case payload == nil:
		return res
	}

	status := strings.ToLower(firstString(payload, "status", "Status"))

	switch status {
	case "success", "successful", "completed", "delivered":
		res.Outcome = Accepted
	case "failed", "failure", "error", "cancelled", "reversed":
		res.Outcome = Rejected
	case "":
		if ok, isBool := payload["success"].(bool); isBool {
			if ok {
				res.Outcome = Accepted
			} else {
				res.Outcome = Rejected
			}
		}
	}

	return res
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return fmt.Sprintf("%.0f", v)
		}
	}

	return ""
}
