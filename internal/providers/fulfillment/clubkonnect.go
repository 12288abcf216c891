package fulfillment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fastprodman/topupledger/internal/config"
	"github.com/go-resty/resty/v2"
)

const clubkonnectName = "clubkonnect"

var clubkonnectNetworks = map[string]string{
	"mtn":     "01",
	"glo":     "02",
	"9mobile": "03",
	"airtel":  "04",
}

// Clubkonnect vends data bundles and answers order status queries.
type Clubkonnect struct {
	rc     *resty.Client
	userID string
	apiKey string
}

func NewClubkonnect(cfg config.ClubkonnectConfig) *Clubkonnect {
	return &Clubkonnect{
		rc:     resty.New().SetBaseURL(cfg.BaseURL),
		userID: cfg.UserID,
		apiKey: cfg.APIKey,
	}
}

func (c *Clubkonnect) Name() string { return clubkonnectName }

type clubkonnectReply struct {
	OrderID    string `json:"orderid"`
	StatusCode string `json:"statuscode"`
	Status     string `json:"status"`
	Remark     string `json:"remark"`
}

func (c *Clubkonnect) Fulfill(ctx context.Context, o Order) (Result, error) {
	network, ok := clubkonnectNetworks[strings.ToLower(o.Network)]
	if !ok {
		return Result{Outcome: Rejected, Message: fmt.Sprintf("unsupported network %q", o.Network)}, nil
	}

	resp, err := c.rc.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"UserID":        c.userID,
			"APIKey":        c.apiKey,
			"MobileNetwork": network,
			"DataPlan":      o.PlanCode,
			"MobileNumber":  o.Recipient,
			"RequestID":     o.Reference,
		}).
		Get("/APIDatabundleV1.asp")
	if err != nil {
		return Result{}, fmt.Errorf("clubkonnect databundle: %w", err)
	}
	if resp.StatusCode() >= 500 {
		return Result{Outcome: Ambiguous, Message: resp.Status()}, nil
	}

	// replies are JSON but not always labelled as such
	var reply clubkonnectReply

	err = json.Unmarshal(resp.Body(), &reply)
	if err != nil {
		return Result{Outcome: Ambiguous, Message: "unreadable reply"}, nil
	}

	return Result{
		Outcome:           classifyClubkonnectOrder(reply),
		ProviderReference: reply.OrderID,
		Message:           reply.Status,
	}, nil
}

func (c *Clubkonnect) CheckStatus(ctx context.Context, reference string) (Result, error) {
	resp, err := c.rc.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"UserID":    c.userID,
			"APIKey":    c.apiKey,
			"RequestID": reference,
		}).
		Get("/APIQueryV1.asp")
	if err != nil {
		return Result{}, fmt.Errorf("clubkonnect query: %w", err)
	}
	if resp.IsError() {
		return Result{Outcome: Ambiguous, Message: resp.Status()}, nil
	}

	var reply clubkonnectReply

	err = json.Unmarshal(resp.Body(), &reply)
	if err != nil {
		return Result{Outcome: Ambiguous, Message: "unreadable reply"}, nil
	}

	res := Result{Outcome: Ambiguous, ProviderReference: reply.OrderID, Message: reply.Status}

	switch strings.ToUpper(reply.Status) {
	case "ORDER_COMPLETED":
		res.Outcome = Accepted
	case "ORDER_CANCELLED":
		res.Outcome = Rejected
	}

	return res, nil
}

func classifyClubkonnectOrder(r clubkonnectReply) Outcome {
	status := strings.ToUpper(r.Status)

	switch {
	case status == "ORDER_RECEIVED" || r.StatusCode == "100":
		return Accepted
	case status == "ORDER_COMPLETED" || r.StatusCode == "200":
		return Accepted
	case status == "ORDER_CANCELLED",
		strings.HasPrefix(status, "INVALID_"),
		strings.HasPrefix(status, "MISSING_"),
		strings.HasPrefix(status, "INSUFFICIENT_"):
		return Rejected
	default:
		return Ambiguous
	}
}
