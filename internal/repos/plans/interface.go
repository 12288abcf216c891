package plans

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var ErrPlanNotFound = errors.New("data plan not found")

// Plan is a sellable data bundle. SellingPrice is what the wallet is charged;
// ProviderPlanCode is what the fulfillment provider expects.
type Plan struct {
	Code             string
	Network          string
	Name             string
	ProviderPlanCode string
	SellingPrice     decimal.Decimal
	Active           bool
}

type Plans interface {
	Get(ctx context.Context, code string) (Plan, error)
	ListActive(ctx context.Context, network string) ([]Plan, error)
}
