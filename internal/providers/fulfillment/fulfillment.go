// Package fulfillment delivers purchased airtime and data through external
// vending providers and classifies their answers.
package fulfillment

import (
	"context"
	"errors"
	"net"

	"github.com/shopspring/decimal"
)

// Outcome is what a provider answer means for the purchase.
type Outcome int

const (
	// Ambiguous means the provider may or may not have delivered. The entry
	// must stay pending until a definitive answer arrives.
	Ambiguous Outcome = iota
	Accepted
	Rejected
)

func (o Outcome) String() string {
	switch o {
	case Accepted:
		return "accepted"
	case Rejected:
		return "rejected"
	default:
		return "ambiguous"
	}
}

// Order is one delivery request. Reference doubles as the provider request
// id so status queries can find it later.
type Order struct {
	Reference string
	Network   string
	PlanCode  string
	Recipient string
	Amount    decimal.Decimal
}

type Result struct {
	Outcome           Outcome
	ProviderReference string
	Message           string
}

// Provider sends an order exactly once. A non-nil error is a transport
// failure; callers use NotSent to tell whether the request left the host.
type Provider interface {
	Name() string
	Fulfill(ctx context.Context, o Order) (Result, error)
}

// StatusChecker is implemented by providers that can report the state of a
// previously sent order.
type StatusChecker interface {
	CheckStatus(ctx context.Context, reference string) (Result, error)
}

// NotSent reports whether err happened before the request reached the
// provider (DNS failure, refused connection), so no delivery can have
// happened.
func NotSent(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Op == "dial"
	}

	return false
}
