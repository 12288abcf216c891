package exceptions

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Reasons a confirmed payment could not be applied automatically.
const (
	ReasonUnknownRecipient  = "unknown_recipient"
	ReasonReferenceConflict = "reference_conflict"
	ReasonResolvedAsFailed  = "resolved_as_failed"
)

// Exception is a confirmed external payment held for manual review.
type Exception struct {
	ID        int64
	Provider  string
	Reference string
	Amount    decimal.Decimal
	Reason    string
	Payload   json.RawMessage
	CreatedAt time.Time
}

type Exceptions interface {
	// Record stores e once per (provider, reference, reason); repeats are
	// ignored and report false.
	Record(ctx context.Context, e Exception) (bool, error)
	List(ctx context.Context, limit, offset int) ([]Exception, error)
}
