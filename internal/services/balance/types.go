package balance

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Snapshot is a read-only view of a wallet. Available excludes funds held
// by purchases that are still pending.
type Snapshot struct {
	UserID    uuid.UUID
	Balance   decimal.Decimal
	Reserved  decimal.Decimal
	Available decimal.Decimal
}

// Update is a committed balance change pushed to subscribers.
type Update struct {
	UserID    uuid.UUID       `json:"user_id"`
	Balance   decimal.Decimal `json:"balance"`
	Reference string          `json:"reference"`
}
