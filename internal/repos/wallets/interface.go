package wallets

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrWalletNotFound    = errors.New("wallet not found")
)

// Wallets stores one balance row per user. Mutating methods run inside the
// caller's transaction; balance never goes below zero.
type Wallets interface {
	Ensure(ctx context.Context, tx *sql.Tx, userID uuid.UUID) error
	GetBalance(ctx context.Context, tx *sql.Tx, userID uuid.UUID) (decimal.Decimal, error)
	LockAndGetBalance(ctx context.Context, tx *sql.Tx, userID uuid.UUID) (decimal.Decimal, error)
	IncreaseBalance(ctx context.Context, tx *sql.Tx, userID uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error)
	DecreaseBalance(ctx context.Context, tx *sql.Tx, userID uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error)
}
