package wallets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fastprodman/topupledger/internal/repos/wallets"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DecreaseBalance subtracts amount and returns the new balance. A missing
// wallet or a balance below amount yields ErrInsufficientFunds.
func (r *walletsRepo) DecreaseBalance(ctx context.Context, tx *sql.Tx, userID uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error) {
	var balance decimal.Decimal

	err := tx.QueryRowContext(ctx, `
		UPDATE wallets
		SET balance = balance - $2,
		    updated_at = now()
		WHERE user_id = $1
		  AND balance >= $2
		RETURNING balance
	`, userID, amount).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, wallets.ErrInsufficientFunds
		}

		return decimal.Zero, fmt.Errorf("decrease balance: %w", err)
	}

	return balance, nil
}
