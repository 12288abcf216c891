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

// IncreaseBalance adds amount and returns the new balance.
func (r *walletsRepo) IncreaseBalance(ctx context.Context, tx *sql.Tx, userID uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error) {
	var balance decimal.Decimal

	err := tx.QueryRowContext(ctx, `
		UPDATE wallets
		SET balance = balance + $2,
		    updated_at = now()
		WHERE user_id = $1
		RETURNING balance
	`, userID, amount).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, wallets.ErrWalletNotFound
		}

		return decimal.Zero, fmt.Errorf("increase balance: %w", err)
	}

	return balance, nil
}
