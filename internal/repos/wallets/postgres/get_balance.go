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

func (r *walletsRepo) GetBalance(ctx context.Context, tx *sql.Tx, userID uuid.UUID) (decimal.Decimal, error) {
	var balance decimal.Decimal

	err := tx.QueryRowContext(ctx, `
		SELECT balance
		FROM wallets
		WHERE user_id = $1
	`, userID).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, wallets.ErrWalletNotFound
		}

		return decimal.Zero, fmt.Errorf("get balance: %w", err)
	}

	return balance, nil
}
