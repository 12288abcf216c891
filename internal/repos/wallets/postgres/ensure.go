package wallets

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// Ensure creates the user's wallet with a zero balance if it does not exist.
func (r *walletsRepo) Ensure(ctx context.Context, tx *sql.Tx, userID uuid.UUID) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO wallets (user_id, balance)
		VALUES ($1, 0)
		ON CONFLICT (user_id) DO NOTHING
	`, userID)
	if err != nil {
		return fmt.Errorf("ensure wallet: %w", err)
	}

	return nil
}
