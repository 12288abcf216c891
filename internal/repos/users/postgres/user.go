package users

import (
	"context"
	"fmt"

	"github.com/fastprodman/topupledger/internal/repos/users"
	"github.com/google/uuid"
)

func (r *usersRepo) Exists(ctx context.Context, userID uuid.UUID) error {
	var exists bool

	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)
	`, userID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}

	if !exists {
		return users.ErrUserNotFound
	}

	return nil
}
