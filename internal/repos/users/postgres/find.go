package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/fastprodman/topupledger/internal/repos/users"
)

const selectUser = `
	SELECT id, email, COALESCE(virtual_account_number, ''), COALESCE(account_reference, '')
	FROM users
`

func (r *usersRepo) FindByEmail(ctx context.Context, email string) (users.User, error) {
	return r.findOne(ctx, selectUser+`WHERE lower(email) = lower($1)`, strings.TrimSpace(email))
}

func (r *usersRepo) FindByVirtualAccount(ctx context.Context, accountNumber string) (users.User, error) {
	return r.findOne(ctx, selectUser+`WHERE virtual_account_number = $1`, strings.TrimSpace(accountNumber))
}

func (r *usersRepo) FindByAccountReference(ctx context.Context, accountReference string) (users.User, error) {
	return r.findOne(ctx, selectUser+`WHERE account_reference = $1`, strings.TrimSpace(accountReference))
}

func (r *usersRepo) findOne(ctx context.Context, query, arg string) (users.User, error) {
	if arg == "" {
		return users.User{}, users.ErrUserNotFound
	}

	var u users.User

	err := r.db.QueryRowContext(ctx, query, arg).Scan(&u.ID, &u.Email, &u.VirtualAccountNumber, &u.AccountReference)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return users.User{}, users.ErrUserNotFound
		}

		return users.User{}, fmt.Errorf("find user: %w", err)
	}

	return u, nil
}
