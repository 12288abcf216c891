package users

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrUserNotFound = errors.New("user not found")

// User is an entry of the recipient directory: the identifiers a payment
// provider may use to address a wallet owner.
type User struct {
	ID                   uuid.UUID
	Email                string
	VirtualAccountNumber string
	AccountReference     string
}

type Users interface {
	Exists(ctx context.Context, userID uuid.UUID) error
	FindByEmail(ctx context.Context, email string) (User, error)
	FindByVirtualAccount(ctx context.Context, accountNumber string) (User, error)
	FindByAccountReference(ctx context.Context, accountReference string) (User, error)
}
