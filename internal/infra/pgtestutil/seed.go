package pgtestutil

import (
	"database/sql"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SeedUser is a users row to insert. Zero ID means a random one; empty
// Email is derived from the ID.
type SeedUser struct {
	ID                   uuid.UUID
	Email                string
	VirtualAccountNumber string
	AccountReference     string
	// Balance creates a wallet row when non-nil.
	Balance *decimal.Decimal
}

// InsertUser seeds a user (and optionally its wallet) and returns its id.
func InsertUser(t *testing.T, db *sql.DB, u SeedUser) uuid.UUID {
	t.Helper()

	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.Email == "" {
		u.Email = u.ID.String() + "@example.test"
	}

	_, err := db.Exec(`
		INSERT INTO users (id, email, virtual_account_number, account_reference)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''))
	`, u.ID, u.Email, u.VirtualAccountNumber, u.AccountReference)
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}

	if u.Balance != nil {
		_, err = db.Exec(`INSERT INTO wallets (user_id, balance) VALUES ($1, $2)`, u.ID, *u.Balance)
		if err != nil {
			t.Fatalf("seed wallet: %v", err)
		}
	}

	return u.ID
}

// UserWithBalance seeds a user with a wallet holding balance (a decimal string).
func UserWithBalance(t *testing.T, db *sql.DB, balance string) uuid.UUID {
	t.Helper()

	bal := decimal.RequireFromString(balance)

	return InsertUser(t, db, SeedUser{Balance: &bal})
}

// WalletBalance reads the stored balance directly.
func WalletBalance(t *testing.T, db *sql.DB, userID uuid.UUID) decimal.Decimal {
	t.Helper()

	var bal decimal.Decimal

	err := db.QueryRow(`SELECT balance FROM wallets WHERE user_id = $1`, userID).Scan(&bal)
	if err != nil {
		t.Fatalf("read wallet balance: %v", err)
	}

	return bal
}
