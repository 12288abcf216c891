package wallets

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fastprodman/topupledger/internal/infra/pgtestutil"
	"github.com/fastprodman/topupledger/internal/repos/wallets"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func TestWallets_DecreaseBalance_Table(t *testing.T) {
	t.Parallel()

	type tc struct {
		name          string
		start         string // empty -> no wallet
		amount        string
		wantBalance   string
		wantErr       bool // true -> expect wallets.ErrInsufficientFunds
		checkFinalBal bool
	}

	tests := []tc{
		{
			name:          "sufficient_funds_decrease_from_positive",
			start:         "1000.00",
			amount:        "250.50",
			wantBalance:   "749.50",
			checkFinalBal: true,
		},
		{
			name:          "sufficient_funds_exact_to_zero",
			start:         "300.00",
			amount:        "300.00",
			wantBalance:   "0",
			checkFinalBal: true,
		},
		{
			name:          "insufficient_funds_balance_unchanged",
			start:         "200.00",
			amount:        "200.01",
			wantBalance:   "200.00",
			wantErr:       true,
			checkFinalBal: true,
		},
		{
			name:    "wallet_missing_treated_as_insufficient",
			amount:  "100",
			wantErr: true,
		},
	}

	db, _, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	repo := New(db)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			userID := uuid.New()
			if tt.start != "" {
				userID = pgtestutil.UserWithBalance(t, db, tt.start)
			}

			ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
			defer cancel()

			tx, err := db.BeginTx(ctx, nil)
			if err != nil {
				t.Fatalf("begin tx: %v", err)
			}
			defer func() { _ = tx.Rollback() }()

			_, err = repo.DecreaseBalance(ctx, tx, userID, decimal.RequireFromString(tt.amount))

			if tt.wantErr {
				if !errors.Is(err, wallets.ErrInsufficientFunds) {
					t.Fatalf("expected ErrInsufficientFunds, got: %v", err)
				}
			} else {
				if err != nil {
					t.Fatalf("decrease balance: %v", err)
				}
				err = tx.Commit()
				if err != nil {
					t.Fatalf("commit: %v", err)
				}
			}

			if tt.checkFinalBal {
				got := pgtestutil.WalletBalance(t, db, userID)
				if !got.Equal(decimal.RequireFromString(tt.wantBalance)) {
					t.Fatalf("final balance mismatch: want %s, got %s", tt.wantBalance, got)
				}
			}
		})
	}
}

func TestWallets_DecreaseBalance_ConcurrentGuard(t *testing.T) {
	t.Parallel()

	db, _, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	repo := New(db)
	userID := pgtestutil.UserWithBalance(t, db, "1000")
	amount := decimal.RequireFromString("1000")

	var wg sync.WaitGroup
	var mu sync.Mutex
	success, insufficient := 0, 0

	worker := func(name string) {
		defer wg.Done()

		ctx := context.Background()
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			t.Errorf("[%s] begin tx: %v", name, err)
			return
		}
		defer func() { _ = tx.Rollback() }()

		// Lock row first (this will serialize)
		_, err = repo.LockAndGetBalance(ctx, tx, userID)
		if err != nil {
			t.Errorf("[%s] lock balance: %v", name, err)
			return
		}

		_, err = repo.DecreaseBalance(ctx, tx, userID, amount)
		if err == nil {
			mu.Lock()
			success++
			mu.Unlock()
			if err := tx.Commit(); err != nil {
				t.Errorf("[%s] commit: %v", name, err)
			}
			return
		}

		if errors.Is(err, wallets.ErrInsufficientFunds) {
			mu.Lock()
			insufficient++
			mu.Unlock()
			return
		}

		t.Errorf("[%s] unexpected error: %v", name, err)
	}

	wg.Add(2)
	go worker("A")
	go worker("B")
	wg.Wait()

	if success != 1 || insufficient != 1 {
		t.Fatalf("want 1 success and 1 insufficient, got success=%d insufficient=%d", success, insufficient)
	}
}
