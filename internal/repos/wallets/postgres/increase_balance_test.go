package wallets

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/fastprodman/topupledger/internal/infra/pgtestutil"
	"github.com/fastprodman/topupledger/internal/repos/wallets"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func TestWallets_IncreaseBalance_TableDriven(t *testing.T) {
	t.Parallel()

	db, _, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	repo := New(db)

	tests := []struct {
		name        string
		start       string
		amount      string
		wantBalance string
		missing     bool
	}{
		{name: "from_zero", start: "0", amount: "100.00", wantBalance: "100.00"},
		{name: "fractional", start: "10.15", amount: "0.85", wantBalance: "11.00"},
		{name: "large", start: "9999999999.99", amount: "0.01", wantBalance: "10000000000.00"},
		{name: "missing_wallet", amount: "1.00", missing: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var userID uuid.UUID
			if tt.missing {
				userID = uuid.New()
			} else {
				userID = pgtestutil.UserWithBalance(t, db, tt.start)
			}

			ctx := context.Background()
			tx, err := db.BeginTx(ctx, nil)
			if err != nil {
				t.Fatalf("begin tx: %v", err)
			}
			defer func() { _ = tx.Rollback() }()

			got, err := repo.IncreaseBalance(ctx, tx, userID, decimal.RequireFromString(tt.amount))
			if tt.missing {
				if !errors.Is(err, wallets.ErrWalletNotFound) {
					t.Fatalf("want ErrWalletNotFound, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("increase: %v", err)
			}
			if err := tx.Commit(); err != nil {
				t.Fatalf("commit: %v", err)
			}

			want := decimal.RequireFromString(tt.wantBalance)
			if !got.Equal(want) {
				t.Fatalf("returned balance: want %s, got %s", want, got)
			}
			if stored := pgtestutil.WalletBalance(t, db, userID); !stored.Equal(want) {
				t.Fatalf("stored balance: want %s, got %s", want, stored)
			}
		})
	}
}

func TestWallets_IncreaseBalance_ConcurrentNoLostUpdates(t *testing.T) {
	t.Parallel()

	db, _, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	userID := pgtestutil.UserWithBalance(t, db, "0")
	repo := New(db)

	const workers = 20

	var wg sync.WaitGroup
	wg.Add(workers)

	for range workers {
		go func() {
			defer wg.Done()

			ctx := context.Background()
			tx, err := db.BeginTx(ctx, nil)
			if err != nil {
				t.Errorf("begin tx: %v", err)
				return
			}
			defer func() { _ = tx.Rollback() }()

			_, err = repo.IncreaseBalance(ctx, tx, userID, decimal.RequireFromString("1.25"))
			if err != nil {
				t.Errorf("increase: %v", err)
				return
			}
			if err := tx.Commit(); err != nil {
				t.Errorf("commit: %v", err)
			}
		}()
	}
	wg.Wait()

	want := decimal.RequireFromString("25.00")
	if got := pgtestutil.WalletBalance(t, db, userID); !got.Equal(want) {
		t.Fatalf("want %s after %d concurrent credits, got %s", want, workers, got)
	}
}
