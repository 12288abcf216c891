package balance

import (
	"context"
	"testing"
	"time"

	"github.com/fastprodman/topupledger/internal/infra/pgtestutil"
	"github.com/fastprodman/topupledger/internal/repos/entries"
	"github.com/fastprodman/topupledger/internal/services/ledger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_LatestWins(t *testing.T) {
	t.Parallel()

	h := NewHub("", nil)
	userID := uuid.New()

	ch, cancel := h.Subscribe(userID)
	defer cancel()

	for _, b := range []string{"1", "2", "3"} {
		h.Publish(Update{UserID: userID, Balance: decimal.RequireFromString(b)})
	}

	got := <-ch
	assert.True(t, got.Balance.Equal(decimal.RequireFromString("3")), "got %s", got.Balance)

	select {
	case u := <-ch:
		t.Fatalf("unexpected extra update %+v", u)
	default:
	}
}

func TestHub_OnlyOwnUpdates(t *testing.T) {
	t.Parallel()

	h := NewHub("", nil)
	alice, bob := uuid.New(), uuid.New()

	aliceCh, cancelAlice := h.Subscribe(alice)
	defer cancelAlice()
	bobCh, cancelBob := h.Subscribe(bob)
	defer cancelBob()

	h.Publish(Update{UserID: alice, Balance: decimal.NewFromInt(7)})

	select {
	case u := <-aliceCh:
		assert.Equal(t, alice, u.UserID)
	default:
		t.Fatal("alice missed her update")
	}

	select {
	case u := <-bobCh:
		t.Fatalf("bob received %+v", u)
	default:
	}
}

func TestHub_CancelClosesAndIsIdempotent(t *testing.T) {
	t.Parallel()

	h := NewHub("", nil)
	userID := uuid.New()

	ch, cancel := h.Subscribe(userID)
	cancel()
	cancel()

	_, open := <-ch
	assert.False(t, open)

	// publishing to a user without subscribers is a no-op
	h.Publish(Update{UserID: userID})

	h.mu.Lock()
	defer h.mu.Unlock()
	assert.Empty(t, h.subs)
}

func TestHub_DeliversCommittedResolutions(t *testing.T) {
	t.Parallel()

	db, dsn, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	listening := make(chan struct{}, 1)
	h := NewHub(dsn, nil)
	h.onListen = func() { listening <- struct{}{} }

	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()

	select {
	case <-listening:
	case <-ctx.Done():
		t.Fatal("hub never started listening")
	}

	led := ledger.New(db, nil)
	svc := New(led, h)
	userID := pgtestutil.InsertUser(t, db, pgtestutil.SeedUser{})

	updates, unsubscribe := svc.Subscribe(userID)
	defer unsubscribe()

	_, err := led.CreatePendingEntry(ctx, ledger.NewEntry{
		UserID: userID, Amount: decimal.RequireFromString("75.25"), Kind: entries.KindDeposit, ExternalReference: "live",
	})
	require.NoError(t, err)

	// a pending entry publishes nothing
	select {
	case u := <-updates:
		t.Fatalf("update before resolution: %+v", u)
	case <-time.After(200 * time.Millisecond):
	}

	_, _, err = led.Resolve(ctx, ledger.Resolution{Reference: "live", Outcome: ledger.OutcomeSuccess})
	require.NoError(t, err)

	select {
	case u := <-updates:
		assert.Equal(t, userID, u.UserID)
		assert.Equal(t, "live", u.Reference)
		assert.True(t, u.Balance.Equal(decimal.RequireFromString("75.25")))
	case <-ctx.Done():
		t.Fatal("no update delivered")
	}

	snap, err := svc.GetBalance(ctx, userID)
	require.NoError(t, err)
	assert.True(t, snap.Balance.Equal(decimal.RequireFromString("75.25")))
	assert.True(t, snap.Available.Equal(snap.Balance))

	cancel()
	require.NoError(t, <-done)
}
