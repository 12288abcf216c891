package balance

import (
	"context"
	"fmt"

	"github.com/fastprodman/topupledger/internal/repos/entries"
	"github.com/fastprodman/topupledger/internal/services/ledger"
	"github.com/google/uuid"
)

// BalanceService answers balance and history reads and hands out live
// subscriptions. It never writes.
type BalanceService struct {
	ledger *ledger.Service
	hub    *Hub
}

func New(l *ledger.Service, hub *Hub) *BalanceService {
	return &BalanceService{ledger: l, hub: hub}
}

// GetBalance returns the user's balance (no locks; suitable for the GET endpoint).
func (s *BalanceService) GetBalance(ctx context.Context, userID uuid.UUID) (Snapshot, error) {
	b, err := s.ledger.Balances(ctx, userID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("get balance: %w", err)
	}

	return Snapshot{
		UserID:    userID,
		Balance:   b.Balance,
		Reserved:  b.Reserved,
		Available: b.Available,
	}, nil
}

func (s *BalanceService) History(ctx context.Context, userID uuid.UUID, limit, offset int) ([]entries.Entry, error) {
	list, err := s.ledger.History(ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("get history: %w", err)
	}

	return list, nil
}

// Subscribe delegates to the hub. The returned func must be called once the
// caller stops reading.
func (s *BalanceService) Subscribe(userID uuid.UUID) (<-chan Update, func()) {
	return s.hub.Subscribe(userID)
}
