package balance

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fastprodman/topupledger/internal/infra/metrics"
	"github.com/fastprodman/topupledger/internal/services/ledger"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const (
	minReconnectDelay = time.Second
	maxReconnectDelay = 30 * time.Second
)

// Hub fans committed balance changes out to per-user subscribers. It reads
// them from Postgres LISTEN on a dedicated connection, so only changes from
// committed transactions are ever delivered.
type Hub struct {
	dsn     string
	metrics *metrics.Metrics

	mu   sync.Mutex
	subs map[uuid.UUID]map[chan Update]struct{}

	// onListen is called each time LISTEN succeeds.
	onListen func()
}

func NewHub(dsn string, m *metrics.Metrics) *Hub {
	return &Hub{
		dsn:     dsn,
		metrics: m,
		subs:    make(map[uuid.UUID]map[chan Update]struct{}),
	}
}

// Subscribe registers interest in userID. The channel holds at most one
// pending update; a slow reader only ever sees the latest balance.
func (h *Hub) Subscribe(userID uuid.UUID) (<-chan Update, func()) {
	ch := make(chan Update, 1)

	h.mu.Lock()
	set, ok := h.subs[userID]
	if !ok {
		set = make(map[chan Update]struct{})
		h.subs[userID] = set
	}
	set[ch] = struct{}{}
	h.mu.Unlock()

	h.metrics.SubscriberAdded()

	var once sync.Once

	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[userID], ch)
			if len(h.subs[userID]) == 0 {
				delete(h.subs, userID)
			}
			close(ch)
			h.mu.Unlock()

			h.metrics.SubscriberRemoved()
		})
	}
}

// Publish delivers u to every subscriber of u.UserID without blocking.
func (h *Hub) Publish(u Update) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subs[u.UserID] {
		select {
		case ch <- u:
			continue
		default:
		}

		// replace the stale update
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- u:
		default:
		}
	}
}

// Run listens until ctx is done, reconnecting with exponential backoff.
func (h *Hub) Run(ctx context.Context) error {
	delay := minReconnectDelay

	for {
		connected, err := h.listen(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if connected {
			delay = minReconnectDelay
		}

		slog.Warn("balance listener disconnected", "error", err, "retry_in", delay)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		delay = min(delay*2, maxReconnectDelay)
	}
}

func (h *Hub) listen(ctx context.Context) (bool, error) {
	conn, err := pgx.Connect(ctx, h.dsn)
	if err != nil {
		return false, fmt.Errorf("connect: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_ = conn.Close(closeCtx)
	}()

	_, err = conn.Exec(ctx, "LISTEN "+ledger.BalanceChannel)
	if err != nil {
		return false, fmt.Errorf("listen: %w", err)
	}

	slog.Info("balance listener started", "channel", ledger.BalanceChannel)

	if h.onListen != nil {
		h.onListen()
	}

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return true, fmt.Errorf("wait for notification: %w", err)
		}

		var u Update

		err = json.Unmarshal([]byte(n.Payload), &u)
		if err != nil {
			slog.Warn("skip malformed balance notification", "payload", n.Payload, "error", err)
			continue
		}

		h.Publish(u)
	}
}
