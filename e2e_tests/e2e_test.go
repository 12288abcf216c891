package e2etests

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fastprodman/topupledger/internal/infra/auth"
	"github.com/fastprodman/topupledger/internal/providers/paystack"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests run against a live API started with the seed data applied
// (run cmd/migrator with APP_ENV=DEV). They need:
//
//	E2E_BASE_URL         e.g. http://localhost:8080
//	E2E_JWT_SECRET       same value as AUTH_JWT_SECRET
//	E2E_PAYSTACK_SECRET  same value as PAYSTACK_SECRET_KEY
const (
	timeout   = 5 * time.Second
	waitReady = 20 * time.Second
)

var (
	adaID   = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	tundeID = uuid.MustParse("22222222-2222-2222-2222-222222222222")
)

var httpClient = &http.Client{Timeout: timeout}

type env struct {
	baseURL        string
	verifier       *auth.JWTVerifier
	paystackSecret string
}

func setup(t *testing.T) env {
	t.Helper()

	e := env{
		baseURL:        os.Getenv("E2E_BASE_URL"),
		paystackSecret: os.Getenv("E2E_PAYSTACK_SECRET"),
	}
	if e.baseURL == "" {
		t.Skip("E2E_BASE_URL not set")
	}

	e.verifier = auth.NewJWTVerifier(os.Getenv("E2E_JWT_SECRET"))
	waitUntilReady(t, e.baseURL)

	return e
}

func TestE2E_DepositThenSpend(t *testing.T) {
	e := setup(t)

	start := e.balance(t, adaID)
	ref := uniqRef("e2e-fund")

	t.Run("register_intent", func(t *testing.T) {
		code, body := e.request(t, http.MethodPost, "/wallet/deposits", adaID, map[string]string{
			"amount": "1500.00", "reference": ref,
		})
		require.Equal(t, http.StatusOK, code, body)
	})

	t.Run("webhook_credits_once", func(t *testing.T) {
		payload := chargeSuccess(ref, 150000, adaID)

		var wg sync.WaitGroup
		statuses := make(chan string, 5)

		for range 5 {
			wg.Add(1)
			go func() {
				defer wg.Done()

				code, body := e.webhook(t, payload)
				assert.Equal(t, http.StatusOK, code, body)

				var out struct {
					Status string `json:"status"`
				}
				_ = json.Unmarshal([]byte(body), &out)
				statuses <- out.Status
			}()
		}
		wg.Wait()
		close(statuses)

		credited := 0
		for s := range statuses {
			if s == "credited" {
				credited++
			}
		}
		assert.Equal(t, 1, credited)

		got := e.balance(t, adaID)
		assert.True(t, got.Equal(start.Add(decimal.NewFromInt(1500))), "balance %s", got)
	})

	t.Run("bad_signature_rejected", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodPost, e.baseURL+"/webhooks/paystack",
			bytes.NewReader(chargeSuccess(uniqRef("forged"), 100, adaID)))
		require.NoError(t, err)
		req.Header.Set(paystack.SignatureHeader, strings.Repeat("0", 128))

		resp, err := httpClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()

		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

func TestE2E_InsufficientFundsAndValidation(t *testing.T) {
	e := setup(t)

	t.Run("purchase_above_balance", func(t *testing.T) {
		before := e.balance(t, tundeID)

		code, body := e.request(t, http.MethodPost, "/purchases/airtime", tundeID, map[string]string{
			"network":   "mtn",
			"phone":     "08031234567",
			"amount":    before.Add(decimal.NewFromInt(1000)).StringFixed(0),
			"reference": uniqRef("e2e-broke"),
		})
		assert.Equal(t, http.StatusConflict, code, body)
		assert.True(t, e.balance(t, tundeID).Equal(before))
	})

	tests := []struct {
		name string
		path string
		body map[string]string
	}{
		{name: "bad_amount_precision", path: "/wallet/deposits", body: map[string]string{"amount": "1.234"}},
		{name: "bad_network", path: "/purchases/airtime", body: map[string]string{
			"network": "etisalat", "phone": "08031234567", "amount": "100", "reference": uniqRef("e2e-net"),
		}},
		{name: "bad_phone", path: "/purchases/airtime", body: map[string]string{
			"network": "mtn", "phone": "12345", "amount": "100", "reference": uniqRef("e2e-phone"),
		}},
		{name: "unknown_plan", path: "/purchases/data", body: map[string]string{
			"planCode": "nope", "phone": "08031234567", "reference": uniqRef("e2e-plan"),
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := e.request(t, http.MethodPost, tt.path, tundeID, tt.body)
			assert.Equal(t, http.StatusBadRequest, code, body)
		})
	}
}

func TestE2E_BalanceStream(t *testing.T) {
	e := setup(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/wallet/stream", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+e.token(t, adaID))

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	reader := bufio.NewReader(resp.Body)
	readData := func() string {
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)

			if strings.HasPrefix(line, "data: ") {
				return strings.TrimPrefix(line, "data: ")
			}
		}
	}

	// initial snapshot
	readData()

	ref := uniqRef("e2e-stream")
	code, body := e.webhook(t, chargeSuccess(ref, 1000, adaID))
	require.Equal(t, http.StatusOK, code, body)

	assert.Contains(t, readData(), ref)
}

/* -------------------- helpers -------------------- */

func (e env) token(t *testing.T, userID uuid.UUID) string {
	t.Helper()

	tok, err := e.verifier.Issue(auth.Actor{UserID: userID, Role: auth.RoleUser}, time.Minute)
	require.NoError(t, err)

	return tok
}

func (e env) request(t *testing.T, method, path string, userID uuid.UUID, body any) (int, string) {
	t.Helper()

	var r io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, e.baseURL+path, r)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.token(t, userID))

	resp, err := httpClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	b, _ := io.ReadAll(resp.Body)

	return resp.StatusCode, string(b)
}

func (e env) balance(t *testing.T, userID uuid.UUID) decimal.Decimal {
	t.Helper()

	code, body := e.request(t, http.MethodGet, "/wallet/balance", userID, nil)
	require.Equal(t, http.StatusOK, code, body)

	var payload struct {
		UserID  string `json:"userId"`
		Balance string `json:"balance"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &payload))
	require.Equal(t, userID.String(), payload.UserID)

	d, err := decimal.NewFromString(payload.Balance)
	require.NoError(t, err)

	return d
}

func (e env) webhook(t *testing.T, payload []byte) (int, string) {
	t.Helper()

	req, err := http.NewRequest(http.MethodPost, e.baseURL+"/webhooks/paystack", bytes.NewReader(payload))
	if err != nil {
		t.Errorf("new request: %v", err)
		return 0, ""
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(paystack.SignatureHeader, paystack.ComputeSignature(e.paystackSecret, payload))

	resp, err := httpClient.Do(req)
	if err != nil {
		t.Errorf("do request: %v", err)
		return 0, ""
	}
	defer resp.Body.Close()

	b, _ := io.ReadAll(resp.Body)

	return resp.StatusCode, string(b)
}

func chargeSuccess(reference string, kobo int64, userID uuid.UUID) []byte {
	return []byte(fmt.Sprintf(
		`{"event":"charge.success","data":{"id":%d,"status":"success","reference":%q,"amount":%d,"currency":"NGN","metadata":{"user_id":%q}}}`,
		time.Now().UnixNano()%1_000_000_000, reference, kobo, userID.String(),
	))
}

// waitUntilReady polls /healthz until the service answers or times out.
func waitUntilReady(t *testing.T, baseURL string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), waitReady)
	defer cancel()

	tick := time.NewTicker(200 * time.Millisecond)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			t.Fatalf("service not ready at %s within %s", baseURL, waitReady)
		case <-tick.C:
			resp, err := httpClient.Get(baseURL + "/healthz")
			if err != nil {
				continue
			}
			_ = resp.Body.Close()

			if resp.StatusCode == http.StatusOK {
				return
			}
		}
	}
}

func uniqRef(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}
