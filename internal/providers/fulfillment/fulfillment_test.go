package fulfillment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fastprodman/topupledger/internal/config"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotSent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "dial_refused", err: fmt.Errorf("post: %w", &net.OpError{Op: "dial", Err: errors.New("connection refused")}), want: true},
		{name: "dns", err: &net.DNSError{Err: "no such host", Name: "client.peyflex.com.ng"}, want: true},
		{name: "read_reset", err: &net.OpError{Op: "read", Err: errors.New("connection reset")}, want: false},
		{name: "deadline", err: context.DeadlineExceeded, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, NotSent(tt.err))
		})
	}
}

func TestClassifyPeyflex(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		code    int
		body    string
		want    Outcome
		wantRef string
	}{
		{name: "status_success", code: 200, body: `{"status":"success","reference":"PX1"}`, want: Accepted, wantRef: "PX1"},
		{name: "status_successful_caps", code: 201, body: `{"Status":"Successful","transaction_id":"PX2"}`, want: Accepted, wantRef: "PX2"},
		{name: "success_flag", code: 200, body: `{"success":true,"id":991}`, want: Accepted, wantRef: "991"},
		{name: "success_flag_false", code: 200, body: `{"success":false,"message":"bad number"}`, want: Rejected},
		{name: "status_failed", code: 200, body: `{"status":"failed"}`, want: Rejected},
		{name: "status_pending", code: 200, body: `{"status":"pending"}`, want: Ambiguous},
		{name: "unknown_status", code: 200, body: `{"status":"queued"}`, want: Ambiguous},
		{name: "not_json", code: 200, body: `<html>ok</html>`, want: Ambiguous},
		{name: "client_error", code: 400, body: `{"message":"insufficient wallet"}`, want: Rejected},
		{name: "request_timeout", code: 408, body: ``, want: Ambiguous},
		{name: "server_error", code: 502, body: `bad gateway`, want: Ambiguous},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := classifyPeyflex(tt.code, []byte(tt.body))
			assert.Equal(t, tt.want, got.Outcome)
			if tt.wantRef != "" {
				assert.Equal(t, tt.wantRef, got.ProviderReference)
			}
		})
	}
}

func TestPeyflex_Fulfill(t *testing.T) {
	t.Parallel()

	var got map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/airtime/topup/" || r.Header.Get("Authorization") != "Token key-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"status":"success","reference":"PX-77"}`))
	}))
	defer srv.Close()

	p := NewPeyflex(config.PeyflexConfig{APIKey: "key-1", BaseURL: srv.URL})
	assert.Equal(t, "peyflex", p.Name())

	res, err := p.Fulfill(context.Background(), Order{
		Reference: "ref-1", Network: "MTN", Recipient: "08030000000", Amount: decimal.NewFromInt(500),
	})
	require.NoError(t, err)
	assert.Equal(t, Accepted, res.Outcome)
	assert.Equal(t, "PX-77", res.ProviderReference)

	assert.Equal(t, "mtn", got["network"])
	assert.Equal(t, "08030000000", got["mobile_number"])
	assert.InDelta(t, 500.0, got["amount"], 0)
}

func TestPeyflex_TimeoutIsTransportError(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	p := NewPeyflex(config.PeyflexConfig{APIKey: "k", BaseURL: srv.URL})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := p.Fulfill(ctx, Order{Reference: "slow", Network: "glo", Recipient: "0805", Amount: decimal.NewFromInt(100)})
	require.Error(t, err)
	assert.False(t, NotSent(err))
}

func TestPeyflex_UnreachableIsNotSent(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	p := NewPeyflex(config.PeyflexConfig{APIKey: "k", BaseURL: "http://" + addr})

	_, err = p.Fulfill(context.Background(), Order{Reference: "r", Network: "mtn", Recipient: "0803", Amount: decimal.NewFromInt(100)})
	require.Error(t, err)
	assert.True(t, NotSent(err))
}

func TestClubkonnect(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("UserID") != "CK1" || q.Get("APIKey") != "secret" {
			_, _ = w.Write([]byte(`{"status":"INVALID_CREDENTIALS"}`))
			return
		}

		w.Header().Set("Content-Type", "text/html")

		switch r.URL.Path {
		case "/APIDatabundleV1.asp":
			switch q.Get("DataPlan") {
			case "1000.0":
				if q.Get("MobileNetwork") != "01" || q.Get("RequestID") != "buy-1" {
					_, _ = w.Write([]byte(`{"status":"MISSING_DATAPLAN"}`))
					return
				}
				_, _ = w.Write([]byte(`{"orderid":"6908","statuscode":"100","status":"ORDER_RECEIVED"}`))
			case "hold":
				_, _ = w.Write([]byte(`{"orderid":"6909","statuscode":"300","status":"ORDER_ONHOLD"}`))
			case "boom":
				w.WriteHeader(http.StatusServiceUnavailable)
			default:
				_, _ = w.Write([]byte(`{"status":"INVALID_DATAPLAN"}`))
			}
		case "/APIQueryV1.asp":
			switch q.Get("RequestID") {
			case "done":
				_, _ = w.Write([]byte(`{"orderid":"1","statuscode":"200","status":"ORDER_COMPLETED"}`))
			case "cancelled":
				_, _ = w.Write([]byte(`{"orderid":"2","statuscode":"603","status":"ORDER_CANCELLED"}`))
			default:
				_, _ = w.Write([]byte(`{"orderid":"3","statuscode":"100","status":"ORDER_RECEIVED"}`))
			}
		}
	}))
	defer srv.Close()

	c := NewClubkonnect(config.ClubkonnectConfig{UserID: "CK1", APIKey: "secret", BaseURL: srv.URL})
	ctx := context.Background()

	var _ StatusChecker = c

	orders := []struct {
		name string
		o    Order
		want Outcome
	}{
		{name: "received", o: Order{Reference: "buy-1", Network: "MTN", PlanCode: "1000.0", Recipient: "0803"}, want: Accepted},
		{name: "on_hold", o: Order{Reference: "buy-2", Network: "mtn", PlanCode: "hold", Recipient: "0803"}, want: Ambiguous},
		{name: "invalid_plan", o: Order{Reference: "buy-3", Network: "glo", PlanCode: "nope", Recipient: "0805"}, want: Rejected},
		{name: "server_down", o: Order{Reference: "buy-4", Network: "airtel", PlanCode: "boom", Recipient: "0802"}, want: Ambiguous},
		{name: "unknown_network", o: Order{Reference: "buy-5", Network: "ntel", PlanCode: "1000.0", Recipient: "0804"}, want: Rejected},
	}

	for _, tt := range orders {
		t.Run(tt.name, func(t *testing.T) {
			res, err := c.Fulfill(ctx, tt.o)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Outcome, res.Message)
		})
	}

	statuses := map[string]Outcome{"done": Accepted, "cancelled": Rejected, "other": Ambiguous}
	for ref, want := range statuses {
		res, err := c.CheckStatus(ctx, ref)
		require.NoError(t, err)
		assert.Equal(t, want, res.Outcome, ref)
	}
}

func TestOutcome_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "accepted", Accepted.String())
	assert.Equal(t, "rejected", Rejected.String())
	assert.Equal(t, "ambiguous", Ambiguous.String())
}
