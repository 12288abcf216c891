package paystack

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fastprodman/topupledger/internal/config"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "sk_test_secret"

func TestVerifySignature(t *testing.T) {
	t.Parallel()

	body := []byte(`{"event":"charge.success","data":{"reference":"r1","amount":150000}}`)
	good := ComputeSignature(testSecret, body)

	tests := []struct {
		name      string
		secret    string
		body      []byte
		signature string
		wantErr   bool
	}{
		{name: "valid", secret: testSecret, body: body, signature: good},
		{name: "tampered_body", secret: testSecret, body: append([]byte(" "), body...), signature: good, wantErr: true},
		{name: "wrong_secret", secret: "other", body: body, signature: good, wantErr: true},
		{name: "missing_signature", secret: testSecret, body: body, wantErr: true},
		{name: "not_hex", secret: testSecret, body: body, signature: "zz", wantErr: true},
		{name: "empty_secret", body: body, signature: ComputeSignature("", body), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := VerifySignature(tt.secret, tt.body, tt.signature)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidSignature)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestParseEvent(t *testing.T) {
	t.Parallel()

	body := []byte(`{
		"event": "charge.success",
		"data": {
			"id": 302961,
			"status": "success",
			"reference": "DS_FUND_1700000000000_ab12cd34",
			"amount": 250050,
			"currency": "NGN",
			"metadata": {"user_id": "0b8f4c3e-5c55-4c1a-9d2e-6f7a8b9c0d1e"},
			"customer": {"email": "ada@example.com"},
			"authorization": {"channel": "dedicated_nuban", "receiver_bank_account_number": "9930001234"}
		}
	}`)

	ev, err := ParseEvent(body)
	require.NoError(t, err)

	assert.Equal(t, EventChargeSuccess, ev.Event)
	assert.True(t, ev.Data.Succeeded())
	assert.True(t, ev.Data.Naira().Equal(decimal.RequireFromString("2500.50")))
	assert.Equal(t, "0b8f4c3e-5c55-4c1a-9d2e-6f7a8b9c0d1e", ev.Data.MetadataUserID())
	assert.Equal(t, "ada@example.com", ev.Data.Customer.Email)
	assert.Equal(t, "9930001234", ev.Data.Authorization.ReceiverBankAccountNumber)

	_, err = ParseEvent([]byte(`{"data":{}}`))
	assert.ErrorIs(t, err, ErrMalformedEvent)

	_, err = ParseEvent([]byte(`not json`))
	assert.ErrorIs(t, err, ErrMalformedEvent)
}

func TestCharge_MetadataUserID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		metadata string
		want     string
	}{
		{name: "object", metadata: `{"user_id":"u1"}`, want: "u1"},
		{name: "string_encoded", metadata: `"{\"user_id\":\"u2\"}"`, want: "u2"},
		{name: "empty_string", metadata: `""`, want: ""},
		{name: "null", metadata: `null`, want: ""},
		{name: "absent", metadata: ``, want: ""},
		{name: "no_user", metadata: `{"custom_fields":[]}`, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := Charge{Metadata: []byte(tt.metadata)}
			assert.Equal(t, tt.want, c.MetadataUserID())
		})
	}
}

func TestClient_VerifyTransaction(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+testSecret {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		w.Header().Set("Content-Type", "application/json")

		switch r.URL.Path {
		case "/transaction/verify/paid":
			_, _ = w.Write([]byte(`{"status":true,"message":"Verification successful","data":{"status":"success","reference":"paid","amount":100000}}`))
		case "/transaction/verify/abandoned":
			_, _ = w.Write([]byte(`{"status":true,"message":"Verification successful","data":{"status":"abandoned","reference":"abandoned","amount":100000}}`))
		case "/transaction/verify/broken":
			w.WriteHeader(http.StatusBadGateway)
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"status":false,"message":"Transaction reference not found"}`))
		}
	}))
	defer srv.Close()

	c := NewClient(config.PaystackConfig{SecretKey: testSecret, BaseURL: srv.URL, Timeout: 5 * time.Second})
	ctx := context.Background()

	ch, err := c.VerifyTransaction(ctx, "paid")
	require.NoError(t, err)
	assert.True(t, ch.Succeeded())
	assert.True(t, ch.Naira().Equal(decimal.NewFromInt(1000)))

	ch, err = c.VerifyTransaction(ctx, "abandoned")
	require.NoError(t, err)
	assert.False(t, ch.Succeeded())

	_, err = c.VerifyTransaction(ctx, "missing")
	assert.ErrorIs(t, err, ErrTransactionNotFound)

	_, err = c.VerifyTransaction(ctx, "broken")
	assert.Error(t, err)

	body := []byte(`{}`)
	assert.NoError(t, c.VerifySignature(body, ComputeSignature(testSecret, body)))
}
