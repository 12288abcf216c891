package config

import (
	"errors"
	"time"
)

type PostgresConfig struct {
	DSN             string        `env:"PG_DSN"`
	MaxOpenConns    int           `env:"PG_MAX_OPEN_CONNS" envDefault:"20"`
	MaxIdleConns    int           `env:"PG_MAX_IDLE_CONNS" envDefault:"10"`
	ConnMaxIdleTime time.Duration `env:"PG_CONN_MAX_IDLE_TIME" envDefault:"5m"`
	ConnMaxLifetime time.Duration `env:"PG_CONN_MAX_LIFETIME" envDefault:"30m"`
}

type AuthConfig struct {
	JWTSecret string `env:"AUTH_JWT_SECRET"`
}

type PaystackConfig struct {
	SecretKey string        `env:"PAYSTACK_SECRET_KEY"`
	BaseURL   string        `env:"PAYSTACK_BASE_URL" envDefault:"https://api.paystack.co"`
	Timeout   time.Duration `env:"PAYSTACK_TIMEOUT" envDefault:"10s"`
}

type MonnifyConfig struct {
	SecretKey string `env:"MONNIFY_SECRET_KEY"`
}

type PeyflexConfig struct {
	APIKey  string `env:"PEYFLEX_API_KEY"`
	BaseURL string `env:"PEYFLEX_BASE_URL" envDefault:"https://client.peyflex.com.ng"`
}

type ClubkonnectConfig struct {
	UserID  string `env:"CLUBKONNECT_USER_ID"`
	APIKey  string `env:"CLUBKONNECT_API_KEY"`
	BaseURL string `env:"CLUBKONNECT_BASE_URL" envDefault:"https://www.nellobytesystems.com"`
}

// PurchaseConfig bounds the fulfillment call and drives the reconciliation sweeper.
type PurchaseConfig struct {
	FulfillmentTimeout time.Duration `env:"PURCHASE_FULFILLMENT_TIMEOUT" envDefault:"30s"`
	SweepInterval      time.Duration `env:"PURCHASE_SWEEP_INTERVAL" envDefault:"1m"`
	ReserveTimeout     time.Duration `env:"PURCHASE_RESERVE_TIMEOUT" envDefault:"2m"`
	StatusCheckAfter   time.Duration `env:"PURCHASE_STATUS_CHECK_AFTER" envDefault:"5m"`
	SweepBatchSize     int           `env:"PURCHASE_SWEEP_BATCH_SIZE" envDefault:"100"`
}

func (c PurchaseConfig) Validate() error {
	switch {
	case c.FulfillmentTimeout <= 0 || c.SweepInterval <= 0 || c.ReserveTimeout <= 0:
		return errors.New("purchase timeouts and sweep interval must be positive")
	case c.StatusCheckAfter <= c.FulfillmentTimeout:
		return errors.New("status check delay must exceed the fulfillment timeout")
	case c.SweepBatchSize <= 0:
		return errors.New("sweep batch size must be positive")
	}

	return nil
}

type TracingConfig struct {
	// Endpoint is host:port of an OTLP/HTTP collector. Empty disables export.
	Endpoint    string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`
	ServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"topupledger"`
	Insecure    bool   `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"true"`
}
