package main

import (
	"errors"
	"log/slog"
	"time"

	"github.com/fastprodman/topupledger/internal/config"
)

type apiConfig struct {
	Port            uint16        `env:"API_PORT" envDefault:"8080"`
	LogLevel        slog.Level    `env:"APP_LOG_LEVEL" envDefault:"INFO"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
	// WriteTimeout must exceed Purchase.FulfillmentTimeout.
	WriteTimeout time.Duration `env:"API_WRITE_TIMEOUT" envDefault:"60s"`

	Postgres    config.PostgresConfig
	Auth        config.AuthConfig
	Paystack    config.PaystackConfig
	Monnify     config.MonnifyConfig
	Peyflex     config.PeyflexConfig
	Clubkonnect config.ClubkonnectConfig
	Purchase    config.PurchaseConfig
	Tracing     config.TracingConfig
}

func (c apiConfig) Validate() error {
	if c.WriteTimeout <= c.Purchase.FulfillmentTimeout {
		return errors.New("API_WRITE_TIMEOUT must exceed PURCHASE_FULFILLMENT_TIMEOUT")
	}

	return nil
}
