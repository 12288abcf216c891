package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPurchaseConfig_Validate(t *testing.T) {
	t.Parallel()

	valid := PurchaseConfig{
		FulfillmentTimeout: 30 * time.Second,
		SweepInterval:      time.Minute,
		ReserveTimeout:     2 * time.Minute,
		StatusCheckAfter:   5 * time.Minute,
		SweepBatchSize:     100,
	}
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(c *PurchaseConfig)
	}{
		{name: "zero timeout", mutate: func(c *PurchaseConfig) { c.FulfillmentTimeout = 0 }},
		{name: "zero interval", mutate: func(c *PurchaseConfig) { c.SweepInterval = 0 }},
		{name: "status check too early", mutate: func(c *PurchaseConfig) { c.StatusCheckAfter = 10 * time.Second }},
		{name: "no batch", mutate: func(c *PurchaseConfig) { c.SweepBatchSize = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := valid
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}
