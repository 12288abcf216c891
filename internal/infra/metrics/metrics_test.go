package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_NilReceiverIsNoop(t *testing.T) {
	t.Parallel()

	var m *Metrics

	assert.NotPanics(t, func() {
		m.ObserveHTTP("GET", "/healthz", 200, time.Millisecond)
		m.ObserveResolution("deposit", "success")
		m.ObserveReservation("ok")
		m.ObserveWebhook("paystack", "credited")
		m.ObservePaymentException("unknown_recipient")
		m.ObservePurchase("airtime", "success")
		m.ObserveFulfillment("peyflex", time.Second)
		m.ObserveSweep(map[string]int{"expired": 1}, nil)
		m.SubscriberAdded()
		m.SubscriberRemoved()
	})
}

func TestMetrics_Counters(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveResolution("deposit", "success")
	m.ObserveResolution("deposit", "success")
	m.ObserveResolution("purchase", "noop")
	m.ObserveWebhook("monnify", "duplicate")
	m.ObserveSweep(map[string]int{"expired": 3, "settled": 0}, nil)
	m.ObserveSweep(nil, errors.New("db down"))

	assert.InDelta(t, 2, testutil.ToFloat64(m.ledgerResolutions.WithLabelValues("deposit", "success")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.ledgerResolutions.WithLabelValues("purchase", "noop")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.webhooksTotal.WithLabelValues("monnify", "duplicate")), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(m.sweepResolvedTotal.WithLabelValues("expired")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.sweepRunsTotal.WithLabelValues("success")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.sweepRunsTotal.WithLabelValues("error")), 0)
}
