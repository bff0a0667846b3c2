// internal/blockchain/solbc/transaction/metrics.go
package transaction

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	successCounter    prometheus.Counter
	failureCounter    prometheus.Counter
	durationHistogram prometheus.Histogram
}

// NewMetrics регистрирует счётчики транзакций в переданном реестре.
// При reg == nil метрики создаются, но не публикуются.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	successCounter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "custody_tx_success_total",
		Help: "Total number of successfully confirmed custodial transactions",
	})
	failureCounter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "custody_tx_failure_total",
		Help: "Total number of failed custodial transaction sends",
	})
	durationHistogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "custody_tx_duration_seconds",
		Help:    "Send-and-confirm duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 8),
	})

	if reg != nil {
		reg.MustRegister(successCounter, failureCounter, durationHistogram)
	}

	return &Metrics{
		successCounter:    successCounter,
		failureCounter:    failureCounter,
		durationHistogram: durationHistogram,
	}
}

func (tm *Metrics) TrackTransaction(start time.Time) {
	tm.durationHistogram.Observe(time.Since(start).Seconds())
}
