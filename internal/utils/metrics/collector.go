// internal/utils/metrics/collector.go
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gitup_custody"

// Collector владеет собственным реестром метрик сервиса: глобальный реестр
// не используется, чтобы тесты могли создавать сколько угодно коллекторов.
type Collector struct {
	registry *prometheus.Registry

	claims          *prometheus.CounterVec
	claimedSOL      prometheus.Counter
	deployments     *prometheus.CounterVec
	oracleFailures  prometheus.Counter
	reconciliations *prometheus.CounterVec
	custodyBalance  prometheus.Gauge
	httpDuration    *prometheus.HistogramVec
}

// NewCollector создает новый экземпляр коллектора метрик
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		claims: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "claims_total",
				Help:      "Claim state transitions by stage and outcome",
			},
			[]string{"stage", "outcome"},
		),
		claimedSOL: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "claimed_sol_total",
			Help:      "Total SOL released to claimants",
		}),
		deployments: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "deployments_total",
				Help:      "Deployment requests by mode and outcome",
			},
			[]string{"mode", "outcome"},
		),
		oracleFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oracle_failures_total",
			Help:      "Volume oracle requests that degraded to zero",
		}),
		reconciliations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reconciliations_total",
				Help:      "Ledger discrepancies requiring operator action",
			},
			[]string{"kind"},
		),
		custodyBalance: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "custody_balance_sol",
			Help:      "Last observed custodial wallet balance",
		}),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
			},
			[]string{"route", "method", "status"},
		),
	}

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.claims,
		c.claimedSOL,
		c.deployments,
		c.oracleFailures,
		c.reconciliations,
		c.custodyBalance,
		c.httpDuration,
	)
	return c
}

// Registry возвращает реестр для регистрации метрик других компонентов.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler отдаёт метрики в формате Prometheus.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// OracleFailures – счётчик для клиента оракула.
func (c *Collector) OracleFailures() prometheus.Counter {
	return c.oracleFailures
}

// Reset сбрасывает все метрики (полезно для тестирования)
func (c *Collector) Reset() {
	c.claims.Reset()
	c.deployments.Reset()
	c.reconciliations.Reset()
	c.httpDuration.Reset()
	c.custodyBalance.Set(0)
}
