// Package metrics exposes wallet and session activity as Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/bnema/focuscoin/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "focuscoin"

type Collector struct {
	registry *prometheus.Registry

	balance         prometheus.Gauge
	coins           *prometheus.CounterVec
	sessionsStarted *prometheus.CounterVec
	sessionsEnded   *prometheus.CounterVec
	paywallRequired prometheus.Counter
	refunds         prometheus.Counter
	syncRecords     *prometheus.CounterVec
}

func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		balance: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "wallet",
			Name:      "balance",
			Help:      "Current wallet balance in coins.",
		}),
		coins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "wallet",
			Name:      "coins_total",
			Help:      "Coins moved through the ledger by transaction kind.",
		}, []string{"kind"}),
		sessionsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "started_total",
			Help:      "Sessions opened by mode.",
		}, []string{"mode"}),
		sessionsEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "ended_total",
			Help:      "Sessions closed by end reason.",
		}, []string{"reason"}),
		paywallRequired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "paywall",
			Name:      "required_total",
			Help:      "Frivolity reports seen without a valid pass.",
		}),
		refunds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refund_coins_total",
			Help:      "Coins returned by pack cancellations.",
		}),
		syncRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "records_total",
			Help:      "Remote transactions seen by merge result.",
		}, []string{"result"}),
	}

	c.registry.MustRegister(
		c.balance,
		c.coins,
		c.sessionsStarted,
		c.sessionsEnded,
		c.paywallRequired,
		c.refunds,
		c.syncRecords,
		prometheus.NewGoCollector(),
	)
	return c
}

// Observe updates collectors from one published event.
func (c *Collector) Observe(event domain.Event) {
	switch event.Type {
	case domain.EventWalletUpdated:
		if event.Wallet != nil {
			c.balance.Set(float64(event.Wallet.Balance))
		}
		if tx := event.Transaction; tx != nil {
			amount := tx.Amount
			if amount < 0 {
				amount = -amount
			}
			c.coins.WithLabelValues(string(tx.Kind)).Add(float64(amount))
		}
	case domain.EventSessionStarted:
		if event.Session != nil {
			c.sessionsStarted.WithLabelValues(string(event.Session.Mode)).Inc()
		}
	case domain.EventSessionEnded:
		c.sessionsEnded.WithLabelValues(string(event.Reason)).Inc()
		if event.Refund > 0 {
			c.refunds.Add(float64(event.Refund))
		}
	case domain.EventPaywallRequired:
		c.paywallRequired.Inc()
	}
}

// SetBalance seeds the gauge before the first wallet event arrives.
func (c *Collector) SetBalance(balance int64) {
	c.balance.Set(float64(balance))
}

func (c *Collector) RecordSync(applied, duplicates, dropped int) {
	c.syncRecords.WithLabelValues("applied").Add(float64(applied))
	c.syncRecords.WithLabelValues("duplicate").Add(float64(duplicates))
	c.syncRecords.WithLabelValues("dropped").Add(float64(dropped))
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
