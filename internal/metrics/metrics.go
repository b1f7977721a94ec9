// Package metrics exposes the node's operational gauges and counters
// through a dedicated Prometheus registry, and maintains the rolling
// block-observation window the chain-metrics snapshots are computed
// from.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collectors bundles every gauge and counter the node updates. Each
// node owns its own registry so tests can instantiate collectors
// without tripping duplicate-registration panics on the global one.
type Collectors struct {
	registry *prometheus.Registry

	ChainHeight      prometheus.Gauge
	HighestJustified prometheus.Gauge
	FinalityLag      prometheus.Gauge

	MempoolPending prometheus.Gauge
	MempoolQueued  prometheus.Gauge

	ValidatorCount prometheus.Gauge

	BlocksProduced prometheus.Counter
	BlocksAccepted prometheus.Counter
	TxExecuted     prometheus.Counter

	ForkFrequency   prometheus.Gauge
	MaxReorgDepth   prometheus.Gauge
	TotalReorgDepth prometheus.Gauge
}

// New constructs a Collectors set registered on a fresh registry.
func New() *Collectors {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collectors{
		registry: reg,

		ChainHeight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "poaschain", Subsystem: "chain", Name: "height",
			Help: "Current canonical head block number.",
		}),
		HighestJustified: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "poaschain", Subsystem: "chain", Name: "highest_justified",
			Help: "Highest justified checkpoint block number.",
		}),
		FinalityLag: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "poaschain", Subsystem: "chain", Name: "finality_lag",
			Help: "Blocks between the head and the highest justified checkpoint.",
		}),

		MempoolPending: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "poaschain", Subsystem: "mempool", Name: "pending",
			Help: "Transactions eligible for inclusion.",
		}),
		MempoolQueued: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "poaschain", Subsystem: "mempool", Name: "queued",
			Help: "Transactions parked ahead of their sender's nonce.",
		}),

		ValidatorCount: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "poaschain", Subsystem: "consensus", Name: "active_validators",
			Help: "Validators currently eligible for proposer selection.",
		}),

		BlocksProduced: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "poaschain", Subsystem: "node", Name: "blocks_produced_total",
			Help: "Blocks produced by this node.",
		}),
		BlocksAccepted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "poaschain", Subsystem: "node", Name: "blocks_accepted_total",
			Help: "Blocks accepted from peers.",
		}),
		TxExecuted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "poaschain", Subsystem: "chain", Name: "tx_executed_total",
			Help: "Transactions executed into the world-state.",
		}),

		ForkFrequency: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "poaschain", Subsystem: "fork", Name: "frequency",
			Help: "Lifetime count of resolved forks.",
		}),
		MaxReorgDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "poaschain", Subsystem: "fork", Name: "max_reorg_depth",
			Help: "Deepest reorg observed since startup.",
		}),
		TotalReorgDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "poaschain", Subsystem: "fork", Name: "total_reorg_depth",
			Help: "Sum of all observed reorg depths.",
		}),
	}
}

// Handler returns the HTTP scrape handler for this node's registry.
func (c *Collectors) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
