package metrics

import (
	"math/big"
	"sync"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
)

// LedgerMetrics tracks stake ledger activity.
type LedgerMetrics struct {
	operations  *prometheus.CounterVec
	failures    *prometheus.CounterVec
	minted      prometheus.Counter
	burned      prometheus.Counter
	discarded   prometheus.Counter
	capClamps   prometheus.Counter
	accPerShare prometheus.Gauge
	totalStaked prometheus.Gauge
}

var (
	ledgerOnce     sync.Once
	ledgerRegistry *LedgerMetrics

	// weiPerToken converts 18 decimal amounts into whole token units for gauges.
	weiPerToken = new(big.Float).SetFloat64(1e18)
)

// Ledger returns the lazily-initialised ledger metrics registry.
func Ledger() *LedgerMetrics {
	ledgerOnce.Do(func() {
		ledgerRegistry = &LedgerMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "vestake",
				Subsystem: "ledger",
				Name:      "operations_total",
				Help:      "Count of committed ledger operations by kind.",
			}, []string{"operation"}),
			failures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "vestake",
				Subsystem: "ledger",
				Name:      "operation_failures_total",
				Help:      "Count of rejected ledger operations by kind and error code.",
			}, []string{"operation", "code"}),
			minted: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "vestake",
				Subsystem: "ledger",
				Name:      "minted_tokens_total",
				Help:      "Derived token minted by settlement, in whole tokens.",
			}),
			burned: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "vestake",
				Subsystem: "ledger",
				Name:      "burned_tokens_total",
				Help:      "Derived token burned on withdrawal, in whole tokens.",
			}),
			discarded: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "vestake",
				Subsystem: "ledger",
				Name:      "discarded_tokens_total",
				Help:      "Reward discarded by the per-user cap, in whole tokens.",
			}),
			capClamps: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "vestake",
				Subsystem: "ledger",
				Name:      "cap_clamps_total",
				Help:      "Number of settlements clamped by the per-user cap.",
			}),
			accPerShare: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "vestake",
				Subsystem: "ledger",
				Name:      "acc_per_share",
				Help:      "Current accumulated reward per staked unit, in whole tokens.",
			}),
			totalStaked: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "vestake",
				Subsystem: "ledger",
				Name:      "total_staked",
				Help:      "Base asset custodied by the ledger, in whole tokens.",
			}),
		}
		prometheus.MustRegister(
			ledgerRegistry.operations,
			ledgerRegistry.failures,
			ledgerRegistry.minted,
			ledgerRegistry.burned,
			ledgerRegistry.discarded,
			ledgerRegistry.capClamps,
			ledgerRegistry.accPerShare,
			ledgerRegistry.totalStaked,
		)
	})
	return ledgerRegistry
}

// ObserveOperation records a committed operation or, when code is non-empty,
// a rejected one.
func (m *LedgerMetrics) ObserveOperation(operation, code string) {
	if m == nil {
		return
	}
	if operation == "" {
		operation = "unknown"
	}
	if code == "" {
		m.operations.WithLabelValues(operation).Inc()
		return
	}
	m.failures.WithLabelValues(operation, code).Inc()
}

// ObserveSettlement records the token flows of one settlement.
func (m *LedgerMetrics) ObserveSettlement(minted, discarded, burned *uint256.Int) {
	if m == nil {
		return
	}
	m.minted.Add(tokens(minted))
	m.burned.Add(tokens(burned))
	if discarded != nil && !discarded.IsZero() {
		m.capClamps.Inc()
		m.discarded.Add(tokens(discarded))
	}
}

// SetGlobal updates the accumulator and custody gauges.
func (m *LedgerMetrics) SetGlobal(accPerShare, totalStaked *uint256.Int) {
	if m == nil {
		return
	}
	m.accPerShare.Set(tokens(accPerShare))
	m.totalStaked.Set(tokens(totalStaked))
}

func tokens(amount *uint256.Int) float64 {
	if amount == nil || amount.IsZero() {
		return 0
	}
	value := new(big.Float).SetInt(amount.ToBig())
	value.Quo(value, weiPerToken)
	out, _ := value.Float64()
	return out
}
