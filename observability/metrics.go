package observability

import (
	"math"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	stakingMetricsOnce sync.Once
	stakingRegistry    *StakingMetrics
)

// StakingMetrics wraps collectors tracking ledger operations and pool balances.
type StakingMetrics struct {
	operations  *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	poolStake   prometheus.Gauge
	poolReward  prometheus.Gauge
	distributed prometheus.Counter
	settlement  *prometheus.CounterVec
}

// Staking exposes the metrics registry for stakingd.
func Staking() *StakingMetrics {
	stakingMetricsOnce.Do(func() {
		stakingRegistry = &StakingMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "stakeledger",
				Subsystem: "stakingd",
				Name:      "operations_total",
				Help:      "Ledger operations segmented by action and outcome.",
			}, []string{"action", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "stakeledger",
				Subsystem: "stakingd",
				Name:      "operation_duration_seconds",
				Help:      "Latency distribution for ledger operations including settlement.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"action"}),
			poolStake: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "stakeledger",
				Subsystem: "pool",
				Name:      "stake_total",
				Help:      "Stake token currently held by the pool.",
			}),
			poolReward: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "stakeledger",
				Subsystem: "pool",
				Name:      "reward_held",
				Help:      "Reward token available to pay out.",
			}),
			distributed: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "stakeledger",
				Subsystem: "pool",
				Name:      "reward_distributed_total",
				Help:      "Reward credited to stakers by accrual.",
			}),
			settlement: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "stakeledger",
				Subsystem: "stakingd",
				Name:      "settlement_failures_total",
				Help:      "Outbound transfers rejected by the settlement bank, segmented by token.",
			}, []string{"token"}),
		}
		prometheus.MustRegister(
			stakingRegistry.operations,
			stakingRegistry.latency,
			stakingRegistry.poolStake,
			stakingRegistry.poolReward,
			stakingRegistry.distributed,
			stakingRegistry.settlement,
		)
	})
	return stakingRegistry
}

// ObserveOperation records the outcome and latency of one operation.
func (m *StakingMetrics) ObserveOperation(action string, err error, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	label := labelAction(action)
	m.operations.WithLabelValues(label, outcome).Inc()
	m.latency.WithLabelValues(label).Observe(d.Seconds())
}

// RecordPool updates the pool balance gauges.
func (m *StakingMetrics) RecordPool(stake, reward *big.Int) {
	if m == nil {
		return
	}
	m.poolStake.Set(bigToFloat(stake))
	m.poolReward.Set(bigToFloat(reward))
}

// AddDistributed increments the distributed reward counter.
func (m *StakingMetrics) AddDistributed(amount *big.Int) {
	if m == nil || amount == nil || amount.Sign() <= 0 {
		return
	}
	m.distributed.Add(bigToFloat(amount))
}

// RecordSettlementFailure counts a transfer the bank refused.
func (m *StakingMetrics) RecordSettlementFailure(token string) {
	if m == nil {
		return
	}
	if token = strings.TrimSpace(token); token == "" {
		token = "unknown"
	}
	m.settlement.WithLabelValues(token).Inc()
}

func labelAction(action string) string {
	trimmed := strings.TrimSpace(action)
	if trimmed == "" {
		return "unknown"
	}
	return strings.ToLower(trimmed)
}

func bigToFloat(value *big.Int) float64 {
	if value == nil {
		return 0
	}
	floatVal, acc := new(big.Float).SetInt(value).Float64()
	if acc != big.Exact {
		// Guard against NaN/Inf when conversion fails.
		if math.IsNaN(floatVal) || math.IsInf(floatVal, 0) {
			return 0
		}
	}
	return floatVal
}
