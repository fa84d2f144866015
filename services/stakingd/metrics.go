package stakingd

import "stakeledger/observability"

// Metrics exposes Prometheus collectors for stakingd instrumentation.
type Metrics = observability.StakingMetrics

// NewMetrics returns a lazily initialised metrics registry.
func NewMetrics() *Metrics { return observability.Staking() }
