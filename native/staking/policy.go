package staking

import (
	"context"
	"fmt"
	"math/big"
)

// AccrualContext is the input of a single accrual step.
type AccrualContext struct {
	State State
	// Config is updated in place when the policy moves pool-level fields.
	Config *Config
	// Address is the staker whose reward must be brought up to date. The sweep
	// policy ignores it and updates every rostered staker.
	Address string
	Now     uint64
}

// AccrualOutcome reports what an accrual step credited.
type AccrualOutcome struct {
	// Periods is the number of whole intervals (or days) accrued.
	Periods uint64
	// Distributed is the total reward credited to staker records.
	Distributed *big.Int
	// Credited counts the staker records that received a non-zero share.
	Credited int
	// Seeded is set when the step only initialised a watermark.
	Seeded bool
}

func emptyOutcome() AccrualOutcome {
	return AccrualOutcome{Distributed: big.NewInt(0)}
}

func mergeOutcome(a, b AccrualOutcome) AccrualOutcome {
	out := AccrualOutcome{
		Periods:     a.Periods,
		Distributed: new(big.Int).Add(newBigInt(a.Distributed), newBigInt(b.Distributed)),
		Credited:    a.Credited + b.Credited,
		Seeded:      a.Seeded || b.Seeded,
	}
	if b.Periods > out.Periods {
		out.Periods = b.Periods
	}
	return out
}

// TokenQuerier answers supply queries against the external token contracts.
type TokenQuerier interface {
	TotalSupply(ctx context.Context, token string) (*big.Int, error)
}

// RewardPolicy is the accrual capability shared by every operation handler.
type RewardPolicy interface {
	Name() Strategy
	// ValidateParams checks and normalises accrual parameters.
	ValidateParams(params AccrualParams) (AccrualParams, error)
	// Accrue brings reward state up to date before a staker-facing mutation.
	Accrue(ctx AccrualContext) (AccrualOutcome, error)
	// Checkpoint brings pool-level reward state up to date before an operation
	// that does not concern a single staker (funding, owner withdrawals).
	Checkpoint(ctx AccrualContext) (AccrualOutcome, error)
	// Enroll is called after a staker record is created by a stake or import.
	Enroll(st State, addr string) error
	// Retire is called after a staker record is deleted.
	Retire(st State, addr string) error
	// APY derives the annual yield figure reported by the query layer.
	APY(ctx context.Context, cfg *Config, tokens TokenQuerier) (*big.Int, error)
}

// NewPolicy returns the policy implementing the named strategy.
func NewPolicy(strategy Strategy) (RewardPolicy, error) {
	switch strategy {
	case StrategyInterval:
		return IntervalPolicy{}, nil
	case StrategySweep:
		return SweepPolicy{}, nil
	default:
		return nil, fmt.Errorf("staking: unknown strategy %q", strategy)
	}
}

func validateEmission(params AccrualParams) (AccrualParams, error) {
	out := params.Clone()
	if isNegative(params.DailyReward) {
		return out, fmt.Errorf("%w: daily reward cannot be negative", ErrInvalidInput)
	}
	if isNegative(params.APYPrefix) {
		return out, fmt.Errorf("%w: apy prefix cannot be negative", ErrInvalidInput)
	}
	return out, nil
}
