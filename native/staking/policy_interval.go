package staking

import (
	"context"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

var (
	// apyMultiple scales the integer APY figure (apy * 10^10).
	apyMultiple = uint256.NewInt(10_000_000_000)
	// mintingCostBase is added to the scaled supply when deriving the stake
	// token minting cost.
	mintingCostBase = uint256.NewInt(10_000)
)

// IntervalPolicy accrues reward per staker, for whole reward intervals elapsed
// since that staker's own watermark.
type IntervalPolicy struct{}

// Name implements RewardPolicy.
func (IntervalPolicy) Name() Strategy { return StrategyInterval }

// ValidateParams implements RewardPolicy.
func (IntervalPolicy) ValidateParams(params AccrualParams) (AccrualParams, error) {
	out, err := validateEmission(params)
	if err != nil {
		return out, err
	}
	if out.RewardInterval == 0 {
		return out, fmt.Errorf("%w: reward interval must be positive", ErrInvalidInput)
	}
	return out, nil
}

// Accrue credits daily_reward * intervals * stake / pool_stake to the staker.
//
// Intervals are counted on interval-aligned boundaries, so two calls inside the
// same interval accrue nothing. The watermark moves whenever at least one
// interval boundary has been crossed; the truncated remainder is forfeited.
func (p IntervalPolicy) Accrue(ctx AccrualContext) (AccrualOutcome, error) {
	outcome := emptyOutcome()
	if ctx.State == nil || ctx.Config == nil {
		return outcome, ErrNotInstantiated
	}
	staker, ok, err := ctx.State.Staker(ctx.Address)
	if err != nil {
		return outcome, err
	}
	if !ok {
		outcome.Seeded = true
		return outcome, ctx.State.PutStaker(newStaker(ctx.Address, ctx.Now))
	}
	interval := ctx.Config.Params.RewardInterval
	if interval == 0 {
		return outcome, fmt.Errorf("%w: reward interval not configured", ErrInvalidInput)
	}
	current, last := ctx.Now/interval, staker.LastAccrual/interval
	if current <= last {
		return outcome, nil
	}
	intervals := current - last
	if isZero(ctx.Config.PoolStakeTotal) || isZero(staker.Amount) {
		// Idle intervals are skipped so that a later stake cannot collect
		// reward for time the address held nothing.
		staker.LastAccrual = ctx.Now
		return outcome, ctx.State.PutStaker(staker)
	}
	emission := new(big.Int).Mul(newBigInt(ctx.Config.Params.DailyReward), new(big.Int).SetUint64(intervals))
	share := proRata(emission, staker.Amount, ctx.Config.PoolStakeTotal)
	staker.Reward.Add(staker.Reward, share)
	staker.LastAccrual = ctx.Now
	if err := ctx.State.PutStaker(staker); err != nil {
		return outcome, err
	}
	outcome.Periods = intervals
	outcome.Distributed = share
	if share.Sign() > 0 {
		outcome.Credited = 1
	}
	return outcome, nil
}

// Checkpoint is a no-op: interval accrual is always per staker.
func (IntervalPolicy) Checkpoint(AccrualContext) (AccrualOutcome, error) {
	return emptyOutcome(), nil
}

// Enroll is a no-op: the interval policy never iterates stakers.
func (IntervalPolicy) Enroll(State, string) error { return nil }

// Retire is a no-op.
func (IntervalPolicy) Retire(State, string) error { return nil }

// APY returns apy_prefix * 10^20 / minting_rate / pool_stake, where the
// minting rate is stake_supply / 10^10 + 10000. The figure is scaled by 10^10.
func (IntervalPolicy) APY(ctx context.Context, cfg *Config, tokens TokenQuerier) (*big.Int, error) {
	if cfg == nil {
		return nil, ErrNotInstantiated
	}
	if isZero(cfg.PoolStakeTotal) {
		return big.NewInt(0), nil
	}
	if tokens == nil {
		return nil, fmt.Errorf("staking: token querier not configured")
	}
	supply, err := tokens.TotalSupply(ctx, cfg.StakeToken)
	if err != nil {
		return nil, fmt.Errorf("query stake token supply: %w", err)
	}
	supplyU, overflow := uint256.FromBig(newBigInt(supply))
	if overflow {
		return nil, fmt.Errorf("%w: stake token supply overflows 256 bits", ErrInvalidInput)
	}
	prefix, overflow := uint256.FromBig(newBigInt(cfg.Params.APYPrefix))
	if overflow {
		return nil, fmt.Errorf("%w: apy prefix overflows 256 bits", ErrInvalidInput)
	}
	staked, overflow := uint256.FromBig(cfg.PoolStakeTotal)
	if overflow {
		return nil, fmt.Errorf("%w: pool stake overflows 256 bits", ErrInvalidInput)
	}

	rate := new(uint256.Int).Div(supplyU, apyMultiple)
	if _, carry := rate.AddOverflow(rate, mintingCostBase); carry {
		return nil, fmt.Errorf("staking: apy minting rate overflow")
	}
	apy := new(uint256.Int)
	if _, over := apy.MulOverflow(prefix, apyMultiple); over {
		return nil, fmt.Errorf("staking: apy overflow")
	}
	if _, over := apy.MulOverflow(apy, apyMultiple); over {
		return nil, fmt.Errorf("staking: apy overflow")
	}
	apy.Div(apy, rate)
	apy.Div(apy, staked)
	return apy.ToBig(), nil
}
