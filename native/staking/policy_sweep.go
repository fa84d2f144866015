package staking

import (
	"context"
	"fmt"
	"math/big"
)

// SweepPolicy distributes the pool-wide daily emission across every rostered
// staker once per crossed day boundary.
type SweepPolicy struct{}

// Name implements RewardPolicy.
func (SweepPolicy) Name() Strategy { return StrategySweep }

// ValidateParams implements RewardPolicy. The sweep period is fixed at one day.
func (SweepPolicy) ValidateParams(params AccrualParams) (AccrualParams, error) {
	out, err := validateEmission(params)
	if err != nil {
		return out, err
	}
	switch out.RewardInterval {
	case 0, SecondsPerDay:
		out.RewardInterval = SecondsPerDay
	default:
		return out, fmt.Errorf("%w: sweep interval is fixed at %d seconds", ErrInvalidInput, SecondsPerDay)
	}
	return out, nil
}

// Accrue runs the pool sweep. The caller address is not consulted.
func (p SweepPolicy) Accrue(ctx AccrualContext) (AccrualOutcome, error) {
	return p.sweep(ctx)
}

// Checkpoint runs the pool sweep.
func (p SweepPolicy) Checkpoint(ctx AccrualContext) (AccrualOutcome, error) {
	return p.sweep(ctx)
}

func (SweepPolicy) sweep(ctx AccrualContext) (AccrualOutcome, error) {
	outcome := emptyOutcome()
	if ctx.State == nil || ctx.Config == nil {
		return outcome, ErrNotInstantiated
	}
	cfg := ctx.Config
	if !cfg.AccrualSeeded {
		cfg.AccrualSeeded = true
		cfg.LastAccrual = ctx.Now
		outcome.Seeded = true
		return outcome, ctx.State.PutConfig(cfg)
	}
	current, last := ctx.Now/SecondsPerDay, cfg.LastAccrual/SecondsPerDay
	if current <= last {
		return outcome, nil
	}
	days := current - last

	// The watermark moves before anything is credited so a repeated sweep
	// inside the same operation finds nothing to distribute.
	cfg.LastAccrual = ctx.Now
	if err := ctx.State.PutConfig(cfg); err != nil {
		return outcome, err
	}
	outcome.Periods = days

	members, err := ctx.State.RosterMembers()
	if err != nil {
		return outcome, err
	}
	stakers := make([]*Staker, 0, len(members))
	totalStaked := big.NewInt(0)
	for _, addr := range members {
		staker, ok, err := ctx.State.Staker(addr)
		if err != nil {
			return outcome, err
		}
		if !ok || isZero(staker.Amount) {
			continue
		}
		totalStaked.Add(totalStaked, staker.Amount)
		stakers = append(stakers, staker)
	}
	if totalStaked.Sign() == 0 {
		return outcome, nil
	}

	emission := new(big.Int).Mul(newBigInt(cfg.Params.DailyReward), new(big.Int).SetUint64(days))
	for _, staker := range stakers {
		share := proRata(emission, staker.Amount, totalStaked)
		if share.Sign() == 0 {
			continue
		}
		staker.Reward.Add(staker.Reward, share)
		if err := ctx.State.PutStaker(staker); err != nil {
			return outcome, err
		}
		outcome.Distributed.Add(outcome.Distributed, share)
		outcome.Credited++
	}
	return outcome, nil
}

// Enroll adds the address to the sweep roster.
func (SweepPolicy) Enroll(st State, addr string) error {
	return st.RosterAdd(addr)
}

// Retire removes the address from the sweep roster.
func (SweepPolicy) Retire(st State, addr string) error {
	return st.RosterRemove(addr)
}

// APY is not derived for the sweep strategy and always reports zero.
func (SweepPolicy) APY(_ context.Context, cfg *Config, _ TokenQuerier) (*big.Int, error) {
	if cfg == nil {
		return nil, ErrNotInstantiated
	}
	return big.NewInt(0), nil
}
