package staking

import (
	"fmt"
	"math/big"
	"strings"
)

// checkOwner loads the config and verifies the caller administers the pool.
func (e *Engine) checkOwner(st State, env Env) (*Config, string, error) {
	cfg, err := e.loadConfig(st)
	if err != nil {
		return nil, "", err
	}
	if cfg.Owner == "" {
		return nil, "", ErrUnauthorized
	}
	caller, err := normalizeAddress(env.Caller)
	if err != nil || caller != cfg.Owner {
		return nil, "", ErrUnauthorized
	}
	return cfg, caller, nil
}

func (e *Engine) updateConfig(st State, env Env, msg UpdateConfigMsg) (*Response, error) {
	cfg, _, err := e.checkOwner(st, env)
	if err != nil {
		return nil, err
	}
	owner := ""
	if msg.NewOwner != nil {
		owner, err = normalizeAddress(*msg.NewOwner)
		if err != nil {
			return nil, err
		}
	}
	cfg.Owner = owner
	if err := st.PutConfig(cfg); err != nil {
		return nil, err
	}
	return &Response{Action: ActionUpdateConfig, Event: updateConfigEvent(owner)}, nil
}

// updateConstants replaces the accrual parameters. Elapsed sweep days are
// settled at the old rate first.
func (e *Engine) updateConstants(st State, env Env, msg UpdateConstantsMsg) (*Response, error) {
	cfg, _, err := e.checkOwner(st, env)
	if err != nil {
		return nil, err
	}
	params, err := e.policy.ValidateParams(AccrualParams{
		DailyReward:    msg.DailyReward,
		APYPrefix:      msg.APYPrefix,
		RewardInterval: msg.RewardInterval,
	})
	if err != nil {
		return nil, err
	}
	outcome, err := e.checkpoint(st, cfg, env.Now)
	if err != nil {
		return nil, err
	}
	cfg.Params = params
	if err := st.PutConfig(cfg); err != nil {
		return nil, err
	}
	return &Response{Action: ActionUpdateConstants, Event: updateConstantsEvent(params), Accrual: outcome}, nil
}

// withdrawStakeToken sends the whole staked balance to the owner. Every staker
// is accrued up to now before its principal is zeroed, so the pool total keeps
// matching the sum of staker amounts and earned rewards stay claimable.
func (e *Engine) withdrawStakeToken(st State, env Env) (*Response, error) {
	cfg, owner, err := e.checkOwner(st, env)
	if err != nil {
		return nil, err
	}
	outcome, err := e.checkpoint(st, cfg, env.Now)
	if err != nil {
		return nil, err
	}
	var addrs []string
	err = st.RangeStakers("", 0, func(s *Staker) error {
		if !isZero(s.Amount) {
			addrs = append(addrs, s.Address)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	// Accrue everyone first: the shares depend on the untouched pool total.
	for _, addr := range addrs {
		accrued, err := e.accrue(st, cfg, addr, env.Now)
		if err != nil {
			return nil, err
		}
		outcome = mergeOutcome(outcome, accrued)
	}
	for _, addr := range addrs {
		staker, ok, err := st.Staker(addr)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		staker.Amount.SetInt64(0)
		if err := e.settleStaker(st, staker); err != nil {
			return nil, err
		}
	}
	amount := new(big.Int).Set(cfg.PoolStakeTotal)
	cfg.PoolStakeTotal.SetInt64(0)
	if err := st.PutConfig(cfg); err != nil {
		return nil, err
	}
	resp := &Response{
		Action:  ActionWithdrawStakeToken,
		Event:   stakeWithdrawAllEvent(owner, amount, len(addrs)),
		Accrual: outcome,
	}
	if amount.Sign() > 0 {
		resp.Transfer = &Transfer{Token: cfg.StakeToken, Recipient: owner, Amount: amount}
	}
	return resp, nil
}

func (e *Engine) withdrawRewardToken(st State, env Env) (*Response, error) {
	cfg, owner, err := e.checkOwner(st, env)
	if err != nil {
		return nil, err
	}
	outcome, err := e.checkpoint(st, cfg, env.Now)
	if err != nil {
		return nil, err
	}
	amount := new(big.Int).Set(cfg.PoolRewardHeld)
	cfg.PoolRewardHeld.SetInt64(0)
	if err := st.PutConfig(cfg); err != nil {
		return nil, err
	}
	resp := &Response{
		Action:  ActionWithdrawRewardToken,
		Event:   rewardWithdrawAllEvent(owner, amount),
		Accrual: outcome,
	}
	if amount.Sign() > 0 {
		resp.Transfer = &Transfer{Token: cfg.RewardToken, Recipient: owner, Amount: amount}
	}
	return resp, nil
}

// addStakers imports records verbatim. Pool totals are not adjusted; the
// owner is trusted to keep them consistent.
func (e *Engine) addStakers(st State, env Env, msg AddStakersMsg) (*Response, error) {
	if _, _, err := e.checkOwner(st, env); err != nil {
		return nil, err
	}
	for i, info := range msg.Stakers {
		if _, err := e.seedStaker(st, env, i, info); err != nil {
			return nil, err
		}
	}
	return &Response{Action: ActionAddStakers, Event: countEvent(EventTypeAddStakers, ActionAddStakers, len(msg.Stakers))}, nil
}

func (e *Engine) removeStaker(st State, env Env, msg RemoveStakerMsg) (*Response, error) {
	if _, _, err := e.checkOwner(st, env); err != nil {
		return nil, err
	}
	addr, err := normalizeAddress(msg.Address)
	if err != nil {
		return nil, err
	}
	if err := e.retire(st, addr); err != nil {
		return nil, err
	}
	return &Response{Action: ActionRemoveStaker, Event: removeStakerEvent(addr)}, nil
}

// removeAllStakers deletes records after the cursor. Without a limit every
// remaining record is removed; an explicit limit is capped at MaxListLimit.
func (e *Engine) removeAllStakers(st State, env Env, msg RemoveAllStakersMsg) (*Response, error) {
	if _, _, err := e.checkOwner(st, env); err != nil {
		return nil, err
	}
	startAfter, err := cursor(msg.StartAfter)
	if err != nil {
		return nil, err
	}
	limit := 0
	if msg.Limit != nil {
		limit = pageLimit(msg.Limit)
	}
	var addrs []string
	err = st.RangeStakers(startAfter, limit, func(s *Staker) error {
		addrs = append(addrs, s.Address)
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, addr := range addrs {
		if err := e.retire(st, addr); err != nil {
			return nil, err
		}
	}
	return &Response{
		Action: ActionRemoveAllStakers,
		Event:  countEvent(EventTypeRemoveAllStakers, ActionRemoveAllStakers, len(addrs)),
	}, nil
}

func cursor(startAfter *string) (string, error) {
	if startAfter == nil || strings.TrimSpace(*startAfter) == "" {
		return "", nil
	}
	return normalizeAddress(*startAfter)
}

func pageLimit(limit *uint32) int {
	if limit == nil || *limit == 0 {
		return DefaultListLimit
	}
	if *limit > MaxListLimit {
		return MaxListLimit
	}
	return int(*limit)
}

// seedStaker writes info verbatim, enrolling the address when it is new. A
// zero watermark is unset and starts at env.Now. It returns the stored record.
func (e *Engine) seedStaker(st State, env Env, i int, info StakerInfo) (*Staker, error) {
	addr, err := normalizeAddress(info.Address)
	if err != nil {
		return nil, fmt.Errorf("staker %d: %w", i, err)
	}
	if isNegative(info.Amount) || isNegative(info.Reward) {
		return nil, fmt.Errorf("%w: staker %d has a negative balance", ErrInvalidInput, i)
	}
	_, existed, err := st.Staker(addr)
	if err != nil {
		return nil, err
	}
	staker := &Staker{
		Address:     addr,
		Amount:      newBigInt(info.Amount),
		Reward:      newBigInt(info.Reward),
		LastAccrual: info.LastAccrual,
	}
	if staker.LastAccrual == 0 {
		staker.LastAccrual = env.Now
	}
	if err := st.PutStaker(staker); err != nil {
		return nil, err
	}
	if !existed {
		if err := e.policy.Enroll(st, addr); err != nil {
			return nil, err
		}
	}
	return staker, nil
}
