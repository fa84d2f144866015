package staking

import (
	"context"
	"math/big"
)

// ConfigResponse is the read model of the pool config.
type ConfigResponse struct {
	Owner           *string  `json:"owner"`
	StakeToken      string   `json:"stake_token"`
	RewardToken     string   `json:"reward_token"`
	ConversionToken string   `json:"conversion_token,omitempty"`
	Strategy        Strategy `json:"strategy"`
	PoolStakeTotal  *big.Int `json:"pool_stake_total"`
	PoolRewardHeld  *big.Int `json:"pool_reward_held"`
	DailyReward     *big.Int `json:"daily_reward"`
	APYPrefix       *big.Int `json:"apy_prefix"`
	RewardInterval  uint64   `json:"reward_interval"`
	LastAccrual     uint64   `json:"last_accrual,omitempty"`
}

// StakerListResponse is one page of the staker listing.
type StakerListResponse struct {
	Stakers []StakerInfo `json:"stakers"`
}

// QueryConfig returns the config snapshot.
func (e *Engine) QueryConfig(st State) (*ConfigResponse, error) {
	if st == nil {
		return nil, errNilState
	}
	cfg, err := st.Config()
	if err != nil {
		return nil, err
	}
	resp := &ConfigResponse{
		StakeToken:      cfg.StakeToken,
		RewardToken:     cfg.RewardToken,
		ConversionToken: cfg.ConversionToken,
		Strategy:        cfg.Strategy,
		PoolStakeTotal:  newBigInt(cfg.PoolStakeTotal),
		PoolRewardHeld:  newBigInt(cfg.PoolRewardHeld),
		DailyReward:     newBigInt(cfg.Params.DailyReward),
		APYPrefix:       newBigInt(cfg.Params.APYPrefix),
		RewardInterval:  cfg.Params.RewardInterval,
		LastAccrual:     cfg.LastAccrual,
	}
	if cfg.Owner != "" {
		owner := cfg.Owner
		resp.Owner = &owner
	}
	return resp, nil
}

// QueryStaker returns one staker. An absent record reads as all zero.
func (e *Engine) QueryStaker(st State, address string) (*StakerInfo, error) {
	if st == nil {
		return nil, errNilState
	}
	addr, err := normalizeAddress(address)
	if err != nil {
		return nil, err
	}
	staker, ok, err := st.Staker(addr)
	if err != nil {
		return nil, err
	}
	if !ok {
		staker = newStaker(addr, 0)
	}
	info := stakerInfo(staker)
	return &info, nil
}

// ListStakers returns stakers in address order after the exclusive cursor.
func (e *Engine) ListStakers(st State, startAfter *string, limit *uint32) (*StakerListResponse, error) {
	if st == nil {
		return nil, errNilState
	}
	start, err := cursor(startAfter)
	if err != nil {
		return nil, err
	}
	resp := &StakerListResponse{Stakers: []StakerInfo{}}
	err = st.RangeStakers(start, pageLimit(limit), func(s *Staker) error {
		resp.Stakers = append(resp.Stakers, stakerInfo(s))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// QueryAPY returns the policy's annual yield figure, scaled by 10^10.
func (e *Engine) QueryAPY(ctx context.Context, st State) (*big.Int, error) {
	if st == nil {
		return nil, errNilState
	}
	if e.policy == nil {
		return nil, errNilPolicy
	}
	cfg, err := e.loadConfig(st)
	if err != nil {
		return nil, err
	}
	return e.policy.APY(ctx, cfg, e.tokens)
}
