package staking

import (
	"fmt"
	"math/big"
	"strconv"
)

// GenesisMsg instantiates a pool and seeds it with existing stakers in one
// step. Pool totals are derived from the seeds so the stake sum holds from
// the first block.
type GenesisMsg struct {
	Instantiate InstantiateMsg
	Stakers     []StakerInfo
	// RewardHeld is the reward balance the pool starts with. It must cover
	// the seeded rewards and defaults to their sum when nil.
	RewardHeld *big.Int
}

// Genesis creates the pool described by msg. Seeding bypasses the owner
// check, so pools without an owner can still start with stakers.
func (e *Engine) Genesis(st State, env Env, msg GenesisMsg) (*Response, error) {
	if e.policy == nil {
		return nil, errNilPolicy
	}
	resp, err := e.Instantiate(st, env, msg.Instantiate)
	if err != nil {
		return nil, err
	}
	stakeSum := big.NewInt(0)
	rewardSum := big.NewInt(0)
	seen := make(map[string]struct{}, len(msg.Stakers))
	for i, info := range msg.Stakers {
		staker, err := e.seedStaker(st, env, i, info)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[staker.Address]; dup {
			return nil, fmt.Errorf("%w: staker %d duplicates %s", ErrInvalidInput, i, staker.Address)
		}
		seen[staker.Address] = struct{}{}
		stakeSum.Add(stakeSum, staker.Amount)
		rewardSum.Add(rewardSum, staker.Reward)
	}
	if len(msg.Stakers) == 0 && msg.RewardHeld == nil {
		return resp, nil
	}

	held := newBigInt(msg.RewardHeld)
	if msg.RewardHeld == nil {
		held.Set(rewardSum)
	}
	if held.Sign() < 0 {
		return nil, fmt.Errorf("%w: genesis reward balance is negative", ErrInvalidInput)
	}
	if held.Cmp(rewardSum) < 0 {
		return nil, fmt.Errorf("%w: genesis reward balance %s below seeded rewards %s", ErrInvalidInput, held, rewardSum)
	}
	cfg, err := st.Config()
	if err != nil {
		return nil, err
	}
	cfg.PoolStakeTotal = stakeSum
	cfg.PoolRewardHeld = held
	if err := st.PutConfig(cfg); err != nil {
		return nil, err
	}
	resp.Event.Attributes["stake_amount"] = stakeSum.String()
	resp.Event.Attributes["reward_amount"] = held.String()
	resp.Event.Attributes["count"] = strconv.Itoa(len(msg.Stakers))
	return resp, nil
}
