package staking

import (
	"math/big"
	"strconv"

	"stakeledger/core/types"
)

const (
	// EventTypeStake is emitted when stake tokens are credited to a staker.
	EventTypeStake = "staking.stake"
	// EventTypeFund is emitted when reward tokens top up the pool.
	EventTypeFund = "staking.fund"
	// EventTypeClaimReward is emitted when a staker's reward is paid out.
	EventTypeClaimReward = "staking.claim_reward"
	// EventTypeUnstake is emitted when a staker's principal is returned.
	EventTypeUnstake = "staking.unstake"
	// EventTypeStakeWithdrawAll is emitted when the owner drains the stake token.
	EventTypeStakeWithdrawAll = "staking.stake_withdraw_all"
	// EventTypeRewardWithdrawAll is emitted when the owner drains the reward token.
	EventTypeRewardWithdrawAll = "staking.reward_withdraw_all"
	// EventTypeUpdateConfig is emitted when the owner changes.
	EventTypeUpdateConfig = "staking.update_config"
	// EventTypeUpdateConstants is emitted when accrual parameters change.
	EventTypeUpdateConstants = "staking.update_constants"
	// EventTypeAddStakers is emitted after a bulk staker import.
	EventTypeAddStakers = "staking.add_stakers"
	// EventTypeRemoveStaker is emitted when a single record is removed.
	EventTypeRemoveStaker = "staking.remove_staker"
	// EventTypeRemoveAllStakers is emitted after a batch removal.
	EventTypeRemoveAllStakers = "staking.remove_all_stakers"
	// EventTypeInstantiate is emitted when the pool is created.
	EventTypeInstantiate = "staking.instantiate"
	// EventTypeMigrate is emitted when the stored version is upgraded.
	EventTypeMigrate = "staking.migrate"
)

func newEvent(eventType, action string, kv ...string) *types.Event {
	evt := types.NewEvent(eventType, kv...)
	evt.Attributes["action"] = action
	return evt
}

func amountEvent(eventType, action, addr, key string, amount *big.Int) *types.Event {
	return newEvent(eventType, action, "address", addr, key, formatAmount(amount))
}

func stakeEvent(addr string, amount *big.Int) *types.Event {
	return amountEvent(EventTypeStake, ActionStake, addr, "amount", amount)
}

func fundEvent(sender string, amount *big.Int) *types.Event {
	return amountEvent(EventTypeFund, ActionFund, sender, "amount", amount)
}

func claimEvent(addr string, reward *big.Int) *types.Event {
	return amountEvent(EventTypeClaimReward, ActionClaimReward, addr, "reward_amount", reward)
}

func unstakeEvent(addr string, amount *big.Int) *types.Event {
	return amountEvent(EventTypeUnstake, ActionUnstake, addr, "stake_amount", amount)
}

func stakeWithdrawAllEvent(owner string, amount *big.Int, cleared int) *types.Event {
	evt := amountEvent(EventTypeStakeWithdrawAll, ActionWithdrawStakeToken, owner, "stake_amount", amount)
	evt.Attributes["stakers_cleared"] = strconv.Itoa(cleared)
	return evt
}

func rewardWithdrawAllEvent(owner string, amount *big.Int) *types.Event {
	return amountEvent(EventTypeRewardWithdrawAll, ActionWithdrawRewardToken, owner, "reward_amount", amount)
}

func updateConfigEvent(owner string) *types.Event {
	if owner == "" {
		return newEvent(EventTypeUpdateConfig, ActionUpdateConfig, "owner", "none")
	}
	return newEvent(EventTypeUpdateConfig, ActionUpdateConfig, "owner", owner)
}

func updateConstantsEvent(params AccrualParams) *types.Event {
	return newEvent(EventTypeUpdateConstants, ActionUpdateConstants,
		"daily_reward", formatAmount(params.DailyReward),
		"apy_prefix", formatAmount(params.APYPrefix),
		"reward_interval", strconv.FormatUint(params.RewardInterval, 10),
	)
}

func countEvent(eventType, action string, count int) *types.Event {
	return newEvent(eventType, action, "count", strconv.Itoa(count))
}

func removeStakerEvent(addr string) *types.Event {
	return newEvent(EventTypeRemoveStaker, ActionRemoveStaker, "address", addr)
}

func instantiateEvent(cfg *Config) *types.Event {
	return newEvent(EventTypeInstantiate, ActionInstantiate,
		"owner", cfg.Owner,
		"strategy", string(cfg.Strategy),
		"stake_token", cfg.StakeToken,
		"reward_token", cfg.RewardToken,
	)
}

func migrateEvent(from, to string) *types.Event {
	return newEvent(EventTypeMigrate, ActionMigrate, "from", from, "to", to)
}
