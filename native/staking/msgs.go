package staking

import "math/big"

// Msg is an execute message accepted by Engine.Execute.
type Msg interface {
	// Action is the stable operation name used in events and metrics.
	Action() string
}

const (
	ActionReceive             = "receive"
	ActionStake               = "stake"
	ActionFund                = "fund"
	ActionClaimReward         = "claim_reward"
	ActionUnstake             = "unstake"
	ActionWithdrawStakeToken  = "stake_withdraw_all"
	ActionWithdrawRewardToken = "reward_withdraw_all"
	ActionUpdateConfig        = "update_config"
	ActionUpdateConstants     = "update_constants"
	ActionAddStakers          = "add_stakers"
	ActionRemoveStaker        = "remove_staker"
	ActionRemoveAllStakers    = "remove_all_stakers"
	ActionInstantiate         = "instantiate"
	ActionMigrate             = "migrate"
)

// ReceiveMsg is the token transfer notification. The calling token contract is
// Env.Caller; Sender is the account whose tokens were moved into the pool.
type ReceiveMsg struct {
	Sender string
	Amount *big.Int
	// Msg is the opaque payload attached to the transfer. It is not used.
	Msg []byte
}

func (ReceiveMsg) Action() string { return ActionReceive }

// ClaimRewardMsg pays out the caller's accrued reward.
type ClaimRewardMsg struct{}

func (ClaimRewardMsg) Action() string { return ActionClaimReward }

// UnstakeMsg returns the caller's whole stake.
type UnstakeMsg struct{}

func (UnstakeMsg) Action() string { return ActionUnstake }

// WithdrawStakeTokenMsg drains the pool's stake token to the owner.
type WithdrawStakeTokenMsg struct{}

func (WithdrawStakeTokenMsg) Action() string { return ActionWithdrawStakeToken }

// WithdrawRewardTokenMsg drains the pool's reward token to the owner.
type WithdrawRewardTokenMsg struct{}

func (WithdrawRewardTokenMsg) Action() string { return ActionWithdrawRewardToken }

// UpdateConfigMsg replaces the owner. A nil NewOwner disables administration
// permanently.
type UpdateConfigMsg struct {
	NewOwner *string
}

func (UpdateConfigMsg) Action() string { return ActionUpdateConfig }

// UpdateConstantsMsg replaces the accrual parameters.
type UpdateConstantsMsg struct {
	DailyReward    *big.Int
	APYPrefix      *big.Int
	RewardInterval uint64
}

func (UpdateConstantsMsg) Action() string { return ActionUpdateConstants }

// AddStakersMsg imports staker records verbatim. Pool totals are not adjusted.
type AddStakersMsg struct {
	Stakers []StakerInfo
}

func (AddStakersMsg) Action() string { return ActionAddStakers }

// RemoveStakerMsg deletes one staker record unconditionally.
type RemoveStakerMsg struct {
	Address string
}

func (RemoveStakerMsg) Action() string { return ActionRemoveStaker }

// RemoveAllStakersMsg deletes staker records after StartAfter. A nil Limit
// removes every remaining record.
type RemoveAllStakersMsg struct {
	StartAfter *string
	Limit      *uint32
}

func (RemoveAllStakersMsg) Action() string { return ActionRemoveAllStakers }

// InstantiateMsg creates the pool.
type InstantiateMsg struct {
	// Owner defaults to the instantiating caller when nil.
	Owner           *string
	StakeToken      string
	RewardToken     string
	ConversionToken string
	Params          AccrualParams
}

// MigrateMsg upgrades the stored contract version.
type MigrateMsg struct{}
