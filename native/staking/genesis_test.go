package staking

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenesisSeedsTotals(t *testing.T) {
	db, st := freshStore(t)
	engine := NewEngine(SweepPolicy{})
	resp, err := engine.Genesis(st, Env{Caller: ownerAddr, Now: 0}, GenesisMsg{
		Instantiate: InstantiateMsg{
			Owner:       strPtr(""),
			StakeToken:  stakeToken,
			RewardToken: rewardToken,
			Params:      AccrualParams{DailyReward: big.NewInt(100)},
		},
		Stakers: []StakerInfo{
			{Address: alice, Amount: big.NewInt(300), Reward: big.NewInt(5)},
			{Address: bob, Amount: big.NewInt(100)},
		},
		RewardHeld: big.NewInt(1_000),
	})
	require.NoError(t, err)
	require.Equal(t, "400", resp.Event.Attr("stake_amount"))
	require.Equal(t, "2", resp.Event.Attr("count"))

	f := &fixture{t: t, db: db, engine: engine}
	f.checkInvariants()
	cfg := f.config()
	require.Empty(t, cfg.Owner)
	requireBig(t, 1_000, cfg.PoolRewardHeld)

	members, err := st.RosterMembers()
	require.NoError(t, err)
	require.Len(t, members, 2)

	// First sweep seeds the watermark, one day later 100 is split 3:1.
	f.mustApply(alice, 10, ClaimRewardMsg{})
	f.mustApply(bob, 10+day, UnstakeMsg{})
	got, ok := f.staker(alice)
	require.True(t, ok)
	requireBig(t, 75, got.Reward)
	_, ok = f.staker(bob)
	require.True(t, ok, "bob keeps the accrued reward")
}

func TestGenesisDefaultsRewardHeldToSeeds(t *testing.T) {
	_, st := freshStore(t)
	engine := NewEngine(IntervalPolicy{})
	_, err := engine.Genesis(st, Env{Caller: ownerAddr}, GenesisMsg{
		Instantiate: InstantiateMsg{StakeToken: stakeToken, RewardToken: rewardToken, Params: intervalParams(10)},
		Stakers:     []StakerInfo{{Address: carol, Amount: big.NewInt(7), Reward: big.NewInt(3)}},
	})
	require.NoError(t, err)
	cfg, err := st.Config()
	require.NoError(t, err)
	requireBig(t, 7, cfg.PoolStakeTotal)
	requireBig(t, 3, cfg.PoolRewardHeld)
	require.Equal(t, ownerAddr, cfg.Owner)
}

func TestGenesisRejectsUnderfundedRewards(t *testing.T) {
	_, st := freshStore(t)
	engine := NewEngine(IntervalPolicy{})
	_, err := engine.Genesis(st, Env{Caller: ownerAddr}, GenesisMsg{
		Instantiate: InstantiateMsg{StakeToken: stakeToken, RewardToken: rewardToken, Params: intervalParams(10)},
		Stakers:     []StakerInfo{{Address: carol, Amount: big.NewInt(7), Reward: big.NewInt(3)}},
		RewardHeld:  big.NewInt(2),
	})
	require.ErrorIs(t, err, ErrInvalidInput)

	_, st = freshStore(t)
	_, err = engine.Genesis(st, Env{Caller: ownerAddr}, GenesisMsg{
		Instantiate: InstantiateMsg{StakeToken: stakeToken, RewardToken: rewardToken, Params: intervalParams(10)},
		Stakers:     []StakerInfo{{Address: carol, Amount: big.NewInt(-1)}},
	})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestGenesisRejectsDuplicateSeeds(t *testing.T) {
	_, st := freshStore(t)
	engine := NewEngine(IntervalPolicy{})
	_, err := engine.Genesis(st, Env{Caller: ownerAddr}, GenesisMsg{
		Instantiate: InstantiateMsg{StakeToken: stakeToken, RewardToken: rewardToken, Params: intervalParams(10)},
		Stakers: []StakerInfo{
			{Address: alice, Amount: big.NewInt(100)},
			{Address: alice, Amount: big.NewInt(50)},
		},
	})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestGenesisSeedsWatermarkAtGenesisTime(t *testing.T) {
	const genesisTime = uint64(1_700_000_000)
	db, st := freshStore(t)
	engine := NewEngine(IntervalPolicy{})
	_, err := engine.Genesis(st, Env{Caller: ownerAddr, Now: genesisTime}, GenesisMsg{
		Instantiate: InstantiateMsg{StakeToken: stakeToken, RewardToken: rewardToken, Params: intervalParams(10)},
		Stakers:     []StakerInfo{{Address: alice, Amount: big.NewInt(100)}},
		RewardHeld:  big.NewInt(1_000),
	})
	require.NoError(t, err)

	f := &fixture{t: t, db: db, engine: engine}
	got, ok := f.staker(alice)
	require.True(t, ok)
	require.Equal(t, genesisTime, got.LastAccrual)
	_, err = f.apply(alice, genesisTime, ClaimRewardMsg{})
	require.ErrorIs(t, err, ErrNoReward)
}
