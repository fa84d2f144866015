package staking

import (
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"stakeledger/storage"
)

func freshStore(t *testing.T) (*storage.LevelDB, *Store) {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(func() { _ = db.Close() })
	return db, NewStore(db)
}

func TestInstantiateDefaultsOwnerToCaller(t *testing.T) {
	_, st := freshStore(t)
	engine := NewEngine(IntervalPolicy{})
	resp, err := engine.Instantiate(st, Env{Caller: alice}, InstantiateMsg{
		StakeToken:  stakeToken,
		RewardToken: rewardToken,
		Params:      intervalParams(10),
	})
	require.NoError(t, err)
	require.Equal(t, EventTypeInstantiate, resp.Event.Type)
	require.Equal(t, "interval", resp.Event.Attr("strategy"))

	cfg, err := st.Config()
	require.NoError(t, err)
	require.Equal(t, alice, cfg.Owner)
	require.Empty(t, cfg.ConversionToken)
	requireBig(t, 0, cfg.PoolStakeTotal)

	version, ok, err := st.Version()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, ContractName, version.Contract)

	_, err = engine.Instantiate(st, Env{Caller: alice}, InstantiateMsg{
		StakeToken:  stakeToken,
		RewardToken: rewardToken,
		Params:      intervalParams(10),
	})
	require.ErrorIs(t, err, ErrAlreadyInstantiated)
}

func TestInstantiateWithoutOwner(t *testing.T) {
	_, st := freshStore(t)
	engine := NewEngine(SweepPolicy{})
	_, err := engine.Instantiate(st, Env{Caller: alice}, InstantiateMsg{
		Owner:       strPtr(""),
		StakeToken:  stakeToken,
		RewardToken: rewardToken,
		Params:      AccrualParams{DailyReward: big.NewInt(1)},
	})
	require.NoError(t, err)
	cfg, err := st.Config()
	require.NoError(t, err)
	require.Empty(t, cfg.Owner)
	require.Equal(t, StrategySweep, cfg.Strategy)

	_, err = engine.Execute(st, Env{Caller: alice}, WithdrawRewardTokenMsg{})
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestInstantiateValidation(t *testing.T) {
	engine := NewEngine(IntervalPolicy{})
	cases := map[string]struct {
		msg  InstantiateMsg
		want error
	}{
		"bad stake token": {
			msg:  InstantiateMsg{StakeToken: "x", RewardToken: rewardToken, Params: intervalParams(1)},
			want: ErrInvalidAddress,
		},
		"bad reward token": {
			msg:  InstantiateMsg{StakeToken: stakeToken, RewardToken: "", Params: intervalParams(1)},
			want: ErrInvalidAddress,
		},
		"bad owner": {
			msg:  InstantiateMsg{Owner: strPtr("owner"), StakeToken: stakeToken, RewardToken: rewardToken, Params: intervalParams(1)},
			want: ErrInvalidAddress,
		},
		"bad conversion token": {
			msg:  InstantiateMsg{StakeToken: stakeToken, RewardToken: rewardToken, ConversionToken: "conv", Params: intervalParams(1)},
			want: ErrInvalidAddress,
		},
		"same tokens": {
			msg:  InstantiateMsg{StakeToken: stakeToken, RewardToken: stakeToken, Params: intervalParams(1)},
			want: ErrInvalidInput,
		},
		"zero interval": {
			msg:  InstantiateMsg{StakeToken: stakeToken, RewardToken: rewardToken, Params: AccrualParams{DailyReward: big.NewInt(1)}},
			want: ErrInvalidInput,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, st := freshStore(t)
			_, err := engine.Instantiate(st, Env{Caller: alice}, tc.msg)
			require.ErrorIs(t, err, tc.want)
			_, err = st.Config()
			require.ErrorIs(t, err, ErrNotInstantiated)
		})
	}
}

func TestMigrate(t *testing.T) {
	f := newIntervalFixture(t, 1)
	st := f.store()
	require.NoError(t, st.PutVersion(&ContractVersion{Contract: ContractName, Version: "0.9.0"}))

	resp, err := f.engine.Migrate(st, MigrateMsg{})
	require.NoError(t, err)
	require.Equal(t, "0.9.0", resp.Event.Attr("from"))
	version, _, err := st.Version()
	require.NoError(t, err)
	require.Equal(t, ContractVersionString, version.Version)

	require.NoError(t, st.PutVersion(&ContractVersion{Contract: "crates.io:other", Version: "1"}))
	_, err = f.engine.Migrate(st, MigrateMsg{})
	var cannot *CannotMigrateError
	require.True(t, errors.As(err, &cannot))
	require.Equal(t, "crates.io:other", cannot.Previous)
	require.Contains(t, err.Error(), "crates.io:other")

	_, empty := freshStore(t)
	_, err = f.engine.Migrate(empty, MigrateMsg{})
	require.ErrorIs(t, err, ErrNotInstantiated)
}
