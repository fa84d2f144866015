package staking

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStoreStakerRoundTrip(t *testing.T) {
	_, st := freshStore(t)
	_, ok, err := st.Staker(alice)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, st.PutStaker(&Staker{Address: alice, Amount: big.NewInt(12), LastAccrual: 99}))
	got, ok, err := st.Staker(alice)
	require.NoError(t, err)
	require.True(t, ok)
	requireBig(t, 12, got.Amount)
	requireBig(t, 0, got.Reward)
	require.Equal(t, uint64(99), got.LastAccrual)

	require.NoError(t, st.DeleteStaker(alice))
	_, ok, err = st.Staker(alice)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestStoreRejectsNegativeBalances(t *testing.T) {
	_, st := freshStore(t)
	err := st.PutStaker(&Staker{Address: alice, Amount: big.NewInt(-1)})
	require.ErrorIs(t, err, ErrInvalidInput)
	require.Error(t, st.PutStaker(&Staker{}))
}

func TestStoreRangeStakersCursor(t *testing.T) {
	_, st := freshStore(t)
	addrs := []string{alice, bob, carol}
	for _, addr := range addrs {
		require.NoError(t, st.PutStaker(newStaker(addr, 0)))
	}
	// Roster keys share the store but never show up in staker ranges.
	require.NoError(t, st.RosterAdd(alice))

	var seen []string
	collect := func(s *Staker) error {
		seen = append(seen, s.Address)
		return nil
	}
	require.NoError(t, st.RangeStakers("", 0, collect))
	require.Len(t, seen, 3)
	first := seen[0]

	seen = nil
	require.NoError(t, st.RangeStakers(first, 1, collect))
	require.Len(t, seen, 1)
	require.Greater(t, seen[0], first)
}

func TestStoreRangeStakersDecodeFailure(t *testing.T) {
	db, st := freshStore(t)
	require.NoError(t, st.PutStaker(newStaker(alice, 0)))
	require.NoError(t, db.Put(stakerKey(bob), []byte{0xff, 0x00}))

	err := st.RangeStakers("", 0, func(*Staker) error { return nil })
	require.ErrorIs(t, err, ErrPaginationDecodeFailed)
}

func TestStoreRoster(t *testing.T) {
	_, st := freshStore(t)
	require.NoError(t, st.RosterAdd(bob))
	require.NoError(t, st.RosterAdd(alice))
	require.NoError(t, st.RosterAdd(alice))

	members, err := st.RosterMembers()
	require.NoError(t, err)
	require.ElementsMatch(t, []string{alice, bob}, members)

	require.NoError(t, st.RosterRemove(bob))
	require.NoError(t, st.RosterRemove(carol))
	members, err = st.RosterMembers()
	require.NoError(t, err)
	require.Equal(t, []string{alice}, members)
}

func TestStoreConfigMissing(t *testing.T) {
	_, st := freshStore(t)
	_, err := st.Config()
	require.ErrorIs(t, err, ErrNotInstantiated)
	_, ok, err := st.Version()
	require.NoError(t, err)
	require.False(t, ok)
}
