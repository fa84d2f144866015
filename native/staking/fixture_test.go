package staking

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"stakeledger/crypto"
	"stakeledger/storage"
)

const day = SecondsPerDay

var (
	ownerAddr   = crypto.MustAddress(0x01).String()
	stakeToken  = crypto.MustAddress(0x10).String()
	rewardToken = crypto.MustAddress(0x20).String()
	bonusToken  = crypto.MustAddress(0x30).String()
	alice       = crypto.MustAddress(0xa1).String()
	bob         = crypto.MustAddress(0xb2).String()
	carol       = crypto.MustAddress(0xc3).String()
)

type fixture struct {
	t      *testing.T
	db     *storage.LevelDB
	engine *Engine
}

func intervalParams(daily int64) AccrualParams {
	return AccrualParams{DailyReward: big.NewInt(daily), APYPrefix: big.NewInt(0), RewardInterval: day}
}

func newFixture(t *testing.T, policy RewardPolicy, params AccrualParams) *fixture {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(func() { _ = db.Close() })
	engine := NewEngine(policy)
	_, err := engine.Instantiate(NewStore(db), Env{Caller: ownerAddr}, InstantiateMsg{
		StakeToken:      stakeToken,
		RewardToken:     rewardToken,
		ConversionToken: bonusToken,
		Params:          params,
	})
	require.NoError(t, err)
	return &fixture{t: t, db: db, engine: engine}
}

func newIntervalFixture(t *testing.T, daily int64) *fixture {
	return newFixture(t, IntervalPolicy{}, intervalParams(daily))
}

func newSweepFixture(t *testing.T, daily int64) *fixture {
	return newFixture(t, SweepPolicy{}, AccrualParams{DailyReward: big.NewInt(daily)})
}

func (f *fixture) store() *Store { return NewStore(f.db) }

func (f *fixture) apply(caller string, now uint64, msg Msg) (*Response, error) {
	return f.engine.Apply(f.db, Env{Caller: caller, Now: now}, msg, nil)
}

func (f *fixture) mustApply(caller string, now uint64, msg Msg) *Response {
	f.t.Helper()
	resp, err := f.apply(caller, now, msg)
	require.NoError(f.t, err)
	f.checkInvariants()
	return resp
}

func (f *fixture) stake(addr string, amount int64, now uint64) *Response {
	f.t.Helper()
	return f.mustApply(stakeToken, now, ReceiveMsg{Sender: addr, Amount: big.NewInt(amount)})
}

func (f *fixture) fund(amount int64, now uint64) *Response {
	f.t.Helper()
	return f.mustApply(rewardToken, now, ReceiveMsg{Sender: ownerAddr, Amount: big.NewInt(amount)})
}

func (f *fixture) config() *Config {
	f.t.Helper()
	cfg, err := f.store().Config()
	require.NoError(f.t, err)
	return cfg
}

func (f *fixture) staker(addr string) (*Staker, bool) {
	f.t.Helper()
	staker, ok, err := f.store().Staker(addr)
	require.NoError(f.t, err)
	return staker, ok
}

func (f *fixture) stakers() []*Staker {
	f.t.Helper()
	var out []*Staker
	require.NoError(f.t, f.store().RangeStakers("", 0, func(s *Staker) error {
		out = append(out, s)
		return nil
	}))
	return out
}

// checkInvariants asserts the stake-sum and non-negativity invariants.
func (f *fixture) checkInvariants() {
	f.t.Helper()
	cfg := f.config()
	sum := big.NewInt(0)
	for _, s := range f.stakers() {
		require.GreaterOrEqual(f.t, s.Amount.Sign(), 0, "negative amount for %s", s.Address)
		require.GreaterOrEqual(f.t, s.Reward.Sign(), 0, "negative reward for %s", s.Address)
		require.False(f.t, s.IsEmpty(), "empty record left behind for %s", s.Address)
		sum.Add(sum, s.Amount)
	}
	require.Zero(f.t, sum.Cmp(cfg.PoolStakeTotal), "sum %s != pool %s", sum, cfg.PoolStakeTotal)
	require.GreaterOrEqual(f.t, cfg.PoolStakeTotal.Sign(), 0)
	require.GreaterOrEqual(f.t, cfg.PoolRewardHeld.Sign(), 0)
}

func requireBig(t *testing.T, want int64, got *big.Int, msgAndArgs ...interface{}) {
	t.Helper()
	require.NotNil(t, got, msgAndArgs...)
	require.Equal(t, big.NewInt(want).String(), got.String(), msgAndArgs...)
}

type staticSupply struct {
	supply map[string]*big.Int
	err    error
}

func (s staticSupply) TotalSupply(_ context.Context, token string) (*big.Int, error) {
	if s.err != nil {
		return nil, s.err
	}
	if v, ok := s.supply[token]; ok {
		return new(big.Int).Set(v), nil
	}
	return big.NewInt(0), nil
}

func testAddress(fill byte) string {
	return crypto.MustAddress(fill).String()
}
