package stakingd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"stakeledger/crypto"
	"stakeledger/native/staking"
	"stakeledger/services/stakingd/journal"
	"stakeledger/services/stakingd/wallet"
	"stakeledger/storage"
)

var (
	ownerAddr   = crypto.MustAddress(0x01).String()
	stakeToken  = crypto.MustAddress(0x10).String()
	rewardToken = crypto.MustAddress(0x20).String()
	alice       = crypto.MustAddress(0xa1).String()
	bob         = crypto.MustAddress(0xb2).String()
)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type harness struct {
	t       *testing.T
	db      *storage.LevelDB
	bank    *wallet.MemoryBank
	journal *journal.Journal
	clock   *testClock
	proc    *Processor
}

func setupJournal(t *testing.T) *journal.Journal {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	j, err := journal.New(db)
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func genesisMsg(daily int64) staking.GenesisMsg {
	return staking.GenesisMsg{Instantiate: staking.InstantiateMsg{
		StakeToken:  stakeToken,
		RewardToken: rewardToken,
		Params: staking.AccrualParams{
			DailyReward:    big.NewInt(daily),
			APYPrefix:      big.NewInt(0),
			RewardInterval: staking.SecondsPerDay,
		},
	}}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(func() { _ = db.Close() })
	h := &harness{
		t:       t,
		db:      db,
		bank:    wallet.NewMemoryBank(),
		journal: setupJournal(t),
		clock:   &testClock{now: time.Unix(1_700_000_000, 0)},
	}
	h.proc = h.newProcessor(h.bank)
	created, err := h.proc.Bootstrap(context.Background(), ownerAddr, 0, genesisMsg(1_000))
	require.NoError(t, err)
	require.True(t, created)
	return h
}

func (h *harness) newProcessor(bank wallet.Bank) *Processor {
	return NewProcessor(h.db, staking.NewEngine(staking.IntervalPolicy{}),
		WithBank(bank),
		WithJournal(h.journal),
		WithLogger(quietLogger()),
		WithClock(h.clock.Now),
		WithEventHub(NewEventHub(8)),
	)
}

func (h *harness) exec(caller string, msg staking.Msg) (*staking.Response, error) {
	return h.proc.Execute(context.Background(), caller, msg)
}

func (h *harness) mustExec(caller string, msg staking.Msg) *staking.Response {
	h.t.Helper()
	resp, err := h.exec(caller, msg)
	require.NoError(h.t, err)
	return resp
}

func (h *harness) stake(addr string, amount int64) {
	h.t.Helper()
	h.mustExec(stakeToken, staking.ReceiveMsg{Sender: addr, Amount: big.NewInt(amount)})
}

func (h *harness) fund(amount int64) {
	h.t.Helper()
	h.mustExec(rewardToken, staking.ReceiveMsg{Sender: ownerAddr, Amount: big.NewInt(amount)})
}

func TestProcessorClaimSettlesThroughBank(t *testing.T) {
	h := newHarness(t)
	h.stake(alice, 100)
	h.fund(5_000)
	require.Equal(t, "100", h.bank.Balance(stakeToken).String())
	require.Equal(t, "5000", h.bank.Balance(rewardToken).String())

	h.clock.Advance(24 * time.Hour)
	resp := h.mustExec(alice, staking.ClaimRewardMsg{})
	require.NotNil(t, resp.Transfer)
	require.Equal(t, "1000", resp.Transfer.Amount.String())
	require.Equal(t, "4000", h.bank.Balance(rewardToken).String())

	settlements := h.bank.Settlements()
	require.Len(t, settlements, 1)
	require.Equal(t, alice, settlements[0].Recipient)

	cfg, err := h.proc.Config()
	require.NoError(t, err)
	require.Equal(t, "4000", cfg.PoolRewardHeld.String())

	history, err := h.proc.History(context.Background(), 10)
	require.NoError(t, err)
	require.NotEmpty(t, history)
	latest := history[0]
	require.Equal(t, staking.ActionClaimReward, latest.Action)
	require.Equal(t, journal.OutcomeCommitted, latest.Outcome)
	require.Equal(t, settlements[0].Ref, latest.TransferRef)
	require.Equal(t, "1000", latest.Amount)
}

func TestProcessorSettlementFailureLeavesLedgerUntouched(t *testing.T) {
	h := newHarness(t)
	h.stake(alice, 100)
	h.fund(5_000)
	h.clock.Advance(24 * time.Hour)

	before, err := h.proc.Staker(alice)
	require.NoError(t, err)

	h.bank.FailNext(errors.New("bank offline"))
	_, err = h.exec(alice, staking.UnstakeMsg{})
	require.ErrorIs(t, err, ErrSettlement)

	after, err := h.proc.Staker(alice)
	require.NoError(t, err)
	require.Equal(t, before.Amount.String(), after.Amount.String())
	require.Equal(t, before.Reward.String(), after.Reward.String())
	require.Equal(t, before.LastAccrual, after.LastAccrual, "accrual from the failed call was discarded")
	cfg, err := h.proc.Config()
	require.NoError(t, err)
	require.Equal(t, "100", cfg.PoolStakeTotal.String())
	require.Equal(t, "100", h.bank.Balance(stakeToken).String())

	history, err := h.proc.History(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, journal.OutcomeRejected, history[0].Outcome)
	require.Contains(t, history[0].Error, "bank offline")

	resp := h.mustExec(alice, staking.UnstakeMsg{})
	require.Equal(t, "100", resp.Transfer.Amount.String())
	require.Zero(t, h.bank.Balance(stakeToken).Sign())
}

func TestProcessorRejectsLedgerErrors(t *testing.T) {
	h := newHarness(t)
	_, err := h.exec(alice, staking.ClaimRewardMsg{})
	require.ErrorIs(t, err, staking.ErrNoReward)

	_, err = h.exec(alice, staking.WithdrawRewardTokenMsg{})
	require.ErrorIs(t, err, staking.ErrUnauthorized)

	_, err = h.exec(bob, staking.ReceiveMsg{Sender: alice, Amount: big.NewInt(5)})
	require.ErrorIs(t, err, staking.ErrUnacceptableToken)
	require.Zero(t, h.bank.Balance(bob).Sign())
}

func TestProcessorBootstrapMigratesExistingPool(t *testing.T) {
	h := newHarness(t)
	h.stake(alice, 70)
	h.fund(30)

	bank := wallet.NewMemoryBank()
	restarted := h.newProcessor(bank)
	created, err := restarted.Bootstrap(context.Background(), ownerAddr, 0, genesisMsg(1))
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, "70", bank.Balance(stakeToken).String())
	require.Equal(t, "30", bank.Balance(rewardToken).String())

	cfg, err := restarted.Config()
	require.NoError(t, err)
	require.Equal(t, "1000", cfg.DailyReward.String(), "genesis is ignored once the pool exists")
}

func TestProcessorAPYUsesBankSupply(t *testing.T) {
	h := newHarness(t)
	h.stake(alice, 1_000)
	apy, err := h.proc.APY(context.Background())
	require.NoError(t, err)
	require.Zero(t, apy.Sign(), "zero prefix yields zero apy")

	h.bank.SetSupply(stakeToken, big.NewInt(1_000_000))
	h.mustExec(ownerAddr, staking.UpdateConstantsMsg{
		DailyReward:    big.NewInt(1_000),
		APYPrefix:      big.NewInt(5),
		RewardInterval: staking.SecondsPerDay,
	})
	apy, err = h.proc.APY(context.Background())
	require.NoError(t, err)
	require.Positive(t, apy.Sign())
}
