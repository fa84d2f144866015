package staking

import (
	"fmt"
	"math/big"
	"strings"
)

// Strategy names the accrual algorithm a pool was instantiated with.
type Strategy string

const (
	// StrategyInterval credits each staker individually for every whole reward
	// interval elapsed since that staker's own watermark.
	StrategyInterval Strategy = "interval"
	// StrategySweep distributes the pool-wide daily emission across every
	// rostered staker in one pass whenever a day boundary has been crossed.
	StrategySweep Strategy = "sweep"
)

const (
	// SecondsPerDay is the fixed sweep period.
	SecondsPerDay uint64 = 24 * 60 * 60

	// DefaultListLimit is the page size used when a listing omits a limit.
	DefaultListLimit = 10
	// MaxListLimit caps every paginated listing and batch removal.
	MaxListLimit = 30
)

// ParseStrategy converts user supplied configuration into a Strategy.
func ParseStrategy(raw string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(raw))) {
	case StrategyInterval, "":
		return StrategyInterval, nil
	case StrategySweep:
		return StrategySweep, nil
	default:
		return "", fmt.Errorf("staking: unknown strategy %q", raw)
	}
}

// AccrualParams carries the emission schedule.
type AccrualParams struct {
	// DailyReward is the reward emitted per interval (interval strategy) or per
	// day (sweep strategy) across the whole pool.
	DailyReward *big.Int
	// APYPrefix feeds the derived APY query of the interval strategy.
	APYPrefix *big.Int
	// RewardInterval is the interval length in seconds.
	RewardInterval uint64
}

// Clone returns a deep copy of the parameters.
func (p AccrualParams) Clone() AccrualParams {
	return AccrualParams{
		DailyReward:    newBigInt(p.DailyReward),
		APYPrefix:      newBigInt(p.APYPrefix),
		RewardInterval: p.RewardInterval,
	}
}

// Config is the singleton pool record.
type Config struct {
	// Owner is empty when administration has been disabled.
	Owner           string
	StakeToken      string
	RewardToken     string
	ConversionToken string
	Strategy        Strategy
	PoolStakeTotal  *big.Int
	PoolRewardHeld  *big.Int
	Params          AccrualParams
	// LastAccrual and AccrualSeeded hold the sweep strategy's pool watermark.
	LastAccrual   uint64
	AccrualSeeded bool
}

// Clone returns a deep copy of the config.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	clone.PoolStakeTotal = newBigInt(c.PoolStakeTotal)
	clone.PoolRewardHeld = newBigInt(c.PoolRewardHeld)
	clone.Params = c.Params.Clone()
	return &clone
}

func (c *Config) normalize() {
	c.PoolStakeTotal = newBigInt(c.PoolStakeTotal)
	c.PoolRewardHeld = newBigInt(c.PoolRewardHeld)
	c.Params = c.Params.Clone()
}

// Staker is the per-address ledger record.
type Staker struct {
	Address string
	Amount  *big.Int
	Reward  *big.Int
	// LastAccrual is the interval strategy's per-address watermark.
	LastAccrual uint64
}

func newStaker(addr string, now uint64) *Staker {
	return &Staker{
		Address:     addr,
		Amount:      big.NewInt(0),
		Reward:      big.NewInt(0),
		LastAccrual: now,
	}
}

// Clone returns a deep copy of the staker.
func (s *Staker) Clone() *Staker {
	if s == nil {
		return nil
	}
	clone := *s
	clone.Amount = newBigInt(s.Amount)
	clone.Reward = newBigInt(s.Reward)
	return &clone
}

// IsEmpty reports whether the record holds neither stake nor reward and can
// therefore be pruned.
func (s *Staker) IsEmpty() bool {
	return s == nil || (isZero(s.Amount) && isZero(s.Reward))
}

func (s *Staker) normalize() {
	s.Amount = newBigInt(s.Amount)
	s.Reward = newBigInt(s.Reward)
}

// StakerInfo is the external representation of a staker, used by the staker
// query, the listing query and the bulk import message.
type StakerInfo struct {
	Address     string   `json:"address"`
	Amount      *big.Int `json:"amount"`
	Reward      *big.Int `json:"reward"`
	LastAccrual uint64   `json:"last_time"`
}

func stakerInfo(s *Staker) StakerInfo {
	return StakerInfo{
		Address:     s.Address,
		Amount:      newBigInt(s.Amount),
		Reward:      newBigInt(s.Reward),
		LastAccrual: s.LastAccrual,
	}
}

// Env carries the identity of the calling account and the block time of the
// operation being executed.
type Env struct {
	Caller string
	Now    uint64
}

// Transfer instructs the settlement layer to move Amount of Token from the
// pool to Recipient. If the transfer fails the whole operation must be treated
// as failed.
type Transfer struct {
	Token     string   `json:"token"`
	Recipient string   `json:"recipient"`
	Amount    *big.Int `json:"amount"`
}
