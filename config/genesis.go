package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"stakeledger/crypto"
	"stakeledger/native/staking"
)

// SeedStaker is a staker record imported at genesis.
type SeedStaker struct {
	Address string `toml:"Address"`
	Amount  string `toml:"Amount"`
	Reward  string `toml:"Reward,omitempty"`
}

// Genesis describes the pool a fresh data directory is bootstrapped with.
type Genesis struct {
	Strategy     string `toml:"Strategy"`
	Instantiator string `toml:"Instantiator"`
	// Owner defaults to Instantiator. RenounceOwner creates a pool that
	// accepts no admin operations.
	Owner           string       `toml:"Owner,omitempty"`
	RenounceOwner   bool         `toml:"RenounceOwner,omitempty"`
	StakeToken      string       `toml:"StakeToken"`
	RewardToken     string       `toml:"RewardToken"`
	ConversionToken string       `toml:"ConversionToken,omitempty"`
	DailyReward     string       `toml:"DailyReward"`
	APYPrefix       string       `toml:"APYPrefix,omitempty"`
	RewardInterval  uint64       `toml:"RewardInterval,omitempty"`
	RewardHeld      string       `toml:"RewardHeld,omitempty"`
	GenesisTime     uint64       `toml:"GenesisTime,omitempty"`
	Stakers         []SeedStaker `toml:"Stakers,omitempty"`
}

// LoadGenesis reads the pool genesis at path, writing a default file when it
// does not exist yet.
func LoadGenesis(path string) (*Genesis, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	} else if err != nil {
		return nil, err
	}
	gen := &Genesis{}
	meta, err := toml.DecodeFile(path, gen)
	if err != nil {
		return nil, fmt.Errorf("decode genesis %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("genesis %s: unknown key %s", path, undecoded[0])
	}
	if err := gen.Validate(); err != nil {
		return nil, fmt.Errorf("genesis %s: %w", path, err)
	}
	return gen, nil
}

// DefaultGenesis returns a development pool using placeholder token addresses.
func DefaultGenesis() *Genesis {
	return &Genesis{
		Strategy:       string(staking.StrategyInterval),
		Instantiator:   crypto.MustAddress(0x01).String(),
		StakeToken:     crypto.MustAddress(0x10).String(),
		RewardToken:    crypto.MustAddress(0x20).String(),
		DailyReward:    "1000000",
		APYPrefix:      "0",
		RewardInterval: staking.SecondsPerDay,
	}
}

// StrategyName returns the parsed accrual strategy.
func (g *Genesis) StrategyName() (staking.Strategy, error) {
	return staking.ParseStrategy(g.Strategy)
}

// Validate checks that every field parses. Semantic checks such as token
// uniqueness are left to the ledger.
func (g *Genesis) Validate() error {
	if g == nil {
		return fmt.Errorf("genesis missing")
	}
	if _, err := g.StrategyName(); err != nil {
		return err
	}
	_, err := g.Msg()
	return err
}

// Msg converts the genesis into a ledger genesis message.
func (g *Genesis) Msg() (staking.GenesisMsg, error) {
	msg := staking.GenesisMsg{}
	daily, err := parseAmount(g.DailyReward)
	if err != nil {
		return msg, fmt.Errorf("DailyReward: %w", err)
	}
	prefix, err := parseAmount(g.APYPrefix)
	if err != nil {
		return msg, fmt.Errorf("APYPrefix: %w", err)
	}
	inst := staking.InstantiateMsg{
		StakeToken:      strings.TrimSpace(g.StakeToken),
		RewardToken:     strings.TrimSpace(g.RewardToken),
		ConversionToken: strings.TrimSpace(g.ConversionToken),
		Params: staking.AccrualParams{
			DailyReward:    daily,
			APYPrefix:      prefix,
			RewardInterval: g.RewardInterval,
		},
	}
	switch {
	case g.RenounceOwner:
		empty := ""
		inst.Owner = &empty
	case strings.TrimSpace(g.Owner) != "":
		owner := strings.TrimSpace(g.Owner)
		inst.Owner = &owner
	}
	msg.Instantiate = inst

	if strings.TrimSpace(g.RewardHeld) != "" {
		held, err := parseAmount(g.RewardHeld)
		if err != nil {
			return msg, fmt.Errorf("RewardHeld: %w", err)
		}
		msg.RewardHeld = held
	}
	for i, seed := range g.Stakers {
		amount, err := parseAmount(seed.Amount)
		if err != nil {
			return msg, fmt.Errorf("Stakers[%d].Amount: %w", i, err)
		}
		reward, err := parseAmount(seed.Reward)
		if err != nil {
			return msg, fmt.Errorf("Stakers[%d].Reward: %w", i, err)
		}
		msg.Stakers = append(msg.Stakers, staking.StakerInfo{
			Address:     strings.TrimSpace(seed.Address),
			Amount:      amount,
			Reward:      reward,
			LastAccrual: g.GenesisTime,
		})
	}
	return msg, nil
}

func createDefault(path string) (*Genesis, error) {
	gen := DefaultGenesis()
	if err := persist(path, gen); err != nil {
		return nil, err
	}
	return gen, nil
}

func persist(path string, gen *Genesis) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(gen)
}

func parseAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", raw)
	}
	if value.Sign() < 0 {
		return nil, fmt.Errorf("amount must not be negative")
	}
	return value, nil
}
