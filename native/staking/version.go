package staking

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// ContractName identifies the ledger in the stored version record.
	ContractName = "stakeledger"
	// ContractVersionString is written on instantiate and migrate.
	ContractVersionString = "1.0.0"
)

// ContractVersion is the stored identity of the code that owns the state.
type ContractVersion struct {
	Contract string
	Version  string
}

// Instantiate creates the pool config and version record. The owner defaults
// to the caller; an explicit empty owner creates a pool without administration.
func (e *Engine) Instantiate(st State, env Env, msg InstantiateMsg) (*Response, error) {
	if st == nil {
		return nil, errNilState
	}
	if _, err := st.Config(); err == nil {
		return nil, ErrAlreadyInstantiated
	} else if !errors.Is(err, ErrNotInstantiated) {
		return nil, err
	}

	var owner string
	if msg.Owner == nil {
		caller, err := normalizeAddress(env.Caller)
		if err != nil {
			return nil, fmt.Errorf("owner: %w", err)
		}
		owner = caller
	} else if strings.TrimSpace(*msg.Owner) != "" {
		normalized, err := normalizeAddress(*msg.Owner)
		if err != nil {
			return nil, fmt.Errorf("owner: %w", err)
		}
		owner = normalized
	}
	stakeToken, err := normalizeAddress(msg.StakeToken)
	if err != nil {
		return nil, fmt.Errorf("stake token: %w", err)
	}
	rewardToken, err := normalizeAddress(msg.RewardToken)
	if err != nil {
		return nil, fmt.Errorf("reward token: %w", err)
	}
	if stakeToken == rewardToken {
		return nil, fmt.Errorf("%w: stake and reward token must differ", ErrInvalidInput)
	}
	var conversionToken string
	if strings.TrimSpace(msg.ConversionToken) != "" {
		conversionToken, err = normalizeAddress(msg.ConversionToken)
		if err != nil {
			return nil, fmt.Errorf("conversion token: %w", err)
		}
	}
	params, err := e.policy.ValidateParams(msg.Params)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Owner:           owner,
		StakeToken:      stakeToken,
		RewardToken:     rewardToken,
		ConversionToken: conversionToken,
		Strategy:        e.policy.Name(),
		Params:          params,
	}
	if err := st.PutConfig(cfg); err != nil {
		return nil, err
	}
	if err := st.PutVersion(&ContractVersion{Contract: ContractName, Version: ContractVersionString}); err != nil {
		return nil, err
	}
	return &Response{Action: ActionInstantiate, Event: instantiateEvent(cfg)}, nil
}

// Migrate checks that the stored state belongs to this ledger and stamps the
// current version.
func (e *Engine) Migrate(st State, _ MigrateMsg) (*Response, error) {
	if st == nil {
		return nil, errNilState
	}
	version, ok, err := st.Version()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotInstantiated
	}
	if version.Contract != ContractName {
		return nil, &CannotMigrateError{Previous: version.Contract}
	}
	previous := version.Version
	if err := st.PutVersion(&ContractVersion{Contract: ContractName, Version: ContractVersionString}); err != nil {
		return nil, err
	}
	return &Response{Action: ActionMigrate, Event: migrateEvent(previous, ContractVersionString)}, nil
}
