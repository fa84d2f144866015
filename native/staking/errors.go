package staking

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized is returned when an owner-gated operation is invoked by
	// anyone but the owner, or after the owner has been cleared.
	ErrUnauthorized = errors.New("staking: unauthorized")
	// ErrInvalidInput is returned for zero amounts and malformed parameters.
	ErrInvalidInput = errors.New("staking: invalid input")
	// ErrInvalidAddress is returned when an address string cannot be decoded.
	ErrInvalidAddress = errors.New("staking: invalid address")
	// ErrUnacceptableToken is returned when a transfer notification arrives from
	// a contract that is neither the stake nor the reward token.
	ErrUnacceptableToken = errors.New("staking: not reward or stake token")
	// ErrNoReward is returned when claiming with nothing accrued.
	ErrNoReward = errors.New("staking: no reward")
	// ErrNoStaked is returned when unstaking with nothing staked.
	ErrNoStaked = errors.New("staking: no staked amount")
	// ErrInsufficientPoolReward is returned when the pool cannot cover a claim.
	ErrInsufficientPoolReward = errors.New("staking: not enough reward in pool")
	// ErrInsufficientPoolStake signals a broken stake-sum invariant.
	ErrInsufficientPoolStake = errors.New("staking: not enough stake in pool")
	// ErrPaginationDecodeFailed is returned when a staker range cannot be decoded.
	ErrPaginationDecodeFailed = errors.New("staking: staker listing decode failed")
	// ErrNotInstantiated is returned before the pool config has been written.
	ErrNotInstantiated = errors.New("staking: pool not instantiated")
	// ErrAlreadyInstantiated is returned when instantiating twice.
	ErrAlreadyInstantiated = errors.New("staking: pool already instantiated")
	// ErrStrategyMismatch is returned when the engine policy differs from the
	// strategy recorded in the pool config.
	ErrStrategyMismatch = errors.New("staking: strategy mismatch")
	// ErrUnknownMsg is returned for message types the engine does not handle.
	ErrUnknownMsg = errors.New("staking: unknown message")
)

// CannotMigrateError is returned when the stored contract identity does not
// match the code being migrated to.
type CannotMigrateError struct {
	Previous string
}

func (e *CannotMigrateError) Error() string {
	return fmt.Sprintf("staking: cannot migrate from different contract type: %s", e.Previous)
}
