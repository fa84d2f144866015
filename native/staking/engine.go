package staking

import (
	"errors"
	"fmt"
	"math/big"

	"stakeledger/core/events"
	"stakeledger/core/types"
	"stakeledger/crypto"
	"stakeledger/storage"
)

var (
	errNilState  = errors.New("staking engine: state not configured")
	errNilPolicy = errors.New("staking engine: reward policy not configured")
)

// Response is the result of a committed operation: one event and at most one
// outbound transfer that the host must settle before committing.
type Response struct {
	Action   string
	Event    *types.Event
	Transfer *Transfer
	// Accrual reports what the policy credited while preparing the operation.
	Accrual AccrualOutcome
}

// Engine executes ledger operations against a State using one RewardPolicy.
// The engine holds no ledger state of its own.
type Engine struct {
	policy  RewardPolicy
	tokens  TokenQuerier
	emitter events.Emitter
}

// NewEngine creates an engine bound to the supplied policy.
func NewEngine(policy RewardPolicy) *Engine {
	return &Engine{policy: policy, emitter: events.NoopEmitter{}}
}

// Policy returns the configured reward policy.
func (e *Engine) Policy() RewardPolicy { return e.policy }

// SetTokenQuerier configures the supply source used by the APY query.
func (e *Engine) SetTokenQuerier(q TokenQuerier) { e.tokens = q }

// SetEmitter configures the event emitter notified by Apply after a commit.
// Passing nil resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// Apply runs msg inside a storage transaction. The transaction is committed
// only when the handler succeeds and settle accepts the outbound transfer;
// any failure discards every write made by the operation.
func (e *Engine) Apply(db storage.Database, env Env, msg Msg, settle func(*Transfer) error) (*Response, error) {
	tx, err := db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Discard()

	resp, err := e.Execute(NewStore(tx), env, msg)
	if err != nil {
		return nil, err
	}
	if resp.Transfer != nil && settle != nil {
		if err := settle(resp.Transfer); err != nil {
			return nil, fmt.Errorf("settle %s transfer: %w", resp.Action, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit %s: %w", resp.Action, err)
	}
	if resp.Event != nil {
		e.emitter.Emit(events.Wrap(resp.Event))
	}
	return resp, nil
}

// Execute dispatches an execute message. Writes go straight to st; callers
// that need all-or-nothing semantics pass a transactional view or use Apply.
func (e *Engine) Execute(st State, env Env, msg Msg) (*Response, error) {
	if st == nil {
		return nil, errNilState
	}
	if e.policy == nil {
		return nil, errNilPolicy
	}
	switch m := msg.(type) {
	case ReceiveMsg:
		return e.receive(st, env, m)
	case ClaimRewardMsg:
		return e.claimReward(st, env)
	case UnstakeMsg:
		return e.unstake(st, env)
	case WithdrawStakeTokenMsg:
		return e.withdrawStakeToken(st, env)
	case WithdrawRewardTokenMsg:
		return e.withdrawRewardToken(st, env)
	case UpdateConfigMsg:
		return e.updateConfig(st, env, m)
	case UpdateConstantsMsg:
		return e.updateConstants(st, env, m)
	case AddStakersMsg:
		return e.addStakers(st, env, m)
	case RemoveStakerMsg:
		return e.removeStaker(st, env, m)
	case RemoveAllStakersMsg:
		return e.removeAllStakers(st, env, m)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownMsg, msg)
	}
}

func (e *Engine) loadConfig(st State) (*Config, error) {
	cfg, err := st.Config()
	if err != nil {
		return nil, err
	}
	if cfg.Strategy != e.policy.Name() {
		return nil, fmt.Errorf("%w: pool uses %s, engine runs %s", ErrStrategyMismatch, cfg.Strategy, e.policy.Name())
	}
	return cfg, nil
}

func (e *Engine) accrue(st State, cfg *Config, addr string, now uint64) (AccrualOutcome, error) {
	return e.policy.Accrue(AccrualContext{State: st, Config: cfg, Address: addr, Now: now})
}

func (e *Engine) checkpoint(st State, cfg *Config, now uint64) (AccrualOutcome, error) {
	return e.policy.Checkpoint(AccrualContext{State: st, Config: cfg, Now: now})
}

// retire deletes a staker record and drops it from any policy bookkeeping.
func (e *Engine) retire(st State, addr string) error {
	if err := st.DeleteStaker(addr); err != nil {
		return err
	}
	return e.policy.Retire(st, addr)
}

// settleStaker persists the staker or prunes it once both balances are zero.
func (e *Engine) settleStaker(st State, staker *Staker) error {
	if staker.IsEmpty() {
		return e.retire(st, staker.Address)
	}
	return st.PutStaker(staker)
}

func normalizeAddress(raw string) (string, error) {
	addr, err := crypto.NormalizeAddress(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	return addr, nil
}

func (e *Engine) receive(st State, env Env, msg ReceiveMsg) (*Response, error) {
	cfg, err := e.loadConfig(st)
	if err != nil {
		return nil, err
	}
	if msg.Amount == nil || msg.Amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	}
	sender, err := normalizeAddress(msg.Sender)
	if err != nil {
		return nil, err
	}
	token, err := normalizeAddress(env.Caller)
	if err != nil {
		return nil, ErrUnacceptableToken
	}
	amount := new(big.Int).Set(msg.Amount)

	switch token {
	case cfg.StakeToken:
		return e.stake(st, cfg, sender, amount, env.Now)
	case cfg.RewardToken:
		return e.fund(st, cfg, sender, amount, env.Now)
	default:
		return nil, ErrUnacceptableToken
	}
}

func (e *Engine) stake(st State, cfg *Config, sender string, amount *big.Int, now uint64) (*Response, error) {
	_, existed, err := st.Staker(sender)
	if err != nil {
		return nil, err
	}
	outcome, err := e.accrue(st, cfg, sender, now)
	if err != nil {
		return nil, err
	}
	staker, ok, err := st.Staker(sender)
	if err != nil {
		return nil, err
	}
	if !ok {
		staker = newStaker(sender, now)
	}
	staker.Amount.Add(staker.Amount, amount)
	if err := st.PutStaker(staker); err != nil {
		return nil, err
	}
	if !existed {
		if err := e.policy.Enroll(st, sender); err != nil {
			return nil, err
		}
	}
	cfg.PoolStakeTotal.Add(cfg.PoolStakeTotal, amount)
	if err := st.PutConfig(cfg); err != nil {
		return nil, err
	}
	return &Response{Action: ActionStake, Event: stakeEvent(sender, amount), Accrual: outcome}, nil
}

// fund tops up the reward balance. The interval policy does not accrue here;
// the sweep policy settles any elapsed days first.
func (e *Engine) fund(st State, cfg *Config, sender string, amount *big.Int, now uint64) (*Response, error) {
	outcome, err := e.checkpoint(st, cfg, now)
	if err != nil {
		return nil, err
	}
	cfg.PoolRewardHeld.Add(cfg.PoolRewardHeld, amount)
	if err := st.PutConfig(cfg); err != nil {
		return nil, err
	}
	return &Response{Action: ActionFund, Event: fundEvent(sender, amount), Accrual: outcome}, nil
}

func (e *Engine) claimReward(st State, env Env) (*Response, error) {
	cfg, err := e.loadConfig(st)
	if err != nil {
		return nil, err
	}
	caller, err := normalizeAddress(env.Caller)
	if err != nil {
		return nil, err
	}
	outcome, err := e.accrue(st, cfg, caller, env.Now)
	if err != nil {
		return nil, err
	}
	staker, ok, err := st.Staker(caller)
	if err != nil {
		return nil, err
	}
	if !ok || isZero(staker.Reward) {
		return nil, ErrNoReward
	}
	if cfg.PoolRewardHeld.Cmp(staker.Reward) < 0 {
		return nil, ErrInsufficientPoolReward
	}
	reward := new(big.Int).Set(staker.Reward)
	cfg.PoolRewardHeld.Sub(cfg.PoolRewardHeld, reward)
	if err := st.PutConfig(cfg); err != nil {
		return nil, err
	}
	staker.Reward.SetInt64(0)
	if err := e.settleStaker(st, staker); err != nil {
		return nil, err
	}
	return &Response{
		Action:   ActionClaimReward,
		Event:    claimEvent(caller, reward),
		Transfer: &Transfer{Token: cfg.RewardToken, Recipient: caller, Amount: reward},
		Accrual:  outcome,
	}, nil
}

func (e *Engine) unstake(st State, env Env) (*Response, error) {
	cfg, err := e.loadConfig(st)
	if err != nil {
		return nil, err
	}
	caller, err := normalizeAddress(env.Caller)
	if err != nil {
		return nil, err
	}
	outcome, err := e.accrue(st, cfg, caller, env.Now)
	if err != nil {
		return nil, err
	}
	staker, ok, err := st.Staker(caller)
	if err != nil {
		return nil, err
	}
	if !ok || isZero(staker.Amount) {
		return nil, ErrNoStaked
	}
	if cfg.PoolStakeTotal.Cmp(staker.Amount) < 0 {
		return nil, fmt.Errorf("%w: pool holds %s, %s staked %s", ErrInsufficientPoolStake,
			cfg.PoolStakeTotal, caller, staker.Amount)
	}
	amount := new(big.Int).Set(staker.Amount)
	cfg.PoolStakeTotal.Sub(cfg.PoolStakeTotal, amount)
	if err := st.PutConfig(cfg); err != nil {
		return nil, err
	}
	staker.Amount.SetInt64(0)
	if err := e.settleStaker(st, staker); err != nil {
		return nil, err
	}
	return &Response{
		Action:   ActionUnstake,
		Event:    unstakeEvent(caller, amount),
		Transfer: &Transfer{Token: cfg.StakeToken, Recipient: caller, Amount: amount},
		Accrual:  outcome,
	}, nil
}
