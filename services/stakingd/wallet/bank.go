package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
)

// ErrInsufficientFunds is returned when the pool account cannot cover a transfer.
var ErrInsufficientFunds = errors.New("wallet: insufficient pool balance")

// Bank captures the token operations stakingd requires from the settlement layer.
type Bank interface {
	// Transfer moves amount of token from the pool account to recipient and
	// returns a settlement reference.
	Transfer(ctx context.Context, token, recipient string, amount *big.Int) (string, error)
	// TotalSupply reports the circulating supply of token.
	TotalSupply(ctx context.Context, token string) (*big.Int, error)
}

// Depositor is implemented by banks that track inbound pool deposits.
type Depositor interface {
	Deposit(token string, amount *big.Int)
}

// FuncBank adapts callback functions to the Bank interface.
type FuncBank struct {
	TransferFunc func(ctx context.Context, token, recipient string, amount *big.Int) (string, error)
	SupplyFunc   func(ctx context.Context, token string) (*big.Int, error)
}

// Transfer delegates to the configured callback.
func (b FuncBank) Transfer(ctx context.Context, token, recipient string, amount *big.Int) (string, error) {
	if b.TransferFunc == nil {
		return "", nil
	}
	return b.TransferFunc(ctx, token, recipient, amount)
}

// TotalSupply delegates to the configured callback.
func (b FuncBank) TotalSupply(ctx context.Context, token string) (*big.Int, error) {
	if b.SupplyFunc == nil {
		return big.NewInt(0), nil
	}
	return b.SupplyFunc(ctx, token)
}

// Settlement records one executed transfer.
type Settlement struct {
	Ref       string
	Token     string
	Recipient string
	Amount    *big.Int
}

// MemoryBank is an in-process Bank holding the pool's token balances. It is
// used for local deployments and tests, and can be told to fail transfers.
type MemoryBank struct {
	mu          sync.Mutex
	balances    map[string]*big.Int
	supply      map[string]*big.Int
	settlements []Settlement
	failNext    error
	failAll     error
}

// NewMemoryBank returns an empty bank.
func NewMemoryBank() *MemoryBank {
	return &MemoryBank{
		balances: make(map[string]*big.Int),
		supply:   make(map[string]*big.Int),
	}
}

func tokenKey(token string) string {
	return strings.ToLower(strings.TrimSpace(token))
}

// Deposit credits the pool account.
func (b *MemoryBank) Deposit(token string, amount *big.Int) {
	if amount == nil || amount.Sign() <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	key := tokenKey(token)
	bal, ok := b.balances[key]
	if !ok {
		bal = big.NewInt(0)
		b.balances[key] = bal
	}
	bal.Add(bal, amount)
}

// SetSupply fixes the supply reported for token.
func (b *MemoryBank) SetSupply(token string, supply *big.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.supply[tokenKey(token)] = new(big.Int).Set(supply)
}

// FailNext makes the next transfer fail with err.
func (b *MemoryBank) FailNext(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failNext = err
}

// FailAll makes every transfer fail with err until cleared with nil.
func (b *MemoryBank) FailAll(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failAll = err
}

// Balance returns the pool balance of token.
func (b *MemoryBank) Balance(token string) *big.Int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if bal, ok := b.balances[tokenKey(token)]; ok {
		return new(big.Int).Set(bal)
	}
	return big.NewInt(0)
}

// Settlements returns a copy of the executed transfers.
func (b *MemoryBank) Settlements() []Settlement {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Settlement(nil), b.settlements...)
}

// Transfer implements Bank.
func (b *MemoryBank) Transfer(_ context.Context, token, recipient string, amount *big.Int) (string, error) {
	if amount == nil || amount.Sign() <= 0 {
		return "", fmt.Errorf("wallet: transfer amount must be positive")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failNext != nil {
		err := b.failNext
		b.failNext = nil
		return "", err
	}
	if b.failAll != nil {
		return "", b.failAll
	}
	key := tokenKey(token)
	bal, ok := b.balances[key]
	if !ok || bal.Cmp(amount) < 0 {
		return "", fmt.Errorf("%w: %s", ErrInsufficientFunds, token)
	}
	bal.Sub(bal, amount)
	ref := fmt.Sprintf("mem-%d", len(b.settlements)+1)
	b.settlements = append(b.settlements, Settlement{
		Ref:       ref,
		Token:     token,
		Recipient: recipient,
		Amount:    new(big.Int).Set(amount),
	})
	return ref, nil
}

// TotalSupply implements Bank.
func (b *MemoryBank) TotalSupply(_ context.Context, token string) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if supply, ok := b.supply[tokenKey(token)]; ok {
		return new(big.Int).Set(supply), nil
	}
	return big.NewInt(0), nil
}
