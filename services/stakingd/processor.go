package stakingd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"stakeledger/core/events"
	"stakeledger/native/staking"
	"stakeledger/observability"
	"stakeledger/services/stakingd/journal"
	"stakeledger/services/stakingd/snapshot"
	"stakeledger/services/stakingd/wallet"
	"stakeledger/storage"
)

// ErrSettlement wraps failures reported by the bank while paying out.
var ErrSettlement = errors.New("stakingd: settlement failed")

const tracerName = "stakeledger/services/stakingd"

// Processor serialises ledger operations, settles their outbound transfers
// and records the outcome.
type Processor struct {
	db      storage.Database
	engine  *staking.Engine
	bank    wallet.Bank
	journal *journal.Journal
	metrics *Metrics
	logger  *slog.Logger
	tracer  trace.Tracer
	now     func() time.Time
	hub     *EventHub
	emitter events.Emitter

	mu sync.Mutex
}

// ProcessorOption customises the processor instance.
type ProcessorOption func(*Processor)

// WithBank supplies the settlement bank.
func WithBank(b wallet.Bank) ProcessorOption {
	return func(p *Processor) { p.bank = b }
}

// WithJournal supplies the audit journal.
func WithJournal(j *journal.Journal) ProcessorOption {
	return func(p *Processor) { p.journal = j }
}

// WithMetrics overrides the default metrics registry.
func WithMetrics(m *Metrics) ProcessorOption {
	return func(p *Processor) { p.metrics = m }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) ProcessorOption {
	return func(p *Processor) { p.logger = l }
}

// WithEventHub publishes committed events to hub.
func WithEventHub(hub *EventHub) ProcessorOption {
	return func(p *Processor) { p.hub = hub }
}

// WithClock sets the function used to derive block timestamps.
func WithClock(clock func() time.Time) ProcessorOption {
	return func(p *Processor) { p.now = clock }
}

// NewProcessor constructs a processor running engine against db.
func NewProcessor(db storage.Database, engine *staking.Engine, opts ...ProcessorOption) *Processor {
	proc := &Processor{
		db:      db,
		engine:  engine,
		metrics: NewMetrics(),
		logger:  slog.Default(),
		tracer:  otel.Tracer(tracerName),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(proc)
	}
	if proc.bank == nil {
		proc.bank = wallet.FuncBank{
			TransferFunc: func(context.Context, string, string, *big.Int) (string, error) {
				return "", fmt.Errorf("settlement bank not configured")
			},
		}
	}
	if proc.logger == nil {
		proc.logger = slog.Default()
	}
	proc.emitter = &eventLogger{logger: proc.logger, hub: proc.hub}
	engine.SetTokenQuerier(proc.bank)
	engine.SetEmitter(proc.emitter)
	return proc
}

// Engine exposes the underlying ledger engine.
func (p *Processor) Engine() *staking.Engine { return p.engine }

// Events returns the hub committed events are published to, if any.
func (p *Processor) Events() *EventHub { return p.hub }

// Bootstrap creates the pool from msg when the store is empty, otherwise it
// migrates the stored version. It reports whether genesis ran.
func (p *Processor) Bootstrap(ctx context.Context, instantiator string, genesisTime uint64, msg staking.GenesisMsg) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	tx, err := p.db.Begin()
	if err != nil {
		return false, err
	}
	defer tx.Discard()
	st := staking.NewStore(tx)

	if existing, err := st.Config(); err == nil {
		resp, err := p.engine.Migrate(st, staking.MigrateMsg{})
		if err != nil {
			return false, fmt.Errorf("migrate: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return false, fmt.Errorf("commit migrate: %w", err)
		}
		p.depositPool(existing)
		p.logger.Info("pool migrated",
			slog.String("from", resp.Event.Attr("from")),
			slog.String("to", resp.Event.Attr("to")))
		p.recordPool()
		return false, nil
	} else if !errors.Is(err, staking.ErrNotInstantiated) {
		return false, err
	}

	if genesisTime == 0 {
		genesisTime = uint64(p.now().Unix())
	}
	resp, err := p.engine.Genesis(st, staking.Env{Caller: instantiator, Now: genesisTime}, msg)
	if err != nil {
		return false, fmt.Errorf("genesis: %w", err)
	}
	cfg, err := st.Config()
	if err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit genesis: %w", err)
	}
	p.depositPool(cfg)
	p.emitter.Emit(events.Wrap(resp.Event))
	p.record(ctx, staking.ActionInstantiate, instantiator, genesisTime, resp, "", nil)
	p.logger.Info("pool created",
		slog.String("strategy", string(cfg.Strategy)),
		slog.String("stake_token", cfg.StakeToken),
		slog.String("reward_token", cfg.RewardToken),
		slog.Int("stakers", len(msg.Stakers)))
	p.recordPool()
	return true, nil
}

// Execute applies msg on behalf of caller. Outbound transfers are settled
// through the bank before the ledger commits, so a refused transfer leaves
// the ledger unchanged.
func (p *Processor) Execute(ctx context.Context, caller string, msg staking.Msg) (*staking.Response, error) {
	if msg == nil {
		return nil, fmt.Errorf("stakingd: message required")
	}
	action := msg.Action()
	ctx, span := p.tracer.Start(ctx, "stakingd."+action,
		trace.WithAttributes(
			attribute.String("staking.action", action),
			attribute.String("staking.caller", caller),
		))
	defer span.End()

	p.mu.Lock()
	defer p.mu.Unlock()

	start := p.now()
	blockTime := uint64(start.Unix())
	var transferRef string
	settle := func(t *staking.Transfer) error {
		ref, err := p.bank.Transfer(ctx, t.Token, t.Recipient, t.Amount)
		if err != nil {
			p.metrics.RecordSettlementFailure(t.Token)
			return fmt.Errorf("%w: %w", ErrSettlement, err)
		}
		transferRef = ref
		return nil
	}
	resp, err := p.engine.Apply(p.db, staking.Env{Caller: caller, Now: blockTime}, msg, settle)
	p.metrics.ObserveOperation(action, err, p.now().Sub(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.logger.Warn("operation rejected",
			slog.String("action", action),
			slog.String("caller", caller),
			slog.String("error", err.Error()))
		p.record(ctx, action, caller, blockTime, nil, "", err)
		return nil, err
	}

	if resp.Action == staking.ActionStake || resp.Action == staking.ActionFund {
		if depositor, ok := p.bank.(wallet.Depositor); ok {
			if rm, ok := msg.(staking.ReceiveMsg); ok {
				depositor.Deposit(caller, rm.Amount)
			}
		}
	}
	p.metrics.AddDistributed(resp.Accrual.Distributed)
	p.recordPool()
	p.record(ctx, resp.Action, caller, blockTime, resp, transferRef, nil)

	attrs := []any{
		slog.String("action", resp.Action),
		slog.String("caller", caller),
	}
	if resp.Transfer != nil {
		attrs = append(attrs,
			slog.String("token", resp.Transfer.Token),
			slog.String("amount", resp.Transfer.Amount.String()),
			slog.String("transfer_ref", transferRef))
		span.SetAttributes(attribute.String("staking.transfer_ref", transferRef))
	}
	if resp.Accrual.Credited > 0 {
		attrs = append(attrs, slog.Int("credited", resp.Accrual.Credited))
	}
	p.logger.Info("operation committed", attrs...)
	span.SetStatus(codes.Ok, "")
	return resp, nil
}

// Config returns the pool configuration.
func (p *Processor) Config() (*staking.ConfigResponse, error) {
	return p.engine.QueryConfig(staking.NewStore(p.db))
}

// Staker returns one staker record. Absent records read as zero.
func (p *Processor) Staker(address string) (*staking.StakerInfo, error) {
	return p.engine.QueryStaker(staking.NewStore(p.db), address)
}

// Stakers lists staker records in address order.
func (p *Processor) Stakers(startAfter *string, limit *uint32) (*staking.StakerListResponse, error) {
	return p.engine.ListStakers(staking.NewStore(p.db), startAfter, limit)
}

// APY returns the current annual percentage yield.
func (p *Processor) APY(ctx context.Context) (*big.Int, error) {
	return p.engine.QueryAPY(ctx, staking.NewStore(p.db))
}

// Snapshot captures every staker record and the pool digest. Operations are
// held off while it runs so the view is consistent.
func (p *Processor) Snapshot() (*snapshot.Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return snapshot.Take(staking.NewStore(p.db))
}

// History returns the most recent journal entries.
func (p *Processor) History(ctx context.Context, limit int) ([]journal.Entry, error) {
	if p.journal == nil {
		return []journal.Entry{}, nil
	}
	return p.journal.Recent(ctx, limit)
}

// depositPool mirrors the ledger's holdings into an in-process bank. Banks
// backed by a real settlement layer already hold them.
func (p *Processor) depositPool(cfg *staking.Config) {
	depositor, ok := p.bank.(wallet.Depositor)
	if !ok || cfg == nil {
		return
	}
	depositor.Deposit(cfg.StakeToken, cfg.PoolStakeTotal)
	depositor.Deposit(cfg.RewardToken, cfg.PoolRewardHeld)
}

func (p *Processor) recordPool() {
	cfg, err := p.Config()
	if err != nil {
		return
	}
	p.metrics.RecordPool(cfg.PoolStakeTotal, cfg.PoolRewardHeld)
}

func (p *Processor) record(ctx context.Context, action, caller string, blockTime uint64, resp *staking.Response, ref string, opErr error) {
	if p.journal == nil {
		return
	}
	entry := &journal.Entry{
		Action:      action,
		Caller:      caller,
		Outcome:     journal.OutcomeCommitted,
		TransferRef: ref,
		BlockTime:   blockTime,
	}
	if opErr != nil {
		entry.Outcome = journal.OutcomeRejected
		entry.Error = opErr.Error()
	}
	if resp != nil {
		if resp.Event != nil {
			entry.EventType = resp.Event.Type
			entry.Attributes = journal.EncodeAttributes(resp.Event)
		}
		if resp.Transfer != nil {
			entry.Token = resp.Transfer.Token
			entry.Recipient = resp.Transfer.Recipient
			entry.Amount = resp.Transfer.Amount.String()
		}
	}
	if err := p.journal.Record(ctx, entry); err != nil {
		p.logger.Error("journal write failed",
			slog.String("action", action),
			slog.String("error", err.Error()))
	}
}

// eventLogger counts, logs and publishes committed ledger events.
type eventLogger struct {
	logger *slog.Logger
	hub    *EventHub
}

func (e *eventLogger) Emit(evt events.Event) {
	if evt == nil || evt.Event() == nil {
		return
	}
	observability.Events().RecordEvent(evt.EventType())
	raw := evt.Event()
	attrs := make([]any, 0, len(raw.Attributes)+1)
	attrs = append(attrs, slog.String("type", raw.Type))
	for _, key := range raw.Keys() {
		attrs = append(attrs, slog.String(key, raw.Attributes[key]))
	}
	e.logger.Debug("ledger event", attrs...)
	e.hub.Publish(raw)
}

func parseAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("amount required")
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
