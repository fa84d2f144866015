package stakingd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"stakeledger/config"
	"stakeledger/native/staking"
	"stakeledger/observability/logging"
	telemetry "stakeledger/observability/otel"
	"stakeledger/services/stakingd/journal"
	"stakeledger/services/stakingd/wallet"
	"stakeledger/storage"
)

// Main initialises and runs the staking daemon.
func Main() error {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/stakingd/config.yaml", "path to stakingd configuration")
	flag.Parse()

	cfg, err := LoadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	env := strings.TrimSpace(os.Getenv("STAKELEDGER_ENV"))
	var logOpts []logging.Option
	if cfg.LogFile != "" {
		logOpts = append(logOpts, logging.WithFile(cfg.LogFile, cfg.LogMaxSizeMB, cfg.LogMaxBackups))
	}
	logger := logging.Setup("stakingd", env, logOpts...)

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.FromEnv("stakingd", env))
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	gen, err := config.LoadGenesis(cfg.GenesisPath)
	if err != nil {
		return fmt.Errorf("load genesis: %w", err)
	}
	strategy, err := gen.StrategyName()
	if err != nil {
		return err
	}
	policy, err := staking.NewPolicy(strategy)
	if err != nil {
		return err
	}
	genesisMsg, err := gen.Msg()
	if err != nil {
		return fmt.Errorf("genesis: %w", err)
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	jrnl, err := journal.Open(cfg.Journal.Driver, cfg.Journal.DSN)
	if err != nil {
		return err
	}
	defer func() { _ = jrnl.Close() }()

	bank, err := newMemoryBank(cfg.Bank)
	if err != nil {
		return err
	}

	proc := NewProcessor(db, staking.NewEngine(policy),
		WithBank(bank),
		WithJournal(jrnl),
		WithMetrics(NewMetrics()),
		WithLogger(logger),
		WithEventHub(NewEventHub(cfg.EventBacklog)),
	)
	created, err := proc.Bootstrap(context.Background(), gen.Instantiator, gen.GenesisTime, genesisMsg)
	if err != nil {
		return fmt.Errorf("bootstrap pool: %w", err)
	}
	logger.Info("pool ready", slog.Bool("created", created), slog.String("strategy", string(strategy)))

	auth, err := NewAuthenticator(cfg.Auth, logger)
	if err != nil {
		return err
	}
	server := NewServer(proc, auth, NewRateLimiter(cfg.RateLimit), logger)
	server.RequestTimeout = cfg.RequestTimeout.Duration
	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	stopCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.HealthListen != "" {
		lis, err := net.Listen("tcp", cfg.HealthListen)
		if err != nil {
			return fmt.Errorf("listen grpc health: %w", err)
		}
		healthServer := NewHealthServer()
		healthServer.SetServing(true)
		go func() {
			logger.Info("grpc health listening", slog.String("addr", cfg.HealthListen))
			if err := healthServer.Serve(lis); err != nil {
				logger.Error("grpc health stopped", slog.String("error", err.Error()))
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout.Duration)
			defer cancel()
			healthServer.Stop(ctx)
		}()
	}

	errs := make(chan error, 1)
	go func() {
		logger.Info("stakingd listening", slog.String("addr", cfg.ListenAddress))
		errs <- httpServer.ListenAndServe()
	}()

	select {
	case <-stopCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout.Duration)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			_ = httpServer.Close()
			return err
		}
		return nil
	case err := <-errs:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func newMemoryBank(cfg BankConfig) (*wallet.MemoryBank, error) {
	bank := wallet.NewMemoryBank()
	for token, raw := range cfg.PoolBalances {
		amount, err := parseAmount(raw)
		if err != nil {
			return nil, fmt.Errorf("bank pool_balances %s: %w", token, err)
		}
		bank.Deposit(token, amount)
	}
	for token, raw := range cfg.Supplies {
		amount, err := parseAmount(raw)
		if err != nil {
			return nil, fmt.Errorf("bank supplies %s: %w", token, err)
		}
		bank.SetSupply(token, amount)
	}
	return bank, nil
}
